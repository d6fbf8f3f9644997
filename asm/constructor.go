package asm

import "fmt"

// Constructor wraps runtime code in init code: a CODECOPY+RETURN preamble
// followed by the raw code. Executing the result returns exactly code as
// return data, which is the contract-deployment convention.
//
// The preamble pushes integers whose width depends on the preamble's own
// length, so it is assembled repeatedly until the length stops moving; that
// takes at most a few rounds since push widths only grow with the offset.
func Constructor(code []byte) ([]byte, error) {
	n := len(code)
	offset := 0
	for {
		preamble, err := Build(
			Apply(CODECOPY, 0, offset, n),
			Apply(RETURN, 0, n),
		)
		if err != nil {
			return nil, fmt.Errorf("assembling constructor preamble: %w", err)
		}
		if len(preamble) == offset {
			return append(preamble, code...), nil
		}
		offset = len(preamble)
	}
}
