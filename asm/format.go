package asm

import (
	"fmt"
	"strings"
)

// Format renders a Program as offset-annotated text, one token per line.
func Format(prog Program) string {
	var sb strings.Builder
	offset := 0
	for _, t := range prog {
		fmt.Fprintf(&sb, "%04x: %s\n", offset, t)
		offset += t.Size()
	}
	return sb.String()
}

// FormatBytecode decodes raw bytes and renders them as text.
func FormatBytecode(code []byte) (string, error) {
	prog, err := Disassemble(code)
	if err != nil {
		return "", err
	}
	return Format(prog), nil
}
