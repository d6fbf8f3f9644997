package asm

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Jump resolution: labels -> fixed-width address pushes
// ---------------------------------------------------------------------------

// Resolve rewrites every placeholder token in prog into its encodable form.
// Pass 1 walks the program accumulating byte offsets and records where each
// JumpDest lands; pass 2 rewrites JumpPointer into a fixed 3-byte address
// push, JumpDest into Plain{JUMPDEST}, and SelfCodeSize into a push of the
// total assembled length. All other tokens pass through unchanged.
func Resolve(prog Program) (Program, error) {
	offsets := make(map[int]int)
	end := 0
	for _, t := range prog {
		if d, ok := t.(JumpDest); ok {
			offsets[d.Label] = end
		}
		end += t.Size()
	}
	if end >= 1<<(8*jumpAddressWidth) {
		return nil, fmt.Errorf("%w: program of %d bytes exceeds the %d-byte jump address width",
			ErrInvalidAssembly, end, jumpAddressWidth)
	}

	out := make(Program, 0, len(prog))
	for _, t := range prog {
		switch v := t.(type) {
		case JumpPointer:
			target, ok := offsets[v.Label]
			if !ok {
				return nil, fmt.Errorf("%w: jump to unknown label %d", ErrInvalidOpcode, v.Label)
			}
			out = append(out, Push{N: jumpAddressWidth, Value: beAddress(target)})
		case JumpDest:
			out = append(out, Plain{Op: JUMPDEST})
		case SelfCodeSize:
			out = append(out, Push{N: jumpAddressWidth, Value: beAddress(end)})
		default:
			out = append(out, t)
		}
	}
	return out, nil
}

func beAddress(n int) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(n))
	return buf[4-jumpAddressWidth:]
}
