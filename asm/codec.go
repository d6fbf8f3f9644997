package asm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Bytecode encoder / decoder
// ---------------------------------------------------------------------------

// Opcode byte ranges for the parameterized instruction families.
const (
	pushBase OpCode = 0x5f // PUSH0; PUSHn = pushBase + n
	dupBase  OpCode = 0x7f // DUPn = dupBase + n
	swapBase OpCode = 0x8f // SWAPn = swapBase + n
)

// Assemble encodes a post-resolution Program into raw bytecode. Placeholder
// tokens and malformed Push/Dup/Swap parameters are authoring defects and
// fail with ErrInvalidAssembly.
func Assemble(prog Program) ([]byte, error) {
	size := 0
	for _, t := range prog {
		size += t.Size()
	}
	out := make([]byte, 0, size)
	for _, t := range prog {
		switch v := t.(type) {
		case Plain:
			if _, ok := LookupOp(v.Op); !ok {
				return nil, fmt.Errorf("%w: no such opcode 0x%02x", ErrInvalidAssembly, byte(v.Op))
			}
			// The 0x5f byte has exactly one token form, Push{}, so
			// decoding stays the inverse of encoding.
			if v.Op == PUSH0 {
				return nil, fmt.Errorf("%w: PUSH0 must be a push token", ErrInvalidAssembly)
			}
			out = append(out, byte(v.Op))
		case Push:
			if v.N != len(v.Value) || v.N > 32 {
				return nil, fmt.Errorf("%w: push of %d bytes with %d-byte value",
					ErrInvalidAssembly, v.N, len(v.Value))
			}
			out = append(out, byte(pushBase)+byte(v.N))
			out = append(out, v.Value...)
		case Dup:
			if v.N < 1 || v.N > 16 {
				return nil, fmt.Errorf("%w: dup depth %d out of range", ErrInvalidAssembly, v.N)
			}
			out = append(out, byte(dupBase)+byte(v.N))
		case Swap:
			if v.N < 1 || v.N > 16 {
				return nil, fmt.Errorf("%w: swap depth %d out of range", ErrInvalidAssembly, v.N)
			}
			out = append(out, byte(swapBase)+byte(v.N))
		case Invalid:
			out = append(out, byte(INVALID))
			out = append(out, v.Data...)
		default:
			return nil, fmt.Errorf("%w: unresolved token %s", ErrInvalidAssembly, t)
		}
	}
	return out, nil
}

// Disassemble decodes raw bytecode into a Program. It is the exact inverse
// of Assemble for any program Assemble produced; jump labels are gone by
// then, so resolved addresses decode as ordinary pushes. A declared push
// running past the end of the input fails with ErrInvalidCode, and a byte
// matching no table entry fails with ErrInvalidOpcode.
func Disassemble(code []byte) (Program, error) {
	var prog Program
	for i := 0; i < len(code); {
		b := OpCode(code[i])
		switch {
		case b >= pushBase && b < 0x80:
			n := int(b - pushBase)
			if i+1+n > len(code) {
				return nil, fmt.Errorf("%w: %s at offset %d wants %d bytes, %d remain",
					ErrInvalidCode, b, i, n, len(code)-i-1)
			}
			var val []byte
			if n > 0 {
				val = code[i+1 : i+1+n]
			}
			prog = append(prog, Push{N: n, Value: val})
			i += 1 + n
		case b >= 0x80 && b < 0x90:
			prog = append(prog, Dup{N: int(b-dupBase)})
			i++
		case b >= 0x90 && b < 0xa0:
			prog = append(prog, Swap{N: int(b-swapBase)})
			i++
		case b == INVALID:
			// The sentinel swallows everything after it; trailing
			// bytes are data, not code.
			prog = append(prog, Invalid{Data: code[i+1:]})
			return prog, nil
		default:
			op, ok := LookupOp(b)
			if !ok {
				return nil, fmt.Errorf("%w: byte 0x%02x at offset %d", ErrInvalidOpcode, byte(b), i)
			}
			prog = append(prog, Plain{Op: op.Code})
			i++
		}
	}
	return prog, nil
}

// Build is the whole authoring pipeline in one call: compile the operation
// tree, resolve jumps, and encode.
func Build(nodes ...Node) ([]byte, error) {
	prog, err := Compile(nodes...)
	if err != nil {
		return nil, err
	}
	prog, err = Resolve(prog)
	if err != nil {
		return nil, err
	}
	return Assemble(prog)
}
