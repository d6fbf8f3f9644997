package asm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Tokens: the common currency of the assembler, resolver and codec
// ---------------------------------------------------------------------------

// Token is one element of a Program. The set of implementations is closed:
// Plain, Push, Dup, Swap, Invalid, JumpPointer, JumpDest and SelfCodeSize.
// JumpPointer, JumpDest and SelfCodeSize are placeholders that only exist
// before jump resolution; the encoder rejects them.
type Token interface {
	// Size returns the encoded width of the token in bytes.
	Size() int
	String() string

	isToken()
}

// Plain is a zero-operand instruction.
type Plain struct {
	Op OpCode
}

// Push places an immediate of N bytes (0..32) on the stack.
// The invariant N == len(Value) must hold.
type Push struct {
	N     int
	Value []byte
}

// Dup duplicates the N'th stack element (1..16).
type Dup struct {
	N int
}

// Swap exchanges the top of the stack with the N'th element below it (1..16).
type Swap struct {
	N int
}

// Invalid is the 0xFE sentinel. Its Data carries every byte that follows it
// in the encoded stream, which makes it double as a raw-data carrier for
// payloads appended after code.
type Invalid struct {
	Data []byte
}

// JumpPointer is an unresolved reference to the JumpDest with the same label.
// Resolution rewrites it into a fixed-width address push.
type JumpPointer struct {
	Label int
}

// JumpDest marks a labeled jump target. Resolution rewrites it into
// Plain{JUMPDEST}.
type JumpDest struct {
	Label int
}

// SelfCodeSize is a placeholder for the total assembled length of the
// program it appears in. Resolution rewrites it into a fixed-width push.
type SelfCodeSize struct{}

// Program is an ordered token sequence. Before resolution it may contain
// placeholder tokens; afterwards it contains only encodable ones.
type Program []Token

func (Plain) isToken()        {}
func (Push) isToken()         {}
func (Dup) isToken()          {}
func (Swap) isToken()         {}
func (Invalid) isToken()      {}
func (JumpPointer) isToken()  {}
func (JumpDest) isToken()     {}
func (SelfCodeSize) isToken() {}

// jumpAddressWidth is the fixed push width used for resolved jump addresses
// and SelfCodeSize. Programs must stay under 2^(8*jumpAddressWidth) bytes.
const jumpAddressWidth = 3

func (t Plain) Size() int   { return 1 }
func (t Push) Size() int    { return 1 + t.N }
func (t Dup) Size() int     { return 1 }
func (t Swap) Size() int    { return 1 }
func (t Invalid) Size() int { return 1 + len(t.Data) }

// Placeholder sizes match what resolution will substitute, so pass-1 offsets
// are already final.
func (t JumpPointer) Size() int  { return 1 + jumpAddressWidth }
func (t JumpDest) Size() int     { return 1 }
func (t SelfCodeSize) Size() int { return 1 + jumpAddressWidth }

func (t Plain) String() string { return t.Op.String() }

func (t Push) String() string {
	if t.N == 0 {
		return "PUSH0"
	}
	return fmt.Sprintf("PUSH%d 0x%x", t.N, t.Value)
}

func (t Dup) String() string     { return fmt.Sprintf("DUP%d", t.N) }
func (t Swap) String() string    { return fmt.Sprintf("SWAP%d", t.N) }
func (t Invalid) String() string { return fmt.Sprintf("INVALID 0x%x", t.Data) }

func (t JumpPointer) String() string  { return fmt.Sprintf("jumppointer(%d)", t.Label) }
func (t JumpDest) String() string     { return fmt.Sprintf("jumpdest(%d)", t.Label) }
func (t SelfCodeSize) String() string { return "selfcodesize" }
