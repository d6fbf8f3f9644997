package asm

import "errors"

// Authoring-time errors. A program is either well formed before use or it is
// not, so none of these are recovered locally; callers get them wrapped with
// detail and should treat them as defects in the source tree or byte stream.
var (
	// ErrInvalidAssembly marks a malformed operation tree: an oversized
	// literal, an arity mismatch, an unrecognized node, or a program too
	// large for the fixed jump-address width.
	ErrInvalidAssembly = errors.New("invalid assembly")

	// ErrInvalidCode marks a byte stream that declares more push bytes
	// than it contains.
	ErrInvalidCode = errors.New("invalid code")

	// ErrInvalidOpcode marks an unresolvable jump label or a byte that
	// matches no table entry during decoding.
	ErrInvalidOpcode = errors.New("invalid opcode")
)
