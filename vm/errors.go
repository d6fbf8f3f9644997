package vm

import (
	"errors"
	"fmt"

	"github.com/purevm/purevm/asm"
)

// ErrorKind classifies the ways an execution can fault. Faults are terminal:
// the run stops and no Result is produced.
type ErrorKind int

const (
	// PCOutOfBounds: pc does not address the start of any instruction.
	PCOutOfBounds ErrorKind = iota
	// StackUnderflow: an instruction popped more words than were present.
	StackUnderflow
	// StackOverflow: a push would exceed the 1024-word limit.
	StackOverflow
	// ValueOverflow: a word used as an offset or length does not fit the
	// host's int.
	ValueOverflow
	// SignedIntegerOutOfBounds is reserved for signed narrowing faults.
	// No current instruction produces it.
	SignedIntegerOutOfBounds
	// OutOfMemory: memory growth past the configured limit.
	OutOfMemory
	// InvalidOperation: the designated invalid instruction was executed.
	InvalidOperation
	// InvalidJumpDest: a jump target is not a JUMPDEST instruction start.
	InvalidJumpDest
	// InvalidPush: a push token carries an inconsistent or oversized payload.
	InvalidPush
	// Impure: the instruction needs account, storage or chain context.
	Impure
	// NotImplemented: the instruction is in the table but has no handler.
	NotImplemented
)

var kindNames = map[ErrorKind]string{
	PCOutOfBounds:            "pc out of bounds",
	StackUnderflow:           "stack underflow",
	StackOverflow:            "stack overflow",
	ValueOverflow:            "value overflow",
	SignedIntegerOutOfBounds: "signed integer out of bounds",
	OutOfMemory:              "out of memory",
	InvalidOperation:         "invalid operation",
	InvalidJumpDest:          "invalid jump destination",
	InvalidPush:              "invalid push",
	Impure:                   "impure operation",
	NotImplemented:           "not implemented",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Error is a typed execution fault. Op is set only for kinds that name a
// specific instruction (Impure, NotImplemented).
type Error struct {
	Kind ErrorKind
	Op   asm.OpCode
}

func (e *Error) Error() string {
	switch e.Kind {
	case Impure, NotImplemented:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return e.Kind.String()
	}
}

func errKind(k ErrorKind) error {
	return &Error{Kind: k}
}

func errOp(k ErrorKind, op asm.OpCode) error {
	return &Error{Kind: k, Op: op}
}

// IsKind reports whether err is or wraps an execution fault of the given kind.
func IsKind(err error, k ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
