package vm

import (
	"github.com/holiman/uint256"

	"github.com/purevm/purevm/asm"
)

// Execution limits. StackLimit matches the instruction set's 1024-word
// ceiling; MemoryLimit bounds zero-extended memory growth since there is no
// gas to do it.
const (
	StackLimit         = 1024
	DefaultMemoryLimit = 10_000_000
)

// Input is the read-only call environment for one execution.
type Input struct {
	Calldata []byte
	Value    uint256.Int
}

// Context is the mutable state of one execution. It is owned by exactly one
// run: created at start, mutated once per dispatched instruction, discarded
// at halt. Nothing in it is shared across concurrent executions.
type Context struct {
	Code    asm.Program
	Encoded []byte
	OpMap   map[int]asm.Token

	PC     int
	Halted bool

	Stack     []uint256.Int
	Memory    []byte
	Transient map[[32]byte]uint256.Int

	Reverted   bool
	ReturnData []byte
}

// Result is derived from a halted Context.
type Result struct {
	Stack      []uint256.Int
	Reverted   bool
	ReturnData []byte
}

func newContext(prog asm.Program, encoded []byte) *Context {
	ctx := &Context{
		Code:      prog,
		Encoded:   encoded,
		OpMap:     make(map[int]asm.Token, len(prog)),
		Transient: make(map[[32]byte]uint256.Int),
	}
	offset := 0
	for _, t := range prog {
		ctx.OpMap[offset] = t
		offset += t.Size()
	}
	return ctx
}

func (ctx *Context) result() *Result {
	return &Result{
		Stack:      ctx.Stack,
		Reverted:   ctx.Reverted,
		ReturnData: ctx.ReturnData,
	}
}

// ---------------------------------------------------------------------------
// Stack
// ---------------------------------------------------------------------------

func (ctx *Context) push(v *uint256.Int) error {
	if len(ctx.Stack) >= StackLimit {
		return errKind(StackOverflow)
	}
	ctx.Stack = append(ctx.Stack, *v)
	return nil
}

func (ctx *Context) pop() (uint256.Int, error) {
	if len(ctx.Stack) == 0 {
		return uint256.Int{}, errKind(StackUnderflow)
	}
	v := ctx.Stack[len(ctx.Stack)-1]
	ctx.Stack = ctx.Stack[:len(ctx.Stack)-1]
	return v, nil
}

// peek returns the n'th element from the top, 0 being the top itself.
func (ctx *Context) peek(n int) (uint256.Int, error) {
	if len(ctx.Stack) <= n {
		return uint256.Int{}, errKind(StackUnderflow)
	}
	return ctx.Stack[len(ctx.Stack)-1-n], nil
}

// swap exchanges the top of the stack with the n'th element below it.
func (ctx *Context) swap(n int) error {
	if len(ctx.Stack) <= n {
		return errKind(StackUnderflow)
	}
	top := len(ctx.Stack) - 1
	ctx.Stack[top], ctx.Stack[top-n] = ctx.Stack[top-n], ctx.Stack[top]
	return nil
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

// grow zero-extends memory to at least size bytes. Memory never shrinks.
func (ctx *Context) grow(size int, limit int) error {
	if size <= len(ctx.Memory) {
		return nil
	}
	if size > limit {
		return errKind(OutOfMemory)
	}
	ctx.Memory = append(ctx.Memory, make([]byte, size-len(ctx.Memory))...)
	return nil
}

// region grows memory to cover [offset, offset+size) and returns that slice.
// A zero size performs no growth and yields an empty slice.
func (ctx *Context) region(offset, size *uint256.Int, limit int) ([]byte, error) {
	n, err := wordToInt(size)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	off, err := wordToInt(offset)
	if err != nil {
		return nil, err
	}
	// Bounds-check against the limit before adding, so off+n cannot
	// overflow the host int.
	if n > limit || off > limit-n {
		return nil, errKind(OutOfMemory)
	}
	if err := ctx.grow(off+n, limit); err != nil {
		return nil, err
	}
	return ctx.Memory[off : off+n], nil
}

// wordToInt narrows a word used as an offset or length. Anything that does
// not fit a non-negative int cannot address the bounded memory anyway.
func wordToInt(v *uint256.Int) (int, error) {
	if !v.IsUint64() {
		return 0, errKind(ValueOverflow)
	}
	u := v.Uint64()
	if u > uint64(int(^uint(0)>>1)) {
		return 0, errKind(ValueOverflow)
	}
	return int(u), nil
}
