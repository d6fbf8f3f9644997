package vm

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/purevm/purevm/asm"
	"github.com/purevm/purevm/keccak"
)

// HashFunc is the pure digest primitive backing the SHA3 opcode. It is the
// engine's only external collaborator.
type HashFunc func([]byte) [32]byte

// Interpreter executes programs of the pure, context-free opcode dialect.
// It holds no per-execution state, so one Interpreter is safe to use from
// any number of goroutines as long as its hash function is reentrant.
type Interpreter struct {
	hash     HashFunc
	memLimit int
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithHash injects the digest primitive for SHA3. The default is Keccak-256.
func WithHash(h HashFunc) Option {
	return func(in *Interpreter) { in.hash = h }
}

// WithMemoryLimit overrides the memory growth ceiling.
func WithMemoryLimit(limit int) Option {
	return func(in *Interpreter) { in.memLimit = limit }
}

// New creates an Interpreter.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{
		hash:     keccak.Sum256,
		memLimit: DefaultMemoryLimit,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Exec runs a post-resolution Program to completion. The program is encoded
// first so that CODESIZE/CODECOPY observe the exact byte form; placeholder
// tokens therefore fail with asm.ErrInvalidAssembly. A nil value means zero.
func (in *Interpreter) Exec(prog asm.Program, calldata []byte, value *uint256.Int) (*Result, error) {
	encoded, err := asm.Assemble(prog)
	if err != nil {
		return nil, fmt.Errorf("encoding program: %w", err)
	}
	return in.run(prog, encoded, calldata, value)
}

// ExecBytecode decodes raw bytes and runs them to completion.
func (in *Interpreter) ExecBytecode(code []byte, calldata []byte, value *uint256.Int) (*Result, error) {
	prog, err := asm.Disassemble(code)
	if err != nil {
		return nil, fmt.Errorf("decoding bytecode: %w", err)
	}
	return in.run(prog, code, calldata, value)
}

// ExecCall runs raw bytecode and collapses the outcome into call semantics:
// return data plus a reverted flag. Any runtime fault other than a clean
// STOP/RETURN/REVERT halt is escalated as an error, since for this pure
// dialect it marks a malformed or unsupported program rather than an
// expected runtime outcome.
func (in *Interpreter) ExecCall(code []byte, calldata []byte, value *uint256.Int) (ret []byte, reverted bool, err error) {
	res, err := in.ExecBytecode(code, calldata, value)
	if err != nil {
		return nil, false, fmt.Errorf("pure call failed: %w", err)
	}
	return res.ReturnData, res.Reverted, nil
}

func (in *Interpreter) run(prog asm.Program, encoded []byte, calldata []byte, value *uint256.Int) (*Result, error) {
	input := &Input{Calldata: calldata}
	if value != nil {
		input.Value = *value
	}
	ctx := newContext(prog, encoded)
	for !ctx.Halted {
		if err := in.step(ctx, input); err != nil {
			return nil, err
		}
	}
	return ctx.result(), nil
}

// step fetches the token at pc, dispatches it, and advances pc by the
// fetched token's size. The advance applies even when dispatch moved pc: a
// jump sets pc to the JUMPDEST offset and the jump instruction's own 1-byte
// size then lands execution exactly past it.
func (in *Interpreter) step(ctx *Context, input *Input) error {
	tok, ok := ctx.OpMap[ctx.PC]
	if !ok {
		return errKind(PCOutOfBounds)
	}
	if err := in.dispatch(ctx, input, tok); err != nil {
		return err
	}
	ctx.PC += tok.Size()
	return nil
}

func (in *Interpreter) dispatch(ctx *Context, input *Input, tok asm.Token) error {
	switch t := tok.(type) {
	case asm.Push:
		if t.N > 32 || t.N != len(t.Value) {
			return errKind(InvalidPush)
		}
		return ctx.push(new(uint256.Int).SetBytes(t.Value))

	case asm.Dup:
		v, err := ctx.peek(t.N - 1)
		if err != nil {
			return err
		}
		return ctx.push(&v)

	case asm.Swap:
		return ctx.swap(t.N)

	case asm.Invalid:
		return errKind(InvalidOperation)

	case asm.Plain:
		return in.dispatchOp(ctx, input, t.Op)

	default:
		// Placeholder tokens never reach a runnable program; Exec
		// rejects them during encoding.
		return errKind(InvalidOperation)
	}
}

func (in *Interpreter) dispatchOp(ctx *Context, input *Input, op asm.OpCode) error {
	switch op {
	// Arithmetic, modulo 2^256.
	case asm.ADD:
		return in.binop(ctx, func(z, x, y *uint256.Int) { z.Add(x, y) })
	case asm.SUB:
		return in.binop(ctx, func(z, x, y *uint256.Int) { z.Sub(x, y) })
	case asm.MUL:
		return in.binop(ctx, func(z, x, y *uint256.Int) { z.Mul(x, y) })
	case asm.DIV:
		// Division by zero yields zero, not an error.
		return in.binop(ctx, func(z, x, y *uint256.Int) { z.Div(x, y) })
	case asm.SDIV:
		return in.binop(ctx, func(z, x, y *uint256.Int) { z.SDiv(x, y) })
	case asm.MOD:
		return in.binop(ctx, func(z, x, y *uint256.Int) { z.Mod(x, y) })
	case asm.SMOD:
		return in.binop(ctx, func(z, x, y *uint256.Int) { z.SMod(x, y) })
	case asm.EXP:
		return in.binop(ctx, func(z, x, y *uint256.Int) { z.Exp(x, y) })
	case asm.SIGNEXTEND:
		// (b, x): b >= 31 leaves x unchanged.
		return in.binop(ctx, func(z, b, x *uint256.Int) { z.ExtendSign(x, b) })
	case asm.ADDMOD:
		return in.ternop(ctx, func(z, x, y, m *uint256.Int) { z.AddMod(x, y, m) })
	case asm.MULMOD:
		return in.ternop(ctx, func(z, x, y, m *uint256.Int) { z.MulMod(x, y, m) })

	// Comparisons and bitwise ops.
	case asm.LT:
		return in.binop(ctx, func(z, x, y *uint256.Int) { setBool(z, x.Lt(y)) })
	case asm.GT:
		return in.binop(ctx, func(z, x, y *uint256.Int) { setBool(z, x.Gt(y)) })
	case asm.SLT:
		return in.binop(ctx, func(z, x, y *uint256.Int) { setBool(z, x.Slt(y)) })
	case asm.SGT:
		return in.binop(ctx, func(z, x, y *uint256.Int) { setBool(z, x.Sgt(y)) })
	case asm.EQ:
		return in.binop(ctx, func(z, x, y *uint256.Int) { setBool(z, x.Eq(y)) })
	case asm.ISZERO:
		return in.unop(ctx, func(z, x *uint256.Int) { setBool(z, x.IsZero()) })
	case asm.AND:
		return in.binop(ctx, func(z, x, y *uint256.Int) { z.And(x, y) })
	case asm.OR:
		return in.binop(ctx, func(z, x, y *uint256.Int) { z.Or(x, y) })
	case asm.XOR:
		return in.binop(ctx, func(z, x, y *uint256.Int) { z.Xor(x, y) })
	case asm.NOT:
		return in.unop(ctx, func(z, x *uint256.Int) { z.Not(x) })
	case asm.BYTE:
		return in.binop(ctx, func(z, i, x *uint256.Int) { z.Set(x); z.Byte(i) })
	case asm.SHL:
		return in.binop(ctx, func(z, s, x *uint256.Int) { z.Lsh(x, capShift(s)) })
	case asm.SHR:
		return in.binop(ctx, func(z, s, x *uint256.Int) { z.Rsh(x, capShift(s)) })
	case asm.SAR:
		return in.binop(ctx, func(z, s, x *uint256.Int) { z.SRsh(x, capShift(s)) })

	case asm.SHA3:
		return in.opSha3(ctx)

	// Call-input ops read from Input, never from Context.
	case asm.CALLVALUE:
		return ctx.push(&input.Value)
	case asm.CALLDATALOAD:
		return in.opCalldataLoad(ctx, input)
	case asm.CALLDATASIZE:
		return ctx.push(uint256.NewInt(uint64(len(input.Calldata))))
	case asm.CALLDATACOPY:
		return in.opCopy(ctx, input.Calldata)

	// Code introspection reads the execution's own encoded bytecode.
	case asm.CODESIZE:
		return ctx.push(uint256.NewInt(uint64(len(ctx.Encoded))))
	case asm.CODECOPY:
		return in.opCopy(ctx, ctx.Encoded)

	case asm.POP:
		_, err := ctx.pop()
		return err
	case asm.MLOAD:
		return in.opMload(ctx)
	case asm.MSTORE:
		return in.opMstore(ctx)
	case asm.MSTORE8:
		return in.opMstore8(ctx)

	case asm.PC:
		return ctx.push(uint256.NewInt(uint64(ctx.PC)))
	case asm.MSIZE:
		return ctx.push(uint256.NewInt(uint64(len(ctx.Memory))))
	case asm.JUMPDEST:
		return nil

	case asm.TLOAD:
		key, err := ctx.pop()
		if err != nil {
			return err
		}
		v := ctx.Transient[key.Bytes32()]
		return ctx.push(&v)
	case asm.TSTORE:
		key, err := ctx.pop()
		if err != nil {
			return err
		}
		val, err := ctx.pop()
		if err != nil {
			return err
		}
		ctx.Transient[key.Bytes32()] = val
		return nil

	case asm.MCOPY:
		return in.opMcopy(ctx)

	case asm.JUMP:
		return in.opJump(ctx)
	case asm.JUMPI:
		return in.opJumpi(ctx)

	case asm.STOP:
		ctx.Halted = true
		ctx.ReturnData = nil
		return nil
	case asm.RETURN:
		return in.opReturn(ctx, false)
	case asm.REVERT:
		return in.opReturn(ctx, true)
	}

	if impureOps[op] {
		return errOp(Impure, op)
	}
	return errOp(NotImplemented, op)
}

// impureOps lists every table opcode that needs account, storage or chain
// context. This engine executes context-free computation only, so they are
// rejected rather than simulated.
var impureOps = map[asm.OpCode]bool{
	asm.ADDRESS: true, asm.BALANCE: true, asm.ORIGIN: true, asm.CALLER: true,
	asm.GASPRICE: true, asm.EXTCODESIZE: true, asm.EXTCODECOPY: true,
	asm.RETURNDATASIZE: true, asm.RETURNDATACOPY: true, asm.EXTCODEHASH: true,
	asm.BLOCKHASH: true, asm.COINBASE: true, asm.TIMESTAMP: true,
	asm.NUMBER: true, asm.PREVRANDAO: true, asm.GASLIMIT: true,
	asm.CHAINID: true, asm.SELFBALANCE: true, asm.BASEFEE: true,
	asm.BLOBHASH: true, asm.BLOBBASEFEE: true,
	asm.SLOAD: true, asm.SSTORE: true, asm.GAS: true,
	asm.LOG0: true, asm.LOG1: true, asm.LOG2: true, asm.LOG3: true, asm.LOG4: true,
	asm.CREATE: true, asm.CALL: true, asm.CALLCODE: true,
	asm.DELEGATECALL: true, asm.CREATE2: true, asm.STATICCALL: true,
	asm.SELFDESTRUCT: true,
}

// ---------------------------------------------------------------------------
// Dispatch helpers
// ---------------------------------------------------------------------------

func (in *Interpreter) unop(ctx *Context, fn func(z, x *uint256.Int)) error {
	x, err := ctx.pop()
	if err != nil {
		return err
	}
	var z uint256.Int
	fn(&z, &x)
	return ctx.push(&z)
}

// binop pops the two operands, top first, and pushes fn's result.
func (in *Interpreter) binop(ctx *Context, fn func(z, x, y *uint256.Int)) error {
	x, err := ctx.pop()
	if err != nil {
		return err
	}
	y, err := ctx.pop()
	if err != nil {
		return err
	}
	var z uint256.Int
	fn(&z, &x, &y)
	return ctx.push(&z)
}

func (in *Interpreter) ternop(ctx *Context, fn func(z, x, y, m *uint256.Int)) error {
	x, err := ctx.pop()
	if err != nil {
		return err
	}
	y, err := ctx.pop()
	if err != nil {
		return err
	}
	m, err := ctx.pop()
	if err != nil {
		return err
	}
	var z uint256.Int
	fn(&z, &x, &y, &m)
	return ctx.push(&z)
}

func setBool(z *uint256.Int, b bool) {
	if b {
		z.SetOne()
	} else {
		z.Clear()
	}
}

// capShift clamps a shift amount to [0, 255] before it is applied.
func capShift(s *uint256.Int) uint {
	if s.GtUint64(255) {
		return 255
	}
	return uint(s.Uint64())
}

func (in *Interpreter) opSha3(ctx *Context) error {
	offset, err := ctx.pop()
	if err != nil {
		return err
	}
	size, err := ctx.pop()
	if err != nil {
		return err
	}
	data, err := ctx.region(&offset, &size, in.memLimit)
	if err != nil {
		return err
	}
	h := in.hash(data)
	return ctx.push(new(uint256.Int).SetBytes(h[:]))
}

func (in *Interpreter) opCalldataLoad(ctx *Context, input *Input) error {
	offset, err := ctx.pop()
	if err != nil {
		return err
	}
	var word [32]byte
	if offset.IsUint64() && offset.Uint64() <= uint64(len(input.Calldata)) {
		copy(word[:], input.Calldata[offset.Uint64():])
	}
	return ctx.push(new(uint256.Int).SetBytes(word[:]))
}

// opCopy implements the CALLDATACOPY/CODECOPY shape: copy a zero-padded
// slice of src into memory at the popped destination.
func (in *Interpreter) opCopy(ctx *Context, src []byte) error {
	dest, err := ctx.pop()
	if err != nil {
		return err
	}
	offset, err := ctx.pop()
	if err != nil {
		return err
	}
	size, err := ctx.pop()
	if err != nil {
		return err
	}
	dst, err := ctx.region(&dest, &size, in.memLimit)
	if err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	// Zero-fill first; reads past the end of src stay zero.
	for i := range dst {
		dst[i] = 0
	}
	if offset.IsUint64() && offset.Uint64() < uint64(len(src)) {
		copy(dst, src[offset.Uint64():])
	}
	return nil
}

func (in *Interpreter) opMload(ctx *Context) error {
	offset, err := ctx.pop()
	if err != nil {
		return err
	}
	word := uint256.NewInt(32)
	data, err := ctx.region(&offset, word, in.memLimit)
	if err != nil {
		return err
	}
	return ctx.push(new(uint256.Int).SetBytes(data))
}

func (in *Interpreter) opMstore(ctx *Context) error {
	offset, err := ctx.pop()
	if err != nil {
		return err
	}
	val, err := ctx.pop()
	if err != nil {
		return err
	}
	word := uint256.NewInt(32)
	dst, err := ctx.region(&offset, word, in.memLimit)
	if err != nil {
		return err
	}
	b := val.Bytes32()
	copy(dst, b[:])
	return nil
}

func (in *Interpreter) opMstore8(ctx *Context) error {
	offset, err := ctx.pop()
	if err != nil {
		return err
	}
	val, err := ctx.pop()
	if err != nil {
		return err
	}
	one := uint256.NewInt(1)
	dst, err := ctx.region(&offset, one, in.memLimit)
	if err != nil {
		return err
	}
	dst[0] = byte(val.Uint64())
	return nil
}

func (in *Interpreter) opMcopy(ctx *Context) error {
	dest, err := ctx.pop()
	if err != nil {
		return err
	}
	src, err := ctx.pop()
	if err != nil {
		return err
	}
	size, err := ctx.pop()
	if err != nil {
		return err
	}
	n, err := wordToInt(&size)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	d, err := wordToInt(&dest)
	if err != nil {
		return err
	}
	s, err := wordToInt(&src)
	if err != nil {
		return err
	}
	// Bounds-check both ranges against the limit before adding, so the
	// sums cannot overflow the host int.
	if n > in.memLimit || d > in.memLimit-n || s > in.memLimit-n {
		return errKind(OutOfMemory)
	}
	// Grow once to cover both ranges before slicing, so neither slice
	// outlives a reallocation.
	needed := d + n
	if s+n > needed {
		needed = s + n
	}
	if err := ctx.grow(needed, in.memLimit); err != nil {
		return err
	}
	copy(ctx.Memory[d:d+n], ctx.Memory[s:s+n])
	return nil
}

func (in *Interpreter) opJump(ctx *Context) error {
	dest, err := ctx.pop()
	if err != nil {
		return err
	}
	return in.jumpTo(ctx, &dest)
}

func (in *Interpreter) opJumpi(ctx *Context) error {
	dest, err := ctx.pop()
	if err != nil {
		return err
	}
	cond, err := ctx.pop()
	if err != nil {
		return err
	}
	if cond.IsZero() {
		return nil
	}
	return in.jumpTo(ctx, &dest)
}

// jumpTo validates that dest addresses exactly a JUMPDEST token and moves pc
// there. The step loop's post-dispatch advance then skips the JUMPDEST
// itself.
func (in *Interpreter) jumpTo(ctx *Context, dest *uint256.Int) error {
	if !dest.IsUint64() {
		return errKind(InvalidJumpDest)
	}
	target := int(dest.Uint64())
	tok, ok := ctx.OpMap[target]
	if !ok {
		return errKind(InvalidJumpDest)
	}
	if p, ok := tok.(asm.Plain); !ok || p.Op != asm.JUMPDEST {
		return errKind(InvalidJumpDest)
	}
	ctx.PC = target
	return nil
}

func (in *Interpreter) opReturn(ctx *Context, revert bool) error {
	offset, err := ctx.pop()
	if err != nil {
		return err
	}
	size, err := ctx.pop()
	if err != nil {
		return err
	}
	data, err := ctx.region(&offset, &size, in.memLimit)
	if err != nil {
		return err
	}
	ctx.ReturnData = append([]byte(nil), data...)
	ctx.Reverted = revert
	ctx.Halted = true
	return nil
}
