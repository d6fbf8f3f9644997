package vm

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/purevm/purevm/asm"
	"github.com/purevm/purevm/keccak"
)

// run builds an operation tree and executes it with no calldata or value.
func run(t *testing.T, nodes ...asm.Node) (*Result, error) {
	t.Helper()
	code, err := asm.Build(nodes...)
	require.NoError(t, err)
	return New().ExecBytecode(code, nil, nil)
}

// top runs the tree and returns the top of the final stack.
func top(t *testing.T, nodes ...asm.Node) *uint256.Int {
	t.Helper()
	res, err := run(t, append(nodes, asm.STOP)...)
	require.NoError(t, err)
	require.NotEmpty(t, res.Stack)
	return &res.Stack[len(res.Stack)-1]
}

func word(s string) *uint256.Int {
	v, err := uint256.FromHex(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestArithmeticWraps(t *testing.T) {
	maxWord := word("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")

	require.Equal(t, uint256.NewInt(7), top(t, asm.Apply(asm.ADD, 3, 4)))
	// Addition wraps modulo 2^256.
	require.True(t, top(t, asm.Apply(asm.ADD, maxWord, 1)).IsZero())
	// Subtraction wraps the other way.
	require.Equal(t, maxWord, top(t, asm.Apply(asm.SUB, 0, 1)))
	require.Equal(t, uint256.NewInt(12), top(t, asm.Apply(asm.MUL, 3, 4)))
	require.Equal(t, uint256.NewInt(3), top(t, asm.Apply(asm.DIV, 7, 2)))
	require.Equal(t, uint256.NewInt(1), top(t, asm.Apply(asm.MOD, 7, 2)))
	require.Equal(t, uint256.NewInt(1024), top(t, asm.Apply(asm.EXP, 2, 10)))
}

func TestDivisionByZeroYieldsZero(t *testing.T) {
	require.True(t, top(t, asm.Apply(asm.DIV, 7, 0)).IsZero())
	require.True(t, top(t, asm.Apply(asm.MOD, 7, 0)).IsZero())
	require.True(t, top(t, asm.Apply(asm.SDIV, 7, 0)).IsZero())
	require.True(t, top(t, asm.Apply(asm.SMOD, 7, 0)).IsZero())
	require.True(t, top(t, asm.Apply(asm.ADDMOD, 3, 4, 0)).IsZero())
	require.True(t, top(t, asm.Apply(asm.MULMOD, 3, 4, 0)).IsZero())
}

func TestSignedArithmetic(t *testing.T) {
	negOne := word("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	negSeven := new(uint256.Int).Neg(uint256.NewInt(7))

	// -7 / 2 truncates toward zero: -3.
	require.Equal(t, new(uint256.Int).Neg(uint256.NewInt(3)),
		top(t, asm.Apply(asm.SDIV, negSeven, 2)))
	// -7 % 2 keeps the dividend's sign: -1.
	require.Equal(t, negOne, top(t, asm.Apply(asm.SMOD, negSeven, 2)))

	require.Equal(t, uint256.NewInt(1), top(t, asm.Apply(asm.SLT, negOne, 0)))
	require.Equal(t, uint256.NewInt(0), top(t, asm.Apply(asm.SGT, negOne, 0)))
}

func TestSignExtend(t *testing.T) {
	// 0xff as a signed byte is -1.
	negOne := word("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	require.Equal(t, negOne, top(t, asm.Apply(asm.SIGNEXTEND, 0, 0xff)))
	// 0x7f is positive, nothing to extend.
	require.Equal(t, uint256.NewInt(0x7f), top(t, asm.Apply(asm.SIGNEXTEND, 0, 0x7f)))
	// Byte index 31 and beyond leaves the value untouched.
	require.Equal(t, uint256.NewInt(0xff), top(t, asm.Apply(asm.SIGNEXTEND, 31, 0xff)))
}

func TestComparisons(t *testing.T) {
	require.Equal(t, uint256.NewInt(1), top(t, asm.Apply(asm.LT, 1, 2)))
	require.Equal(t, uint256.NewInt(0), top(t, asm.Apply(asm.LT, 2, 1)))
	require.Equal(t, uint256.NewInt(1), top(t, asm.Apply(asm.GT, 2, 1)))
	require.Equal(t, uint256.NewInt(1), top(t, asm.Apply(asm.EQ, 5, 5)))
	require.Equal(t, uint256.NewInt(0), top(t, asm.Apply(asm.EQ, 5, 6)))
	require.Equal(t, uint256.NewInt(1), top(t, asm.Apply(asm.ISZERO, 0)))
	require.Equal(t, uint256.NewInt(0), top(t, asm.Apply(asm.ISZERO, 3)))
}

func TestBitwise(t *testing.T) {
	require.Equal(t, uint256.NewInt(0b1000), top(t, asm.Apply(asm.AND, 0b1100, 0b1010)))
	require.Equal(t, uint256.NewInt(0b1110), top(t, asm.Apply(asm.OR, 0b1100, 0b1010)))
	require.Equal(t, uint256.NewInt(0b0110), top(t, asm.Apply(asm.XOR, 0b1100, 0b1010)))
	require.Equal(t,
		word("0xfffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffe"),
		top(t, asm.Apply(asm.NOT, 1)))
	// BYTE indexes big-endian from the most significant end.
	v := word("0x102030000000000000000000000000000000000000000000000000000000000")
	require.Equal(t, uint256.NewInt(2), top(t, asm.Apply(asm.BYTE, 1, v)))
	require.Equal(t, uint256.NewInt(0), top(t, asm.Apply(asm.BYTE, 31, v)))
}

func TestShiftsCapAt255(t *testing.T) {
	require.Equal(t, uint256.NewInt(8), top(t, asm.Apply(asm.SHL, 3, 1)))
	require.Equal(t, uint256.NewInt(1), top(t, asm.Apply(asm.SHR, 3, 8)))

	// Shift amounts above 255 are clamped to 255 before applying.
	topBit := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	require.Equal(t, topBit, top(t, asm.Apply(asm.SHL, 300, 1)))
	require.Equal(t, uint256.NewInt(1), top(t, asm.Apply(asm.SHR, 300, topBit)))

	// SAR of a negative value saturates to all ones at the clamp.
	negOne := word("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	require.Equal(t, negOne, top(t, asm.Apply(asm.SAR, 1000, topBit)))
	// SAR of a positive value behaves like SHR.
	require.Equal(t, uint256.NewInt(2), top(t, asm.Apply(asm.SAR, 1, 4)))
}

func TestDupAndSwap(t *testing.T) {
	res, err := run(t, 1, 2, asm.Dup{N: 2}, asm.STOP)
	require.NoError(t, err)
	require.Len(t, res.Stack, 3)
	require.Equal(t, uint256.NewInt(1), &res.Stack[2])

	res, err = run(t, 1, 2, asm.Swap{N: 1}, asm.STOP)
	require.NoError(t, err)
	require.Len(t, res.Stack, 2)
	require.Equal(t, uint256.NewInt(1), &res.Stack[1])
	require.Equal(t, uint256.NewInt(2), &res.Stack[0])
}

func TestStackUnderflow(t *testing.T) {
	_, err := run(t, asm.Plain{Op: asm.ADD}, asm.STOP)
	require.True(t, IsKind(err, StackUnderflow), "got %v", err)

	_, err = run(t, 1, asm.Dup{N: 2}, asm.STOP)
	require.True(t, IsKind(err, StackUnderflow), "got %v", err)

	_, err = run(t, 1, asm.Swap{N: 1}, asm.STOP)
	require.True(t, IsKind(err, StackUnderflow), "got %v", err)
}

func TestStackOverflow(t *testing.T) {
	nodes := make([]asm.Node, StackLimit+1)
	for i := range nodes {
		nodes[i] = 1
	}
	_, err := run(t, nodes, asm.STOP)
	require.True(t, IsKind(err, StackOverflow), "got %v", err)
}

func TestMemoryRoundTrip(t *testing.T) {
	v := word("0x112233445566778899aabbccddeeff00112233445566778899aabbccddeeff00")
	require.Equal(t, v, top(t,
		asm.Apply(asm.MSTORE, 64, v),
		asm.Apply(asm.MLOAD, 64),
	))
}

func TestMemoryZeroExtension(t *testing.T) {
	// Reading fresh memory yields zeros and grows to cover the read.
	res, err := run(t, asm.Apply(asm.MLOAD, 100), asm.MSIZE, asm.STOP)
	require.NoError(t, err)
	require.Len(t, res.Stack, 2)
	require.True(t, res.Stack[0].IsZero())
	require.Equal(t, uint256.NewInt(132), &res.Stack[1])
}

func TestMstore8(t *testing.T) {
	// Only the low byte of the value is written.
	require.Equal(t,
		word("0xab00000000000000000000000000000000000000000000000000000000000000"),
		top(t,
			asm.Apply(asm.MSTORE8, 0, 0x1234ab),
			asm.Apply(asm.MLOAD, 0),
		))
}

func TestMemoryLimit(t *testing.T) {
	_, err := run(t, asm.Apply(asm.MLOAD, 20_000_000), asm.STOP)
	require.True(t, IsKind(err, OutOfMemory), "got %v", err)

	// A tighter configured limit trips sooner.
	code, err := asm.Build(asm.Apply(asm.MLOAD, 1024), asm.STOP)
	require.NoError(t, err)
	_, err = New(WithMemoryLimit(512)).ExecBytecode(code, nil, nil)
	require.True(t, IsKind(err, OutOfMemory), "got %v", err)
}

func TestNearMaxIntOffsets(t *testing.T) {
	// Offsets that fit the host int but sit near its ceiling must fault
	// as out-of-memory, not wrap negative in the offset+size arithmetic.
	huge := uint256.NewInt(uint64(1)<<63 - 32)

	_, err := run(t, asm.Apply(asm.MLOAD, huge), asm.STOP)
	require.True(t, IsKind(err, OutOfMemory), "got %v", err)

	_, err = run(t, asm.Apply(asm.MSTORE, huge, 1), asm.STOP)
	require.True(t, IsKind(err, OutOfMemory), "got %v", err)

	_, err = run(t, asm.Apply(asm.SHA3, huge, 32), asm.STOP)
	require.True(t, IsKind(err, OutOfMemory), "got %v", err)

	src := uint256.NewInt(uint64(1)<<63 - 16)
	_, err = run(t, asm.Apply(asm.MCOPY, 0, src, 32), asm.STOP)
	require.True(t, IsKind(err, OutOfMemory), "got %v", err)

	_, err = run(t, asm.Apply(asm.MCOPY, src, 0, 32), asm.STOP)
	require.True(t, IsKind(err, OutOfMemory), "got %v", err)
}

func TestOffsetOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 64)
	_, err := run(t, asm.Apply(asm.MLOAD, huge), asm.STOP)
	require.True(t, IsKind(err, ValueOverflow), "got %v", err)
}

func TestMcopy(t *testing.T) {
	v := word("0x112233445566778899aabbccddeeff00112233445566778899aabbccddeeff00")
	require.Equal(t, v, top(t,
		asm.Apply(asm.MSTORE, 0, v),
		asm.Apply(asm.MCOPY, 64, 0, 32),
		asm.Apply(asm.MLOAD, 64),
	))
}

func TestMcopyOverlap(t *testing.T) {
	// Forward-overlapping copy behaves like memmove: the destination sees
	// the original source bytes.
	v := word("0x102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")
	require.Equal(t,
		word("0x102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"),
		top(t,
			asm.Apply(asm.MSTORE, 0, v),
			asm.Apply(asm.MCOPY, 1, 0, 32),
			asm.Apply(asm.MLOAD, 0),
		))
}

func TestConditionalBranches(t *testing.T) {
	// Non-zero condition jumps over the zero branch.
	res, err := run(t, &asm.If{Cond: 1, NonZero: asm.Node(42), Zero: asm.Node(7)}, asm.STOP)
	require.NoError(t, err)
	require.Len(t, res.Stack, 1)
	require.Equal(t, uint256.NewInt(42), &res.Stack[0])
}

func TestConditionalZeroBranchFallsThrough(t *testing.T) {
	// The zero branch has no jump over the non-zero branch: when it does
	// not halt, execution continues into the non-zero branch.
	res, err := run(t, &asm.If{Cond: 0, NonZero: asm.Node(42), Zero: asm.Node(7)}, asm.STOP)
	require.NoError(t, err)
	require.Len(t, res.Stack, 2)
	require.Equal(t, uint256.NewInt(7), &res.Stack[0])
	require.Equal(t, uint256.NewInt(42), &res.Stack[1])
}

func TestConditionalZeroBranchHalts(t *testing.T) {
	res, err := run(t, &asm.If{
		Cond:    0,
		NonZero: asm.Node(42),
		Zero:    []asm.Node{7, asm.STOP},
	}, asm.STOP)
	require.NoError(t, err)
	require.Len(t, res.Stack, 1)
	require.Equal(t, uint256.NewInt(7), &res.Stack[0])
}

func TestInvalidJumpTarget(t *testing.T) {
	// Offset 0 is the start of a push, not a JUMPDEST.
	_, err := run(t, asm.Apply(asm.JUMP, 0), asm.STOP)
	require.True(t, IsKind(err, InvalidJumpDest), "got %v", err)

	// A target outside the program entirely.
	_, err = run(t, asm.Apply(asm.JUMP, 10_000), asm.STOP)
	require.True(t, IsKind(err, InvalidJumpDest), "got %v", err)
}

func TestRunningOffTheEnd(t *testing.T) {
	_, err := run(t, 1)
	require.True(t, IsKind(err, PCOutOfBounds), "got %v", err)

	_, err = New().ExecBytecode(nil, nil, nil)
	require.True(t, IsKind(err, PCOutOfBounds), "got %v", err)
}

func TestProgramCounter(t *testing.T) {
	res, err := run(t, asm.Plain{Op: asm.PC}, asm.Plain{Op: asm.PC}, asm.STOP)
	require.NoError(t, err)
	require.Len(t, res.Stack, 2)
	require.Equal(t, uint256.NewInt(0), &res.Stack[0])
	require.Equal(t, uint256.NewInt(1), &res.Stack[1])
}

func TestCalldata(t *testing.T) {
	code, err := asm.Build(
		asm.CALLDATASIZE,
		asm.Apply(asm.CALLDATALOAD, 0),
		asm.STOP,
	)
	require.NoError(t, err)

	data := []byte{0xaa, 0xbb}
	res, err := New().ExecBytecode(code, data, nil)
	require.NoError(t, err)
	require.Len(t, res.Stack, 2)
	require.Equal(t, uint256.NewInt(2), &res.Stack[0])
	// Loads past the end of calldata read zeros.
	require.Equal(t,
		word("0xaabb000000000000000000000000000000000000000000000000000000000000"),
		&res.Stack[1])
}

func TestCalldataCopy(t *testing.T) {
	code, err := asm.Build(
		asm.Apply(asm.CALLDATACOPY, 0, 1, 32),
		asm.Apply(asm.MLOAD, 0),
		asm.STOP,
	)
	require.NoError(t, err)

	res, err := New().ExecBytecode(code, []byte{0x01, 0x02, 0x03}, nil)
	require.NoError(t, err)
	require.Equal(t,
		word("0x203000000000000000000000000000000000000000000000000000000000000"),
		&res.Stack[0])
}

func TestCallValue(t *testing.T) {
	code, err := asm.Build(asm.CALLVALUE, asm.STOP)
	require.NoError(t, err)
	res, err := New().ExecBytecode(code, nil, uint256.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(5), &res.Stack[0])
}

func TestCodeIntrospection(t *testing.T) {
	code, err := asm.Build(asm.CODESIZE, asm.STOP)
	require.NoError(t, err)
	res, err := New().ExecBytecode(code, nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(uint64(len(code))), &res.Stack[0])

	// CODECOPY reads the program's own encoded bytes.
	code, err = asm.Build(
		asm.Apply(asm.CODECOPY, 0, 0, 1),
		asm.Apply(asm.RETURN, 0, 1),
	)
	require.NoError(t, err)
	ret, reverted, err := New().ExecCall(code, nil, nil)
	require.NoError(t, err)
	require.False(t, reverted)
	require.Equal(t, code[:1], ret)
}

func TestSha3(t *testing.T) {
	// Known digest of the empty input.
	require.Equal(t,
		word("0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"),
		top(t, asm.Apply(asm.SHA3, 0, 0)))

	// Hashing memory contents matches hashing the same bytes directly.
	v := word("0xdeadbeef")
	b := v.Bytes32()
	want := keccak.Sum256(b[:])
	require.Equal(t, new(uint256.Int).SetBytes(want[:]), top(t,
		asm.Apply(asm.MSTORE, 0, v),
		asm.Apply(asm.SHA3, 0, 32),
	))
}

func TestHashInjection(t *testing.T) {
	fixed := func([]byte) [32]byte {
		var h [32]byte
		h[31] = 0x2a
		return h
	}
	code, err := asm.Build(asm.Apply(asm.SHA3, 0, 0), asm.STOP)
	require.NoError(t, err)
	res, err := New(WithHash(fixed)).ExecBytecode(code, nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(0x2a), &res.Stack[0])
}

func TestTransientStorage(t *testing.T) {
	// Unwritten keys read as zero; writes round-trip within a run.
	res, err := run(t,
		asm.Apply(asm.TLOAD, 99),
		asm.Apply(asm.TSTORE, 7, 1234),
		asm.Apply(asm.TLOAD, 7),
		asm.STOP,
	)
	require.NoError(t, err)
	require.Len(t, res.Stack, 2)
	require.True(t, res.Stack[0].IsZero())
	require.Equal(t, uint256.NewInt(1234), &res.Stack[1])
}

func TestTransientStorageNotShared(t *testing.T) {
	in := New()
	code, err := asm.Build(
		asm.Apply(asm.TSTORE, 1, 5),
		asm.Apply(asm.TLOAD, 1),
		asm.STOP,
	)
	require.NoError(t, err)
	res, err := in.ExecBytecode(code, nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(5), &res.Stack[0])

	// A fresh run on the same Interpreter starts with empty storage.
	code, err = asm.Build(asm.Apply(asm.TLOAD, 1), asm.STOP)
	require.NoError(t, err)
	res, err = in.ExecBytecode(code, nil, nil)
	require.NoError(t, err)
	require.True(t, res.Stack[0].IsZero())
}

func TestReturnAndRevert(t *testing.T) {
	res, err := run(t,
		asm.Apply(asm.MSTORE, 0, 0xcafe),
		asm.Apply(asm.RETURN, 30, 2),
	)
	require.NoError(t, err)
	require.False(t, res.Reverted)
	require.Equal(t, []byte{0xca, 0xfe}, res.ReturnData)

	res, err = run(t,
		asm.Apply(asm.MSTORE, 0, 0xcafe),
		asm.Apply(asm.REVERT, 30, 2),
	)
	require.NoError(t, err)
	require.True(t, res.Reverted)
	require.Equal(t, []byte{0xca, 0xfe}, res.ReturnData)
}

func TestStopClearsReturnData(t *testing.T) {
	res, err := run(t, 1, asm.STOP)
	require.NoError(t, err)
	require.Empty(t, res.ReturnData)
	require.False(t, res.Reverted)
}

func TestInvalidInstruction(t *testing.T) {
	code := []byte{0x60, 0x01, 0xfe, 0x01, 0x02}
	_, err := New().ExecBytecode(code, nil, nil)
	require.True(t, IsKind(err, InvalidOperation), "got %v", err)
}

func TestImpureRejected(t *testing.T) {
	_, err := run(t, asm.Apply(asm.SLOAD, 0), asm.STOP)
	require.True(t, IsKind(err, Impure), "got %v", err)

	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, asm.SLOAD, e.Op)

	_, err = run(t, asm.Apply(asm.LOG1, 0, 0, 55), asm.STOP)
	require.True(t, IsKind(err, Impure), "got %v", err)
}

func TestExecRejectsUnresolvedProgram(t *testing.T) {
	prog, err := asm.Compile(&asm.If{Cond: 1, NonZero: asm.STOP, Zero: asm.STOP})
	require.NoError(t, err)
	_, err = New().Exec(prog, nil, nil)
	require.ErrorIs(t, err, asm.ErrInvalidAssembly)
}

func TestExecCall(t *testing.T) {
	code, err := asm.Build(
		asm.Apply(asm.MSTORE, 0, 7),
		asm.Apply(asm.RETURN, 0, 32),
	)
	require.NoError(t, err)
	ret, reverted, err := New().ExecCall(code, nil, nil)
	require.NoError(t, err)
	require.False(t, reverted)
	require.Len(t, ret, 32)
	require.Equal(t, byte(7), ret[31])
}

func TestExecCallEscalatesFaults(t *testing.T) {
	code, err := asm.Build(asm.Apply(asm.SLOAD, 0), asm.STOP)
	require.NoError(t, err)
	_, _, err = New().ExecCall(code, nil, nil)
	require.True(t, IsKind(err, Impure), "got %v", err)
}

func TestConstructorReturnsRuntimeCode(t *testing.T) {
	runtime, err := asm.Build(
		asm.Apply(asm.MSTORE, 0, 1),
		asm.Apply(asm.RETURN, 0, 32),
	)
	require.NoError(t, err)

	initCode, err := asm.Constructor(runtime)
	require.NoError(t, err)

	ret, reverted, err := New().ExecCall(initCode, nil, nil)
	require.NoError(t, err)
	require.False(t, reverted)
	require.Equal(t, runtime, ret)
}
