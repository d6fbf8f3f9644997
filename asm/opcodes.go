package asm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// OpCode is a single byte of the EVM instruction set.
type OpCode byte

// 0x00 range - arithmetic ops.
const (
	STOP OpCode = iota
	ADD
	MUL
	SUB
	DIV
	SDIV
	MOD
	SMOD
	ADDMOD
	MULMOD
	EXP
	SIGNEXTEND
)

// 0x10 range - comparison and bitwise ops.
const (
	LT OpCode = iota + 0x10
	GT
	SLT
	SGT
	EQ
	ISZERO
	AND
	OR
	XOR
	NOT
	BYTE
	SHL
	SHR
	SAR

	SHA3 OpCode = 0x20
)

// 0x30 range - execution context.
const (
	ADDRESS OpCode = 0x30 + iota
	BALANCE
	ORIGIN
	CALLER
	CALLVALUE
	CALLDATALOAD
	CALLDATASIZE
	CALLDATACOPY
	CODESIZE
	CODECOPY
	GASPRICE
	EXTCODESIZE
	EXTCODECOPY
	RETURNDATASIZE
	RETURNDATACOPY
	EXTCODEHASH
)

// 0x40 range - block context.
const (
	BLOCKHASH OpCode = 0x40 + iota
	COINBASE
	TIMESTAMP
	NUMBER
	PREVRANDAO
	GASLIMIT
	CHAINID
	SELFBALANCE
	BASEFEE
	BLOBHASH
	BLOBBASEFEE
)

// 0x50 range - storage and control flow.
const (
	POP OpCode = 0x50 + iota
	MLOAD
	MSTORE
	MSTORE8
	SLOAD
	SSTORE
	JUMP
	JUMPI
	PC
	MSIZE
	GAS
	JUMPDEST
	TLOAD
	TSTORE
	MCOPY
	PUSH0
)

// 0xa0 range - logging.
const (
	LOG0 OpCode = 0xa0 + iota
	LOG1
	LOG2
	LOG3
	LOG4
)

// 0xf0 range - calls and halting.
const (
	CREATE OpCode = 0xf0 + iota
	CALL
	CALLCODE
	RETURN
	DELEGATECALL
	CREATE2

	STATICCALL   OpCode = 0xfa
	REVERT       OpCode = 0xfd
	INVALID      OpCode = 0xfe
	SELFDESTRUCT OpCode = 0xff
)

// Op describes one named instruction: its byte value and how many words it
// pops from and pushes to the stack. The PUSH1..32, DUP1..16 and SWAP1..16
// families are not listed here; they are carried by the Push, Dup and Swap
// token kinds, which encode the parameter in the opcode byte itself.
type Op struct {
	Name string
	Code OpCode
	In   int // stack inputs, 0..7
	Out  int // stack outputs, 0..1
}

var oplist = []Op{
	{Name: "STOP", Code: STOP},
	{Name: "ADD", Code: ADD, In: 2, Out: 1},
	{Name: "MUL", Code: MUL, In: 2, Out: 1},
	{Name: "SUB", Code: SUB, In: 2, Out: 1},
	{Name: "DIV", Code: DIV, In: 2, Out: 1},
	{Name: "SDIV", Code: SDIV, In: 2, Out: 1},
	{Name: "MOD", Code: MOD, In: 2, Out: 1},
	{Name: "SMOD", Code: SMOD, In: 2, Out: 1},
	{Name: "ADDMOD", Code: ADDMOD, In: 3, Out: 1},
	{Name: "MULMOD", Code: MULMOD, In: 3, Out: 1},
	{Name: "EXP", Code: EXP, In: 2, Out: 1},
	{Name: "SIGNEXTEND", Code: SIGNEXTEND, In: 2, Out: 1},

	{Name: "LT", Code: LT, In: 2, Out: 1},
	{Name: "GT", Code: GT, In: 2, Out: 1},
	{Name: "SLT", Code: SLT, In: 2, Out: 1},
	{Name: "SGT", Code: SGT, In: 2, Out: 1},
	{Name: "EQ", Code: EQ, In: 2, Out: 1},
	{Name: "ISZERO", Code: ISZERO, In: 1, Out: 1},
	{Name: "AND", Code: AND, In: 2, Out: 1},
	{Name: "OR", Code: OR, In: 2, Out: 1},
	{Name: "XOR", Code: XOR, In: 2, Out: 1},
	{Name: "NOT", Code: NOT, In: 1, Out: 1},
	{Name: "BYTE", Code: BYTE, In: 2, Out: 1},
	{Name: "SHL", Code: SHL, In: 2, Out: 1},
	{Name: "SHR", Code: SHR, In: 2, Out: 1},
	{Name: "SAR", Code: SAR, In: 2, Out: 1},

	{Name: "SHA3", Code: SHA3, In: 2, Out: 1},

	{Name: "ADDRESS", Code: ADDRESS, Out: 1},
	{Name: "BALANCE", Code: BALANCE, In: 1, Out: 1},
	{Name: "ORIGIN", Code: ORIGIN, Out: 1},
	{Name: "CALLER", Code: CALLER, Out: 1},
	{Name: "CALLVALUE", Code: CALLVALUE, Out: 1},
	{Name: "CALLDATALOAD", Code: CALLDATALOAD, In: 1, Out: 1},
	{Name: "CALLDATASIZE", Code: CALLDATASIZE, Out: 1},
	{Name: "CALLDATACOPY", Code: CALLDATACOPY, In: 3},
	{Name: "CODESIZE", Code: CODESIZE, Out: 1},
	{Name: "CODECOPY", Code: CODECOPY, In: 3},
	{Name: "GASPRICE", Code: GASPRICE, Out: 1},
	{Name: "EXTCODESIZE", Code: EXTCODESIZE, In: 1, Out: 1},
	{Name: "EXTCODECOPY", Code: EXTCODECOPY, In: 4},
	{Name: "RETURNDATASIZE", Code: RETURNDATASIZE, Out: 1},
	{Name: "RETURNDATACOPY", Code: RETURNDATACOPY, In: 3},
	{Name: "EXTCODEHASH", Code: EXTCODEHASH, In: 1, Out: 1},

	{Name: "BLOCKHASH", Code: BLOCKHASH, In: 1, Out: 1},
	{Name: "COINBASE", Code: COINBASE, Out: 1},
	{Name: "TIMESTAMP", Code: TIMESTAMP, Out: 1},
	{Name: "NUMBER", Code: NUMBER, Out: 1},
	{Name: "PREVRANDAO", Code: PREVRANDAO, Out: 1},
	{Name: "GASLIMIT", Code: GASLIMIT, Out: 1},
	{Name: "CHAINID", Code: CHAINID, Out: 1},
	{Name: "SELFBALANCE", Code: SELFBALANCE, Out: 1},
	{Name: "BASEFEE", Code: BASEFEE, Out: 1},
	{Name: "BLOBHASH", Code: BLOBHASH, In: 1, Out: 1},
	{Name: "BLOBBASEFEE", Code: BLOBBASEFEE, Out: 1},

	{Name: "POP", Code: POP, In: 1},
	{Name: "MLOAD", Code: MLOAD, In: 1, Out: 1},
	{Name: "MSTORE", Code: MSTORE, In: 2},
	{Name: "MSTORE8", Code: MSTORE8, In: 2},
	{Name: "SLOAD", Code: SLOAD, In: 1, Out: 1},
	{Name: "SSTORE", Code: SSTORE, In: 2},
	{Name: "JUMP", Code: JUMP, In: 1},
	{Name: "JUMPI", Code: JUMPI, In: 2},
	{Name: "PC", Code: PC, Out: 1},
	{Name: "MSIZE", Code: MSIZE, Out: 1},
	{Name: "GAS", Code: GAS, Out: 1},
	{Name: "JUMPDEST", Code: JUMPDEST},
	{Name: "TLOAD", Code: TLOAD, In: 1, Out: 1},
	{Name: "TSTORE", Code: TSTORE, In: 2},
	{Name: "MCOPY", Code: MCOPY, In: 3},
	{Name: "PUSH0", Code: PUSH0, Out: 1},

	{Name: "LOG0", Code: LOG0, In: 2},
	{Name: "LOG1", Code: LOG1, In: 3},
	{Name: "LOG2", Code: LOG2, In: 4},
	{Name: "LOG3", Code: LOG3, In: 5},
	{Name: "LOG4", Code: LOG4, In: 6},

	{Name: "CREATE", Code: CREATE, In: 3, Out: 1},
	{Name: "CALL", Code: CALL, In: 7, Out: 1},
	{Name: "CALLCODE", Code: CALLCODE, In: 7, Out: 1},
	{Name: "RETURN", Code: RETURN, In: 2},
	{Name: "DELEGATECALL", Code: DELEGATECALL, In: 6, Out: 1},
	{Name: "CREATE2", Code: CREATE2, In: 4, Out: 1},
	{Name: "STATICCALL", Code: STATICCALL, In: 6, Out: 1},
	{Name: "REVERT", Code: REVERT, In: 2},
	{Name: "SELFDESTRUCT", Code: SELFDESTRUCT, In: 1},
}

var (
	opsByCode [256]*Op
	opsByName map[string]*Op
)

func init() {
	opsByName = make(map[string]*Op, len(oplist))
	for i := range oplist {
		op := &oplist[i]
		if opsByCode[op.Code] != nil {
			panic(fmt.Sprintf("asm: duplicate opcode 0x%02x", byte(op.Code)))
		}
		opsByCode[op.Code] = op
		opsByName[op.Name] = op
	}
	// KECCAK256 is the post-Paris name for the same byte.
	opsByName["KECCAK256"] = opsByCode[SHA3]
}

// LookupOp returns the descriptor for the given byte value.
func LookupOp(code OpCode) (*Op, bool) {
	op := opsByCode[code]
	return op, op != nil
}

// LookupName returns the descriptor for the given mnemonic,
// case-insensitively.
func LookupName(name string) (*Op, bool) {
	op, ok := opsByName[strings.ToUpper(name)]
	return op, ok
}

// String returns the mnemonic for op, or a hex form for unassigned bytes.
func (op OpCode) String() string {
	if d := opsByCode[op]; d != nil {
		return d.Name
	}
	switch {
	case op >= PUSH0 && op <= 0x7f:
		return fmt.Sprintf("PUSH%d", int(op-PUSH0))
	case op >= 0x80 && op <= 0x8f:
		return fmt.Sprintf("DUP%d", int(op-0x7f))
	case op >= 0x90 && op <= 0x9f:
		return fmt.Sprintf("SWAP%d", int(op-0x8f))
	}
	return fmt.Sprintf("opcode 0x%02x not defined", byte(op))
}
