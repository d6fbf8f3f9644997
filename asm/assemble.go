package asm

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// ---------------------------------------------------------------------------
// Tree assembler: nested operation trees -> flat token sequences
// ---------------------------------------------------------------------------

// Node is one element of an operation tree. Compile accepts:
//
//   - OpCode: a bare zero-input instruction
//   - *Expr: an N-ary application whose operand count must match the
//     opcode's table input count
//   - *If: the conditional macro
//   - int, uint64, *big.Int, *uint256.Int: a non-negative integer, pushed
//     as its minimal big-endian encoding (zero encodes as one 0x00 byte)
//   - []byte, string: a literal of at most 32 bytes, pushed as its own length
//   - []Node: a sub-sequence, spliced in place
//   - Token: passed through unchanged
type Node any

// Expr applies an opcode to operand sub-trees. Operands are listed in the
// opcode's documented stack order: the first operand ends up nearest the top.
type Expr struct {
	Op   OpCode
	Args []Node
}

// If is the conditional macro. It compiles to
//
//	<cond> <push L> JUMPI <zero> L:JUMPDEST <nonzero>
//
// Note there is no jump over the non-zero branch: when the zero branch does
// not halt or jump, control falls through into the non-zero branch.
type If struct {
	Cond    Node
	NonZero Node
	Zero    Node
}

// Apply builds an N-ary application of op to the given operands.
func Apply(op OpCode, args ...Node) *Expr {
	return &Expr{Op: op, Args: args}
}

// Compile lowers an operation tree into a pre-resolution Program. Labels
// allocated for If macros are unique within this one call only.
func Compile(nodes ...Node) (Program, error) {
	c := &compiler{}
	for _, n := range nodes {
		if err := c.compile(n); err != nil {
			return nil, err
		}
	}
	return c.prog, nil
}

type compiler struct {
	prog      Program
	nextLabel int
}

func (c *compiler) emit(t Token) {
	c.prog = append(c.prog, t)
}

func (c *compiler) compile(n Node) error {
	switch v := n.(type) {
	case Token:
		c.emit(v)
		return nil

	case OpCode:
		return c.compileOp(v, nil)

	case *Expr:
		return c.compileOp(v.Op, v.Args)

	case *If:
		return c.compileIf(v)

	case []Node:
		for _, sub := range v {
			if err := c.compile(sub); err != nil {
				return err
			}
		}
		return nil

	case []byte:
		return c.compileBytes(v)
	case string:
		return c.compileBytes([]byte(v))

	case int:
		if v < 0 {
			return fmt.Errorf("%w: negative literal %d", ErrInvalidAssembly, v)
		}
		return c.compileBytes(minimalBytes(uint256.NewInt(uint64(v))))
	case uint64:
		return c.compileBytes(minimalBytes(uint256.NewInt(v)))
	case *big.Int:
		if v.Sign() < 0 {
			return fmt.Errorf("%w: negative literal %s", ErrInvalidAssembly, v)
		}
		u, overflow := uint256.FromBig(v)
		if overflow {
			return fmt.Errorf("%w: literal %s wider than 32 bytes", ErrInvalidAssembly, v)
		}
		return c.compileBytes(minimalBytes(u))
	case *uint256.Int:
		return c.compileBytes(minimalBytes(v))

	default:
		return fmt.Errorf("%w: unrecognized node %T", ErrInvalidAssembly, n)
	}
}

func (c *compiler) compileOp(op OpCode, args []Node) error {
	desc, ok := LookupOp(op)
	if !ok {
		return fmt.Errorf("%w: no such opcode 0x%02x", ErrInvalidAssembly, byte(op))
	}
	if len(args) != desc.In {
		return fmt.Errorf("%w: %s takes %d operands, got %d",
			ErrInvalidAssembly, desc.Name, desc.In, len(args))
	}
	// Operands are pushed right to left so the first-listed one lands
	// nearest the top of the stack.
	for i := len(args) - 1; i >= 0; i-- {
		if err := c.compile(args[i]); err != nil {
			return err
		}
	}
	if op == PUSH0 {
		// Keep the canonical token form for the 0x5f byte.
		c.emit(Push{})
		return nil
	}
	c.emit(Plain{Op: op})
	return nil
}

func (c *compiler) compileIf(n *If) error {
	label := c.nextLabel
	c.nextLabel++

	if err := c.compile(n.Cond); err != nil {
		return err
	}
	c.emit(JumpPointer{Label: label})
	c.emit(Plain{Op: JUMPI})
	if err := c.compile(n.Zero); err != nil {
		return err
	}
	c.emit(JumpDest{Label: label})
	return c.compile(n.NonZero)
}

func (c *compiler) compileBytes(b []byte) error {
	if len(b) > 32 {
		return fmt.Errorf("%w: literal of %d bytes exceeds 32", ErrInvalidAssembly, len(b))
	}
	c.emit(Push{N: len(b), Value: b})
	return nil
}

// minimalBytes is the shortest big-endian encoding of x; zero is a single
// 0x00 byte, never the empty string (PUSH0 is only reachable through an
// explicit Push token).
func minimalBytes(x *uint256.Int) []byte {
	if x.IsZero() {
		return []byte{0}
	}
	return x.Bytes()
}
