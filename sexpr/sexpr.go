// Package sexpr parses the parenthesized text syntax for operation trees.
//
// A source file is a sequence of forms. A list form applies its head
// mnemonic to the remaining forms as operands; a bare mnemonic is a raw
// instruction taking its operands from the stack. Two heads are special:
// "if" lowers to the conditional macro and "seq" splices its body in place.
// Comments run from ";" to the end of the line.
package sexpr

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/purevm/purevm/asm"
)

// AST node types, parsed from source and lowered to asm nodes.

type sourceFile struct {
	Forms []*form `parser:"@@*"`
}

type form struct {
	Pos  lexer.Position
	List *list `parser:"  @@"`
	Atom *atom `parser:"| @@"`
}

type list struct {
	Items []*form `parser:"'(' @@* ')'"`
}

type atom struct {
	Hex *string `parser:"  @Hex"`
	Int *string `parser:"| @Int"`
	Str *string `parser:"| @String"`
	Sym *string `parser:"| @Ident"`
}

var sexprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[\s]+`},
	{Name: "Comment", Pattern: `;[^\n]*`},
	{Name: "Hex", Pattern: `0x[0-9a-fA-F]+`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[()]`},
})

var parser = participle.MustBuild[sourceFile](
	participle.Lexer(sexprLexer),
	participle.Elide("Whitespace", "Comment"),
)

// Parse lowers source text into operation-tree nodes.
func Parse(src string) ([]asm.Node, error) {
	file, err := parser.ParseString("", src)
	if err != nil {
		return nil, err
	}
	return lowerForms(file.Forms)
}

// Build parses source text and runs it through the whole assembly pipeline.
func Build(src string) ([]byte, error) {
	nodes, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return asm.Build(nodes...)
}

func lowerForms(forms []*form) ([]asm.Node, error) {
	nodes := make([]asm.Node, 0, len(forms))
	for _, f := range forms {
		n, err := lowerForm(f)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func lowerForm(f *form) (asm.Node, error) {
	if f.Atom != nil {
		return lowerAtom(f)
	}
	return lowerList(f)
}

func lowerAtom(f *form) (asm.Node, error) {
	a := f.Atom
	switch {
	case a.Hex != nil:
		v, ok := new(big.Int).SetString((*a.Hex)[2:], 16)
		if !ok {
			return nil, errAt(f, "malformed hex literal %q", *a.Hex)
		}
		return v, nil

	case a.Int != nil:
		v, ok := new(big.Int).SetString(*a.Int, 10)
		if !ok {
			return nil, errAt(f, "malformed integer literal %q", *a.Int)
		}
		return v, nil

	case a.Str != nil:
		return strings.Trim(*a.Str, `"`), nil

	case a.Sym != nil:
		// A bare mnemonic is a raw instruction: operands come from
		// whatever the surrounding code left on the stack.
		tok, err := symbolToken(*a.Sym)
		if err != nil {
			return nil, errAt(f, "%v", err)
		}
		return tok, nil
	}
	return nil, errAt(f, "empty atom")
}

func lowerList(f *form) (asm.Node, error) {
	items := f.List.Items
	if len(items) == 0 {
		return nil, errAt(f, "empty form")
	}
	head := items[0]
	if head.Atom == nil || head.Atom.Sym == nil {
		return nil, errAt(head, "form head must be a mnemonic")
	}
	name := *head.Atom.Sym

	switch strings.ToLower(name) {
	case "if":
		return lowerIf(f, items[1:])
	case "seq":
		body, err := lowerForms(items[1:])
		if err != nil {
			return nil, err
		}
		return body, nil
	}

	op, ok := asm.LookupName(name)
	if !ok {
		return nil, errAt(head, "unknown mnemonic %q", name)
	}
	args, err := lowerForms(items[1:])
	if err != nil {
		return nil, err
	}
	return asm.Apply(op.Code, args...), nil
}

// lowerIf accepts (if cond nonzero) and (if cond nonzero zero).
func lowerIf(f *form, args []*form) (asm.Node, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, errAt(f, "if takes 2 or 3 forms, got %d", len(args))
	}
	cond, err := lowerForm(args[0])
	if err != nil {
		return nil, err
	}
	nonZero, err := lowerForm(args[1])
	if err != nil {
		return nil, err
	}
	var zero asm.Node = []asm.Node{}
	if len(args) == 3 {
		if zero, err = lowerForm(args[2]); err != nil {
			return nil, err
		}
	}
	return &asm.If{Cond: cond, NonZero: nonZero, Zero: zero}, nil
}

// symbolToken maps a bare mnemonic to its token. The dupN and swapN families
// carry their parameter in the name.
func symbolToken(name string) (asm.Node, error) {
	lower := strings.ToLower(name)
	if n, ok := familyIndex(lower, "dup"); ok {
		return asm.Dup{N: n}, nil
	}
	if n, ok := familyIndex(lower, "swap"); ok {
		return asm.Swap{N: n}, nil
	}
	op, ok := asm.LookupName(name)
	if !ok {
		return nil, fmt.Errorf("unknown mnemonic %q", name)
	}
	if op.Code == asm.PUSH0 {
		return asm.Push{}, nil
	}
	return asm.Plain{Op: op.Code}, nil
}

func familyIndex(name, prefix string) (int, bool) {
	if !strings.HasPrefix(name, prefix) || len(name) == len(prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(name[len(prefix):])
	if err != nil || n < 1 || n > 16 {
		return 0, false
	}
	return n, true
}

func errAt(f *form, format string, args ...any) error {
	return fmt.Errorf("%s: %s", f.Pos, fmt.Sprintf(format, args...))
}
