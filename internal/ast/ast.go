// Package ast implements the AST (spec.md §3, §4.2): the semantic tree
// produced by lowering a CST, with whitespace and comments erased and
// syntactic failures embedded as Error nodes rather than aborting the
// lowering pass.
package ast

import (
	"fmt"

	"github.com/sunholo/ailang/internal/address"
	"github.com/sunholo/ailang/internal/cst"
)

// ID uniquely identifies an AST node within a module.
type ID uint32

// Kind enumerates every AST node shape named in spec.md §3, plus the
// TagPattern supplement documented in DESIGN.md (Tag-pattern payload
// syntax).
type Kind int

const (
	KindInt Kind = iota
	KindText
	KindTextPart
	KindIdentifier
	KindSymbol
	KindList
	KindStruct
	KindStructAccess
	KindFunction
	KindCall
	KindAssignment
	KindMatch
	KindMatchCase
	KindOrPattern
	KindTagPattern // supplement: Symbol(payload) in pattern position
	KindError
)

func (k Kind) String() string {
	names := [...]string{
		"Int", "Text", "TextPart", "Identifier", "Symbol", "List", "Struct",
		"StructAccess", "Function", "Call", "Assignment", "Match", "MatchCase",
		"OrPattern", "TagPattern", "Error",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// StructField is a (optional key, value) pair; a nil Key means the
// shorthand `[foo]` form (spec.md §4.2), resolved to `[Foo: foo]` by
// the AST lowerer (the key is filled in eagerly, so Key is rarely nil
// after lowering — see lower.go).
type StructField struct {
	Key   *Node
	Value *Node
}

// Node is the single recursive AST variant; which fields are meaningful
// depends on Kind (see the per-field comments).
type Node struct {
	ID   ID
	Kind Kind
	Span address.Span

	// Leaves
	IntValue  string // KindInt: decimal digits
	Text      string // KindIdentifier/KindSymbol: name; KindTextPart: literal text
	TagSymbol string // KindTagPattern: the tag's symbol name

	// Composite payloads
	Parts      []*Node       // KindText: Text/TextPart/interpolated expr parts
	Items      []*Node       // KindList/KindOrPattern: elements
	Fields     []StructField // KindStruct
	Receiver   *Node         // KindStructAccess/KindCall
	Key        *Node         // KindStructAccess: Identifier key
	Parameters []*Node       // KindFunction: parameter patterns
	Body       *Node         // KindFunction/KindAssignment(Body)/KindMatchCase
	Fuzzable   bool          // KindFunction
	Arguments  []*Node       // KindCall
	IsFromPipe bool          // KindCall: built by desugaring a `|` pipe
	IsPublic   bool          // KindAssignment
	Name       *Node         // KindAssignment: Identifier being bound (nil for pattern assignment)
	Pattern    *Node         // KindAssignment(Body)/KindMatchCase: the LHS/case pattern
	Expression *Node         // KindMatch: scrutinee
	Cases      []*Node       // KindMatch: MatchCase nodes
	Value      *Node         // KindTagPattern: optional payload pattern

	Errors []*Error // KindError
}

// Error describes one AST-level lowering failure (spec.md §7).
type Error struct {
	Code    string
	Message string
	Span    address.Span
}

// Module is the full lowering result for one module: the top-level
// sequence of ASTs plus the bidirectional id maps (spec.md §4.2).
type Module struct {
	Address address.Module
	Top     []*Node
	ToCST   map[ID]cst.ID
	FromCST map[cst.ID][]ID

	cache map[ID]*Node
}

// Find looks up a node by id. Unlike cst.Tree.Find this returns ok
// rather than panicking, since ast ids are handed around more freely
// (e.g. by HIR lowering) and a miss there is a caller bug worth a
// normal error, not necessarily an invariant violation.
func (m *Module) Find(id ID) (*Node, bool) {
	n, ok := m.byID()[id]
	return n, ok
}

func (m *Module) byID() map[ID]*Node {
	if m.cache == nil {
		m.cache = map[ID]*Node{}
		for _, n := range m.Top {
			Walk(n, func(x *Node) { m.cache[x.ID] = x })
		}
	}
	return m.cache
}

// Walk visits n and its descendants in pre-order.
func Walk(n *Node, visit func(*Node)) {
	if n == nil {
		return
	}
	visit(n)
	for _, p := range n.Parts {
		Walk(p, visit)
	}
	for _, it := range n.Items {
		Walk(it, visit)
	}
	for _, f := range n.Fields {
		Walk(f.Key, visit)
		Walk(f.Value, visit)
	}
	Walk(n.Receiver, visit)
	Walk(n.Key, visit)
	for _, p := range n.Parameters {
		Walk(p, visit)
	}
	Walk(n.Body, visit)
	for _, a := range n.Arguments {
		Walk(a, visit)
	}
	Walk(n.Name, visit)
	Walk(n.Pattern, visit)
	Walk(n.Expression, visit)
	for _, c := range n.Cases {
		Walk(c, visit)
	}
	Walk(n.Value, visit)
}
