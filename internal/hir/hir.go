// Package hir implements the HIR (spec.md §3, §4.3): the scope-free,
// name-resolved tree produced by lowering an AST, where every binding
// is addressed by a hierarchical id rather than a lexical name.
package hir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sunholo/ailang/internal/address"
)

// Component is one segment of a hierarchical id: either purely
// positional (Name == "") or a disambiguated name (spec.md §3:
// "Named{name, disambiguator}").
type Component struct {
	Name          string
	Disambiguator int
}

func (c Component) String() string {
	if c.Name == "" {
		return strconv.Itoa(c.Disambiguator)
	}
	if c.Disambiguator == 0 {
		return c.Name
	}
	return fmt.Sprintf("%s#%d", c.Name, c.Disambiguator)
}

// ID is a structured hir-id: `module : k1 : k2 : …` (spec.md §3).
type ID struct {
	Module address.Module
	Path   []Component
}

func (id ID) String() string {
	var b strings.Builder
	b.WriteString(id.Module.String())
	for _, c := range id.Path {
		b.WriteByte(':')
		b.WriteString(c.String())
	}
	return b.String()
}

// Child derives a new id by appending one path component.
func (id ID) Child(c Component) ID {
	path := make([]Component, len(id.Path)+1)
	copy(path, id.Path)
	path[len(id.Path)] = c
	return ID{Module: id.Module, Path: path}
}

// Key returns a stable, unambiguous string uniquely identifying this
// id. ID itself can't be a map key or compared with == — both Path and
// the embedded address.Module carry slices — so every place that once
// wanted id equality keys or compares by Key() instead, the same
// workaround address.Module.Key() already uses for the identical
// problem.
func (id ID) Key() string {
	var b strings.Builder
	b.WriteString(id.Module.Key())
	for _, c := range id.Path {
		b.WriteByte(0)
		b.WriteString(c.Name)
		b.WriteByte(0)
		b.WriteString(strconv.Itoa(c.Disambiguator))
	}
	return b.String()
}

// Kind enumerates every HIR expression shape from spec.md §3's
// Expression sum.
type Kind int

const (
	KindInt Kind = iota
	KindText
	KindReference
	KindSymbol
	KindList
	KindStruct
	KindDestructure
	KindPatternIdentifierReference
	KindMatch
	KindFunction
	KindBuiltin
	KindCall
	KindUseModule
	KindNeeds
	KindError

	// Trace* kinds are emitted by HIR→MIR lowering, not by AST→HIR, but
	// live in this package since tracing config and id shapes are
	// defined here (spec.md §6).
	KindTraceCallStarts
	KindTraceCallEnds
	KindTraceExpressionEvaluated
	KindTraceFoundFuzzableFunction
)

func (k Kind) String() string {
	names := [...]string{
		"Int", "Text", "Reference", "Symbol", "List", "Struct", "Destructure",
		"PatternIdentifierReference", "Match", "Function", "Builtin", "Call",
		"UseModule", "Needs", "Error", "TraceCallStarts", "TraceCallEnds",
		"TraceExpressionEvaluated", "TraceFoundFuzzableFunction",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// FunctionKind distinguishes a named fuzzable function, the synthetic
// `use` function, and a non-fuzzable `{ ... -> ... }` literal
// (spec.md §4.4: "Functions of kind CurlyBraces inherit the enclosing
// scope's responsibility").
type FunctionKind int

const (
	FunctionNormal FunctionKind = iota
	FunctionUse
	FunctionCurlyBraces
)

// StructField is a (key hir-id, value hir-id) pair of a Struct
// expression; both point into the owning Body.
type StructField struct {
	Key   ID
	Value ID
}

// MatchCase is one arm of a Match expression: a pattern plus its own
// nested Body, whose preamble is one PatternIdentifierReference per
// captured identifier (spec.md §4.3: "each case body runs in a fresh
// scope whose preamble is one PatternIdentifierReference per captured
// identifier").
type MatchCase struct {
	Pattern  *Pattern
	CaseBody *Body
}

// Node is a single HIR expression. As with cst.Node/ast.Node this is
// one generic struct discriminated by Kind rather than one Go type per
// case; only the fields relevant to Kind are populated.
type Node struct {
	ID   ID
	Kind Kind

	IntValue string // KindInt
	Text     string // KindText: literal run; KindSymbol: symbol name

	Reference ID // KindReference

	Items  []ID          // KindList: element hir-ids
	Fields []StructField // KindStruct

	DestructureExpr    ID       // KindDestructure
	DestructurePattern *Pattern // KindDestructure

	PatternID int // KindPatternIdentifierReference

	MatchExpr ID          // KindMatch
	Cases     []MatchCase // KindMatch

	Parameters   []ID         // KindFunction
	FunctionBody *Body        // KindFunction
	FunctionKind FunctionKind // KindFunction

	CallFunction  ID   // KindCall
	CallArguments []ID // KindCall

	CurrentModule address.Module // KindUseModule
	RelativePath  string         // KindUseModule

	NeedsCondition ID // KindNeeds
	NeedsReason    ID // KindNeeds

	TraceCall ID // KindTraceCallStarts/KindTraceCallEnds: the Call this wraps
	TraceExpr ID // KindTraceExpressionEvaluated

	Errors []*Error // KindError
}

// IsFuzzable reports whether a Function expression is eligible for
// fuzzing (supplemented rule, SPEC_FULL.md §4: a named, non-curly-brace
// function with at least one parameter).
func (n *Node) IsFuzzable() bool {
	return n.Kind == KindFunction && n.FunctionKind == FunctionNormal && len(n.Parameters) >= 1
}

// Error describes one HIR-level lowering failure (spec.md §7).
type Error struct {
	Code    string
	Message string
}

// Body is an ordered mapping from hir-id to Expression, plus the
// user-facing identifier bound to each id that came from a named
// binding (spec.md §3: "A Body is an ordered mapping from hir-id to
// Expression plus a map hir-id → user identifier"). The maps are keyed
// by ID.Key() rather than ID itself since ID is not comparable.
type Body struct {
	Order []ID
	Exprs map[string]*Node
	Names map[string]string
}

// NewBody returns an empty Body.
func NewBody() *Body {
	return &Body{Exprs: map[string]*Node{}, Names: map[string]string{}}
}

// Add appends an expression to the body at id, returning id for
// chaining.
func (b *Body) Add(id ID, n *Node) ID {
	n.ID = id
	b.Order = append(b.Order, id)
	b.Exprs[id.Key()] = n
	return id
}

// Bind records the user-facing identifier for id.
func (b *Body) Bind(id ID, name string) {
	b.Names[id.Key()] = name
}

// Find looks up an expression by id within this body.
func (b *Body) Find(id ID) (*Node, bool) {
	n, ok := b.Exprs[id.Key()]
	return n, ok
}

// Name returns the user-facing identifier bound to id, if any.
func (b *Body) Name(id ID) string {
	return b.Names[id.Key()]
}

// PatternKind enumerates the structural pattern shapes (spec.md §3
// glossary: "structural destructuring patterns").
type PatternKind int

const (
	PatternIdentifier PatternKind = iota
	PatternInt
	PatternText
	PatternTag
	PatternList
	PatternStruct
	PatternOr
	PatternError
)

func (k PatternKind) String() string {
	names := [...]string{"Identifier", "Int", "Text", "Tag", "List", "Struct", "Or", "Error"}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("PatternKind(%d)", int(k))
}

// PatternField is a (symbol key, value pattern) pair of a Struct
// pattern.
type PatternField struct {
	Key   string
	Value *Pattern
}

// Pattern mirrors the AST pattern shapes but is structural rather than
// tied to source spans: HIR carries just enough of a pattern for the
// MIR pattern compiler (spec.md §4.4.1) to compile it into match code.
type Pattern struct {
	Kind PatternKind

	IntValue  string
	TextValue string
	TagSymbol string
	TagValue  *Pattern

	Items  []*Pattern
	Fields []PatternField

	// PatternID is not set by lowering; a PatternIdentifier's capture
	// slot is its index in CapturedIdentifiers (left-to-right pre-order),
	// which is what PatternIdentifierReference nodes carry.
	PatternID int
	Name      string

	Errors []*Error
}

// CapturedIdentifiers returns the 0-based pattern-id -> name mapping
// in capture order.
func CapturedIdentifiers(p *Pattern) []string {
	var out []string
	var walk func(*Pattern)
	walk = func(p *Pattern) {
		if p == nil {
			return
		}
		switch p.Kind {
		case PatternIdentifier:
			out = append(out, p.Name)
		case PatternList:
			for _, it := range p.Items {
				walk(it)
			}
		case PatternOr:
			// Every alternative captures the same multiset of names
			// (spec.md §3); only the canonical first alternative
			// contributes to the capture list, matching
			// mir/pattern.go's compileOrPattern.
			if len(p.Items) > 0 {
				walk(p.Items[0])
			}
		case PatternStruct:
			for _, f := range p.Fields {
				walk(f.Value)
			}
		case PatternTag:
			walk(p.TagValue)
		}
	}
	walk(p)
	return out
}

// Module is the full lowering result for one source module: its
// top-level Body (whose final expression is the synthesized exports
// struct), the pre-allocated synthetic bindings, and the lowering
// errors. It holds no map between hir ids and AST ids.
type Module struct {
	Address address.Module
	Top     *Body

	UseID      ID
	BuiltinsID ID
	ExportsID  ID

	Errors []*Error
}
