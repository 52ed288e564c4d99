// Package mir implements the MIR (spec.md §3, §4.4): the scope-free,
// dense-id register-like IR produced by lowering HIR, where names are
// gone and every hir-id that could be blamed for a runtime failure has
// become an explicit, first-class "responsible" value threaded through
// calls and panics.
package mir

import (
	"fmt"

	"github.com/sunholo/ailang/internal/address"
	"github.com/sunholo/ailang/internal/hir"
)

// ID is a dense per-module id. Unlike hir.ID it carries no structure;
// MIR has already erased names and scoping (spec.md §4.4: "erase name
// scoping").
type ID int

func (id ID) String() string { return fmt.Sprintf("$%d", int(id)) }

// Kind enumerates every MIR expression shape (spec.md §3's MIR sum,
// plus the Trace* kinds spec.md §4.4/§6 says this stage emits).
type Kind int

const (
	KindInt Kind = iota
	KindText
	KindTag
	KindReference
	KindBuiltin
	KindList
	KindStruct
	KindFunction
	KindCall
	KindPanic
	KindHirID
	KindUseModule
	KindTraceCallStarts
	KindTraceCallEnds
	KindTraceExpressionEvaluated
	KindTraceFoundFuzzableFunction
)

func (k Kind) String() string {
	names := [...]string{
		"Int", "Text", "Tag", "Reference", "Builtin", "List", "Struct",
		"Function", "Call", "Panic", "HirId", "UseModule",
		"TraceCallStarts", "TraceCallEnds", "TraceExpressionEvaluated",
		"TraceFoundFuzzableFunction",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// StructField is a (key id, value id) pair of a Struct expression.
type StructField struct {
	Key   ID
	Value ID
}

// Node is a single MIR expression, discriminated by Kind as with the
// earlier stages' generic Node types; only the fields relevant to Kind
// are populated.
type Node struct {
	ID   ID
	Kind Kind

	IntValue string // KindInt
	Text     string // KindText literal; KindTag symbol name; KindBuiltin name

	TagValue *ID // KindTag: optional payload id

	Reference ID // KindReference

	Items  []ID          // KindList
	Fields []StructField // KindStruct

	Parameters []ID  // KindFunction: includes the trailing responsible parameter
	Body       *Body // KindFunction
	IsFuzzable bool  // KindFunction (spec.md §4.4, §6: register_fuzzables tracing)

	// OriginalHirs accumulates every hir.ID a Function expression has
	// ever stood in for. A freshly lowered function holds exactly its
	// own origin; CSE (miropt, spec.md §4.5.2) merges the set of a
	// replaced duplicate into its surviving canonical Function instead
	// of discarding the provenance.
	OriginalHirs []hir.ID // KindFunction

	CallFunction  ID   // KindCall
	CallArguments []ID // KindCall

	// Responsible is the id blamed for a failure originating from this
	// expression (spec.md §4.4: "Call lowering... responsible = push
	// HirId(call_site)"). Set on KindCall, KindPanic, KindUseModule and
	// KindTraceCallStarts (which carries the same responsible value as
	// the call it wraps).
	Responsible ID

	PanicReason ID // KindPanic

	// IsPropagatedError marks a Panic compiled from a hir.Error node
	// (spec.md §4.4's Error lowering) rather than one of this stage's
	// own runtime safety checks (needs validation, a failed
	// destructure, an unmatched match). Only these panics are
	// compile-time diagnostics; the rest describe ordinary runtime
	// failure modes (miropt's error-collection pass, spec.md §4.5.3).
	IsPropagatedError bool // KindPanic

	HirID hir.ID // KindHirId

	CurrentModule address.Module // KindUseModule
	RelativePath  ID             // KindUseModule: the text expression naming the module

	TraceHirCall     ID   // KindTraceCallStarts
	TraceFunction    ID   // KindTraceCallStarts
	TraceArguments   []ID // KindTraceCallStarts
	TraceReturnValue ID   // KindTraceCallEnds

	TraceHirExpression ID // KindTraceExpressionEvaluated
	TraceValue         ID // KindTraceExpressionEvaluated

	TraceHirDefinition ID // KindTraceFoundFuzzableFunction
	TraceFunctionRef   ID // KindTraceFoundFuzzableFunction
}

// Body is an ordered, dense-id-keyed sequence of expressions — the MIR
// analogue of hir.Body, minus the user-identifier map (names are gone).
type Body struct {
	Order []ID
	Exprs map[ID]*Node
}

// NewBody returns an empty Body.
func NewBody() *Body {
	return &Body{Exprs: map[ID]*Node{}}
}

// Add appends an expression to the body at id, returning id for
// chaining.
func (b *Body) Add(id ID, n *Node) ID {
	n.ID = id
	b.Order = append(b.Order, id)
	b.Exprs[id] = n
	return id
}

// Find looks up an expression by id within this body. A miss usually
// means id names a bare function parameter (which has no defining
// expression of its own).
func (b *Body) Find(id ID) (*Node, bool) {
	n, ok := b.Exprs[id]
	return n, ok
}

// Last returns the id of the body's final expression, or false if the
// body is empty.
func (b *Body) Last() (ID, bool) {
	if len(b.Order) == 0 {
		return 0, false
	}
	return b.Order[len(b.Order)-1], true
}

// Error describes one failure recorded during HIR→MIR lowering
// (lowering never aborts — spec.md §4.4 mirrors the earlier stages'
// recover-and-continue discipline via KindPanic expressions plus this
// side error set).
type Error struct {
	Code    string
	Message string
}

// Module is the full HIR→MIR lowering result for one module: its
// single top-level Body (whose last expression is the exports
// struct inherited unchanged from HIR) plus the shared needs function.
type Module struct {
	Address address.Module
	Top     *Body

	// NeedsFunction is the single module-level `needs` function
	// synthesized once per module (spec.md §4.4: "synthesized once at
	// module top").
	NeedsFunction ID

	Errors []*Error
}
