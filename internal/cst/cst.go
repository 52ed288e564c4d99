// Package cst implements the lossless concrete syntax tree (spec.md
// §3, §4.1): the tree that preserves whitespace, comments and
// malformed input so that diagnostics and IDE features can always
// point at real source bytes, and so that concatenating every leaf's
// text reproduces the module's source exactly.
//
// There is no separate tokenizer: spec.md explicitly puts
// "tokenization below the CST level" out of scope, and the scanner in
// parse.go reads source bytes directly the way the original compiler
// this spec was distilled from does (string_to_rcst, no lexer stage).
package cst

import (
	"fmt"

	"github.com/sunholo/ailang/internal/address"
)

// ID uniquely identifies a node within a single module's CST.
type ID uint32

// Kind enumerates every CST node shape named in spec.md §3.
type Kind int

const (
	KindError Kind = iota

	// KindModule is the synthetic root wrapping a module's top-level
	// sequence of statements plus any leading/trailing trivia.
	KindModule

	// Trivia — preserved verbatim so the tree round-trips byte for byte.
	KindWhitespace
	KindNewline
	KindComment

	// Literals
	KindInt
	KindSymbol
	KindIdentifier

	// Punctuation leaves. Text holds the exact source text.
	KindPunctuation

	// Text literals.
	KindText       // Children: [opening Quote, part*, closing Quote]
	KindQuote      // leaf: Text = e.g. `"` or `'"` ; Opening/Level set
	KindTextPart   // leaf: Text = literal run of characters
	KindInterpolation // Children: [openBraces Punctuation, expr, closeBraces Punctuation]

	// Composite structures.
	KindList           // Children: [OpeningParen, ListItem*, ClosingParen]
	KindListItem        // Children: [value, optional trailing comma Punctuation]
	KindStruct          // Children: [OpeningBracket, StructField*, ClosingBracket]
	KindStructField      // Children: [key?, colon?, value, optional comma]
	KindStructAccess     // Children: [receiver, dot Punctuation, key Identifier]
	KindParenthesized    // Children: [OpeningParen, inner, ClosingParen]
	KindCall             // Children: [receiver, argument*]
	KindLambda           // Children: [OpeningCurly, parameter*, arrow Punctuation, body, ClosingCurly]
	KindAssignment       // Children: [left, sign Punctuation, body]
	KindMatch            // Children: [expression, percent Punctuation, MatchCase*]
	KindMatchCase         // Children: [pattern, arrow Punctuation, body]
	KindBinaryBar         // Children: [left, bar Punctuation, right]
)

func (k Kind) String() string {
	names := [...]string{
		"Error", "Module", "Whitespace", "Newline", "Comment", "Int", "Symbol", "Identifier",
		"Punctuation", "Text", "Quote", "TextPart", "Interpolation", "List",
		"ListItem", "Struct", "StructField", "StructAccess", "Parenthesized",
		"Call", "Lambda", "Assignment", "Match", "MatchCase", "BinaryBar",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ErrorPayload describes why a Kind == KindError node exists.
type ErrorPayload struct {
	Message string
}

// Node is the single recursive CST variant (spec.md §3: "recursive
// variant; every node carries an ID unique within the module and a
// span"). Which fields are meaningful depends on Kind; see the
// per-Kind comments above.
type Node struct {
	ID       ID
	Kind     Kind
	Span     address.Span
	Text     string // leaf text: punctuation/ident/symbol/int digits/trivia/text-part content
	Children []*Node
	Opening  bool // KindQuote: true = opening quote
	Level    int  // KindQuote/KindInterpolation: the `k` brace/quote count
	Err      *ErrorPayload
}

// Tree is a module's whole CST plus the source it was parsed from.
type Tree struct {
	Module address.Module
	Source []byte
	Root   *Node
	byID   map[ID]*Node
}

// find is total on ids that exist in the tree; spec.md §4.1 requires
// `find` be total on *valid* ids, so an unknown id is an invariant
// violation rather than a recoverable error.
func (t *Tree) Find(id ID) *Node {
	n, ok := t.byID[id]
	if !ok {
		panic(fmt.Sprintf("cst: no node with id %d in module %s", id, t.Module))
	}
	return n
}

// TryFind is the non-panicking counterpart, for callers that aren't
// sure an id belongs to this tree.
func (t *Tree) TryFind(id ID) (*Node, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// Leaves concatenates, in order, every node's own text followed by its
// children's (a token's trailing trivia are stored as its children).
// For a tree with no unrecoverable module-level error this must equal
// t.Source exactly (spec.md §8 "CST round-trip").
func (t *Tree) Leaves() string {
	var b []byte
	var walk func(n *Node)
	walk = func(n *Node) {
		b = append(b, n.Text...)
		for _, c := range n.Children {
			walk(c)
		}
	}
	if t.Root != nil {
		walk(t.Root)
	}
	return string(b)
}

// DisplaySpan returns the "user visible" span of a node: its full
// span with trailing trivia (trailing whitespace/newline/comment
// children, of the node itself or of its last non-trivia descendant)
// trimmed off (spec.md §4.1).
func (t *Tree) DisplaySpan(id ID) address.Span {
	n := t.Find(id)
	return displaySpan(n)
}

func displaySpan(n *Node) address.Span {
	end := n.Span.End
	for i := len(n.Children) - 1; i >= 0; i-- {
		c := n.Children[i]
		if isTrivia(c.Kind) {
			end = c.Span.Start
			continue
		}
		end = displaySpan(c).End
		break
	}
	if end < n.Span.Start {
		end = n.Span.Start
	}
	return address.Span{Start: n.Span.Start, End: end}
}

func isTrivia(k Kind) bool {
	return k == KindWhitespace || k == KindNewline || k == KindComment
}

// Walk visits n and every descendant in pre-order.
func Walk(n *Node, visit func(*Node)) {
	if n == nil {
		return
	}
	visit(n)
	for _, c := range n.Children {
		Walk(c, visit)
	}
}

// NonTrivia returns a node's children with whitespace/newline/comment
// leaves filtered out — the view most consumers of a composite node
// want.
func NonTrivia(n *Node) []*Node {
	out := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if !isTrivia(c.Kind) {
			out = append(out, c)
		}
	}
	return out
}
