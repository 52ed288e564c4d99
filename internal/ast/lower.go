package ast

import (
	"unicode"
	"unicode/utf8"

	"github.com/sunholo/ailang/internal/cst"
)

// mode is the lowering mode threaded through recursion (spec.md §4.2):
// Expression allows every construct; Pattern forbids call/struct-
// access/function/lambda/assignment/match; PatternLiteralPart further
// forbids bare identifiers (used for struct pattern keys, which must
// be literal).
type mode int

const (
	modeExpression mode = iota
	modePattern
	modePatternLiteralPart
)

type lowerer struct {
	tree    *cst.Tree
	nextID  ID
	toCST   map[ID]cst.ID
	fromCST map[cst.ID][]ID
}

// Lower converts a module's CST into its AST plus the bidirectional id
// map (spec.md §4.2). Lower never fails: undecodable modules are
// caught earlier by cst.Parse returning a *ModuleError.
func Lower(tree *cst.Tree) *Module {
	l := &lowerer{tree: tree, toCST: map[ID]cst.ID{}, fromCST: map[cst.ID][]ID{}}
	var top []*Node
	for _, c := range cst.NonTrivia(tree.Root) {
		top = append(top, l.lower(c, modeExpression))
	}
	return &Module{Address: tree.Module, Top: top, ToCST: l.toCST, FromCST: l.fromCST}
}

func (l *lowerer) alloc(c *cst.Node) ID {
	id := l.nextID
	l.nextID++
	l.toCST[id] = c.ID
	l.fromCST[c.ID] = append(l.fromCST[c.ID], id)
	return id
}

func (l *lowerer) errorNode(c *cst.Node, code, message string) *Node {
	return &Node{
		ID:   l.alloc(c),
		Kind: KindError,
		Span: c.Span,
		Errors: []*Error{{
			Code:    code,
			Message: message,
			Span:    l.tree.DisplaySpan(c.ID),
		}},
	}
}

func (l *lowerer) wrapError(child *Node, c *cst.Node, code, message string) *Node {
	n := l.errorNode(c, code, message)
	n.Items = []*Node{child}
	return n
}

func nonTriviaChildren(c *cst.Node) []*cst.Node { return cst.NonTrivia(c) }

// lower dispatches on the CST node's kind.
func (l *lowerer) lower(c *cst.Node, m mode) *Node {
	switch c.Kind {
	case cst.KindError:
		msg := "unparsable input"
		if c.Err != nil {
			msg = c.Err.Message
		}
		n := l.errorNode(c, "AST000", msg)
		// A recovery node (e.g. "missing comma") wraps the value it
		// recovered around as its one child; keep lowering it so
		// later stages still see partial structure.
		for _, child := range cst.NonTrivia(c) {
			n.Items = append(n.Items, l.lower(child, m))
		}
		return n

	case cst.KindInt:
		return &Node{ID: l.alloc(c), Kind: KindInt, Span: c.Span, IntValue: c.Text}

	case cst.KindIdentifier:
		if m == modePatternLiteralPart {
			return l.errorNode(c, "AST012", "identifiers are not allowed in a literal pattern position")
		}
		return &Node{ID: l.alloc(c), Kind: KindIdentifier, Span: c.Span, Text: c.Text}

	case cst.KindSymbol:
		return &Node{ID: l.alloc(c), Kind: KindSymbol, Span: c.Span, Text: c.Text}

	case cst.KindText:
		return l.lowerText(c, m)

	case cst.KindList:
		return l.lowerList(c, m)

	case cst.KindStruct:
		return l.lowerStruct(c, m)

	case cst.KindStructAccess:
		if m != modeExpression {
			return l.errorNode(c, "AST002", "struct access is not allowed in a pattern")
		}
		return l.lowerStructAccess(c)

	case cst.KindParenthesized:
		if m == modePatternLiteralPart {
			return l.errorNode(c, "AST007", "parentheses are not allowed in a literal pattern position")
		}
		kids := nonTriviaChildren(c)
		// kids: [open, inner, close]; the node stored "inner" directly
		// as the single non-punctuation child.
		for _, k := range kids {
			if k.Kind != cst.KindPunctuation {
				return l.lower(k, m)
			}
		}
		return l.errorNode(c, "AST007", "empty parentheses")

	case cst.KindCall:
		return l.lowerCall(c, m)

	case cst.KindLambda:
		if m != modeExpression {
			return l.errorNode(c, "AST004", "function literals are not allowed in a pattern")
		}
		return l.lowerLambda(c)

	case cst.KindAssignment:
		if m != modeExpression {
			return l.errorNode(c, "AST005", "assignments are not allowed in a pattern")
		}
		return l.lowerAssignment(c)

	case cst.KindMatch:
		if m != modeExpression {
			return l.errorNode(c, "AST006", "match expressions are not allowed in a pattern")
		}
		return l.lowerMatch(c)

	case cst.KindBinaryBar:
		return l.lowerBinaryBar(c, m)

	default:
		return l.errorNode(c, "AST000", "unexpected syntax")
	}
}

func (l *lowerer) lowerText(c *cst.Node, m mode) *Node {
	var parts []*Node
	hasInterpolation := false
	for _, child := range c.Children {
		switch child.Kind {
		case cst.KindTextPart:
			parts = append(parts, &Node{ID: l.alloc(child), Kind: KindTextPart, Span: child.Span, Text: child.Text})
		case cst.KindInterpolation:
			hasInterpolation = true
			for _, gc := range cst.NonTrivia(child) {
				if gc.Kind == cst.KindPunctuation {
					continue
				}
				parts = append(parts, l.lower(gc, modeExpression))
			}
		}
	}
	n := &Node{ID: l.alloc(c), Kind: KindText, Span: c.Span, Parts: parts}
	if m != modeExpression && hasInterpolation {
		return l.wrapError(n, c, "AST010", "text with interpolation is not allowed in a pattern")
	}
	return n
}

func (l *lowerer) lowerList(c *cst.Node, m mode) *Node {
	var items []*Node
	for _, child := range cst.NonTrivia(c) {
		if child.Kind != cst.KindListItem {
			continue
		}
		kids := cst.NonTrivia(child)
		if len(kids) == 0 {
			continue
		}
		value := kids[0]
		item := l.lower(value, m)
		if len(kids) > 1 && kids[1].Kind != cst.KindPunctuation {
			item = l.wrapError(item, kids[1], "AST009", "missing comma after list item")
		}
		items = append(items, item)
	}
	return &Node{ID: l.alloc(c), Kind: KindList, Span: c.Span, Items: items}
}

func (l *lowerer) lowerStruct(c *cst.Node, m mode) *Node {
	var fields []StructField
	for _, child := range cst.NonTrivia(c) {
		if child.Kind != cst.KindStructField {
			continue
		}
		fields = append(fields, l.lowerStructField(child, m))
	}
	return &Node{ID: l.alloc(c), Kind: KindStruct, Span: c.Span, Fields: fields}
}

func (l *lowerer) lowerStructField(c *cst.Node, m mode) StructField {
	kids := cst.NonTrivia(c)
	// kids is one of: [value] | [value, comma] | [key, colon, value] | [key, colon, value, comma]
	var keyCST, colonCST, valueCST, commaCST *cst.Node
	switch {
	case len(kids) >= 3 && kids[1].Kind == cst.KindPunctuation && kids[1].Text == ":":
		keyCST, colonCST, valueCST = kids[0], kids[1], kids[2]
		if len(kids) > 3 {
			commaCST = kids[3]
		}
	default:
		valueCST = kids[0]
		if len(kids) > 1 {
			commaCST = kids[1]
		}
	}
	_ = colonCST

	keyMode := m
	if m != modeExpression {
		keyMode = modePatternLiteralPart
	}

	var value *Node
	if keyCST != nil {
		key := l.lower(keyCST, keyMode)
		value = l.lower(valueCST, m)
		if commaCST != nil && commaCST.Kind != cst.KindPunctuation {
			value = l.wrapError(value, commaCST, "AST008", "missing comma after struct field")
		}
		return StructField{Key: key, Value: value}
	}
	// Shorthand `[foo]` => `[Foo: foo]` (spec.md §4.2).
	value = l.lower(valueCST, m)
	if commaCST != nil && commaCST.Kind != cst.KindPunctuation {
		value = l.wrapError(value, commaCST, "AST008", "missing comma after struct field")
	}
	if value.Kind != KindIdentifier {
		value = l.wrapError(value, valueCST, "AST008", "struct shorthand requires an identifier")
		return StructField{Key: nil, Value: value}
	}
	key := &Node{ID: l.alloc(valueCST), Kind: KindSymbol, Span: value.Span, Text: uppercaseFirst(value.Text)}
	return StructField{Key: key, Value: value}
}

func uppercaseFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func (l *lowerer) lowerStructAccess(c *cst.Node) *Node {
	kids := cst.NonTrivia(c) // [receiver, dot, key]
	receiver := l.lower(kids[0], modeExpression)
	keyCST := kids[len(kids)-1]
	key := &Node{ID: l.alloc(keyCST), Kind: KindIdentifier, Span: keyCST.Span, Text: keyCST.Text}
	return &Node{ID: l.alloc(c), Kind: KindStructAccess, Span: c.Span, Receiver: receiver, Key: key}
}

// unwrapParens strips any Parenthesized wrappers around c, the way the
// original compiler's lowering does.
func unwrapParens(c *cst.Node) *cst.Node {
	for c.Kind == cst.KindParenthesized {
		kids := cst.NonTrivia(c)
		found := false
		for _, k := range kids {
			if k.Kind != cst.KindPunctuation {
				c = k
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	return c
}

func (l *lowerer) lowerCall(c *cst.Node, m mode) *Node {
	kids := cst.NonTrivia(c)
	receiverCST := unwrapParens(kids[0])
	argsCST := kids[1:]

	if m != modeExpression {
		// Tag-pattern payload supplement (DESIGN.md): `Symbol payload`
		// written as a single-argument call whose receiver is a Symbol
		// lowers to a TagPattern rather than being rejected outright.
		if receiverCST.Kind == cst.KindSymbol && len(argsCST) == 1 {
			value := l.lower(argsCST[0], m)
			return &Node{ID: l.alloc(c), Kind: KindTagPattern, Span: c.Span, TagSymbol: receiverCST.Text, Value: value}
		}
		return l.errorNode(c, "AST001", "calls are not allowed in a pattern")
	}

	receiver := l.lower(receiverCST, modeExpression)
	var args []*Node
	for _, a := range argsCST {
		args = append(args, l.lower(a, modeExpression))
	}
	return &Node{ID: l.alloc(c), Kind: KindCall, Span: c.Span, Receiver: receiver, Arguments: args}
}

func (l *lowerer) lowerLambda(c *cst.Node) *Node {
	kids := cst.NonTrivia(c)
	// kids: [open, param*, arrow, body, close]
	var params []*Node
	i := 1
	for i < len(kids)-3 {
		params = append(params, l.lower(kids[i], modePattern))
		i++
	}
	var body *Node
	if len(kids) >= 2 {
		body = l.lower(kids[len(kids)-2], modeExpression)
	} else {
		body = l.errorNode(c, "AST000", "missing function body")
	}
	return &Node{ID: l.alloc(c), Kind: KindFunction, Span: c.Span, Parameters: params, Body: body, Fuzzable: false}
}

func (l *lowerer) lowerAssignment(c *cst.Node) *Node {
	kids := cst.NonTrivia(c) // [left, sign, body]
	leftCST, signCST, bodyCST := kids[0], kids[1], kids[2]
	isPublic := signCST.Text == ":="
	body := l.lower(bodyCST, modeExpression)

	leftCST = unwrapParens(leftCST)
	if leftCST.Kind == cst.KindCall {
		lk := cst.NonTrivia(leftCST)
		if lk[0].Kind == cst.KindIdentifier {
			name := &Node{ID: l.alloc(lk[0]), Kind: KindIdentifier, Span: lk[0].Span, Text: lk[0].Text}
			var params []*Node
			for _, p := range lk[1:] {
				params = append(params, l.lower(p, modePattern))
			}
			fn := &Node{ID: l.alloc(leftCST), Kind: KindFunction, Span: leftCST.Span, Parameters: params, Body: body, Fuzzable: true}
			return &Node{ID: l.alloc(c), Kind: KindAssignment, Span: c.Span, IsPublic: isPublic, Name: name, Body: fn}
		}
	}
	if leftCST.Kind == cst.KindIdentifier {
		name := &Node{ID: l.alloc(leftCST), Kind: KindIdentifier, Span: leftCST.Span, Text: leftCST.Text}
		pattern := &Node{ID: l.alloc(leftCST), Kind: KindIdentifier, Span: leftCST.Span, Text: leftCST.Text}
		return &Node{ID: l.alloc(c), Kind: KindAssignment, Span: c.Span, IsPublic: isPublic, Name: name, Pattern: pattern, Body: body}
	}
	pattern := l.lower(leftCST, modePattern)
	return &Node{ID: l.alloc(c), Kind: KindAssignment, Span: c.Span, IsPublic: isPublic, Pattern: pattern, Body: body}
}

func (l *lowerer) lowerMatch(c *cst.Node) *Node {
	kids := cst.NonTrivia(c) // [expression, percent, case*]
	expression := l.lower(kids[0], modeExpression)
	var cases []*Node
	for _, k := range kids[2:] {
		if k.Kind != cst.KindMatchCase {
			continue
		}
		cases = append(cases, l.lowerMatchCase(k))
	}
	return &Node{ID: l.alloc(c), Kind: KindMatch, Span: c.Span, Expression: expression, Cases: cases}
}

func (l *lowerer) lowerMatchCase(c *cst.Node) *Node {
	kids := cst.NonTrivia(c) // [pattern, arrow, body]
	pattern := l.lower(kids[0], modePattern)
	body := l.lower(kids[2], modeExpression)
	return &Node{ID: l.alloc(c), Kind: KindMatchCase, Span: c.Span, Pattern: pattern, Body: body}
}

func (l *lowerer) lowerBinaryBar(c *cst.Node, m mode) *Node {
	kids := cst.NonTrivia(c) // [left, bar, right]
	if m == modeExpression {
		left := l.lower(kids[0], modeExpression)
		right := l.lower(kids[2], modeExpression)
		if right.Kind == KindCall {
			right.Arguments = append([]*Node{left}, right.Arguments...)
			right.IsFromPipe = true
			right.Span = c.Span
			return right
		}
		return &Node{ID: l.alloc(c), Kind: KindCall, Span: c.Span, Receiver: right, Arguments: []*Node{left}, IsFromPipe: true}
	}

	left := l.lower(kids[0], m)
	right := l.lower(kids[2], m)
	var alternatives []*Node
	if left.Kind == KindOrPattern {
		alternatives = append(alternatives, left.Items...)
	} else {
		alternatives = append(alternatives, left)
	}
	alternatives = append(alternatives, right)

	or := &Node{ID: l.alloc(c), Kind: KindOrPattern, Span: c.Span, Items: alternatives}
	first := capturedIdentifierNames(alternatives[0])
	for _, alt := range alternatives[1:] {
		if !sameNameSet(first, capturedIdentifierNames(alt)) {
			return l.wrapError(or, c, "AST011", "every alternative of an or-pattern must capture the same identifiers")
		}
	}
	return or
}

// capturedIdentifierNames returns a pattern's captured identifier
// names in left-to-right order (spec.md §3 "captured identifiers").
func capturedIdentifierNames(n *Node) []string {
	var out []string
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		switch n.Kind {
		case KindIdentifier:
			out = append(out, n.Text)
		case KindList, KindOrPattern:
			for _, it := range n.Items {
				walk(it)
			}
		case KindStruct:
			for _, f := range n.Fields {
				walk(f.Value)
			}
		case KindTagPattern:
			walk(n.Value)
		}
	}
	walk(n)
	return out
}

func sameNameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	count := map[string]int{}
	for _, n := range a {
		count[n]++
	}
	for _, n := range b {
		count[n]--
	}
	for _, c := range count {
		if c != 0 {
			return false
		}
	}
	return true
}

// PublicAssignments returns the top-level public (`:=`) bindings in
// declaration order, used by HIR lowering to synthesize the module's
// exports struct (spec.md §4.3).
func PublicAssignments(m *Module) []*Node {
	var out []*Node
	for _, n := range m.Top {
		if n.Kind == KindAssignment && n.IsPublic {
			out = append(out, n)
		}
	}
	return out
}

// AssignmentName returns the bound name of an Assignment node,
// whether it's a Function assignment or a simple Body assignment to a
// bare identifier pattern.
func AssignmentName(n *Node) (string, bool) {
	if n.Kind != KindAssignment {
		return "", false
	}
	if n.Name != nil {
		return n.Name.Text, true
	}
	return "", false
}
