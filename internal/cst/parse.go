package cst

import (
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/sunholo/ailang/internal/address"
)

// Parse turns a module's source bytes into a CST (spec.md §4.1). It
// only returns a *ModuleError when the bytes aren't valid UTF-8 — any
// other malformed input becomes an Error node embedded in the tree,
// never a failure of Parse itself.
func Parse(module address.Module, src []byte) (*Tree, *address.ModuleError) {
	if !utf8.Valid(src) {
		return nil, &address.ModuleError{Module: module, Kind: address.InvalidEncoding}
	}
	p := &parser{src: src, module: module}
	root := p.parseModule()
	t := &Tree{Module: module, Source: src, Root: root, byID: map[ID]*Node{}}
	Walk(root, func(n *Node) { t.byID[n.ID] = n })
	return t, nil
}

type parser struct {
	src    []byte
	pos    address.Offset
	nextID ID
	module address.Module
}

func (p *parser) alloc() ID {
	id := p.nextID
	p.nextID++
	return id
}

func (p *parser) atEnd() bool { return int(p.pos) >= len(p.src) }

func (p *parser) peekByte() (byte, bool) {
	if p.atEnd() {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *parser) peekRune() (rune, int) {
	if p.atEnd() {
		return 0, 0
	}
	r, size := utf8.DecodeRune(p.src[p.pos:])
	return r, size
}

func (p *parser) peekRuneAt(offset int) (rune, int) {
	idx := int(p.pos) + offset
	if idx >= len(p.src) {
		return 0, 0
	}
	r, size := utf8.DecodeRune(p.src[idx:])
	return r, size
}

func (p *parser) advance(n int) { p.pos += address.Offset(n) }

// leaf builds a leaf node spanning [start, p.pos) with the given text.
func (p *parser) leaf(kind Kind, start address.Offset, text string) *Node {
	return &Node{ID: p.alloc(), Kind: kind, Span: address.Span{Start: start, End: p.pos}, Text: text}
}

func (p *parser) errorLeaf(start address.Offset, message string) *Node {
	n := p.leaf(KindError, start, string(p.src[start:p.pos]))
	n.Err = &ErrorPayload{Message: message}
	return n
}

// scanTrivia scans zero or more whitespace/newline/comment tokens.
func (p *parser) scanTrivia() []*Node {
	var out []*Node
	for {
		start := p.pos
		r, size := p.peekRune()
		switch {
		case size == 0:
			return out
		case r == '\n':
			p.advance(size)
			out = append(out, p.leaf(KindNewline, start, "\n"))
		case r == ' ' || r == '\t' || r == '\r':
			for {
				r2, s2 := p.peekRune()
				if s2 == 0 || !(r2 == ' ' || r2 == '\t' || r2 == '\r') {
					break
				}
				p.advance(s2)
			}
			out = append(out, p.leaf(KindWhitespace, start, string(p.src[start:p.pos])))
		case r == '#':
			for {
				r2, s2 := p.peekRune()
				if s2 == 0 || r2 == '\n' {
					break
				}
				p.advance(s2)
			}
			out = append(out, p.leaf(KindComment, start, string(p.src[start:p.pos])))
		default:
			return out
		}
	}
}

// withTrivia scans trailing trivia and appends it as children of n,
// implementing spec.md's "whitespace is stored explicitly as children
// of the preceding token."
func (p *parser) withTrivia(n *Node) *Node {
	trivia := p.scanTrivia()
	if len(trivia) == 0 {
		return n
	}
	wrapped := &Node{ID: n.ID, Kind: n.Kind, Span: address.Span{Start: n.Span.Start, End: p.pos}, Text: n.Text, Children: append(append([]*Node(nil), n.Children...), trivia...), Opening: n.Opening, Level: n.Level, Err: n.Err}
	return wrapped
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}
func isIdentCont(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// parseModule parses a module's entire top-level sequence of
// statements (each typically an Assignment) until EOF.
func (p *parser) parseModule() *Node {
	start := p.pos
	var children []*Node
	for {
		lead := p.scanTrivia()
		children = append(children, lead...)
		if p.atEnd() {
			break
		}
		before := p.pos
		expr := p.parseStatement()
		if expr == nil || p.pos == before {
			// Can't make progress: emit one error leaf for the
			// unparsable remainder and stop, per spec.md's "failure
			// kinds are embedded as Error CST nodes."
			r, size := p.peekRune()
			if size == 0 {
				break
			}
			p.advance(size)
			children = append(children, p.errorLeaf(before, "unexpected input"))
			_ = r
			continue
		}
		children = append(children, expr)
	}
	return &Node{ID: p.alloc(), Kind: KindModule, Span: address.Span{Start: start, End: p.pos}, Children: children}
}

// parseStatement parses one top-level construct: an Assignment if the
// line looks like `lhs (=|:=) ...`, otherwise a bare expression.
func (p *parser) parseStatement() *Node {
	if p.atEnd() {
		return nil
	}
	start := p.pos
	save := *p
	lhs := p.parseCallLike()
	if lhs == nil {
		*p = save
		return p.parseExpr()
	}
	trivia := p.scanTrivia()
	sign, ok := p.tryPunct(":=")
	isPublic := ok
	if !ok {
		sign, ok = p.tryPunct("=")
	}
	if !ok {
		// Not an assignment after all: rewind and parse as plain expr.
		*p = save
		return p.parseExpr()
	}
	_ = isPublic
	lhsWithTrivia := lhs
	if len(trivia) > 0 {
		lhsWithTrivia = &Node{ID: lhs.ID, Kind: lhs.Kind, Span: lhs.Span, Text: lhs.Text, Children: append(append([]*Node(nil), lhs.Children...), trivia...), Opening: lhs.Opening, Level: lhs.Level, Err: lhs.Err}
	}
	sign = p.withTrivia(sign)
	body := p.parseExpr()
	if body == nil {
		body = p.errorLeaf(p.pos, "expected assignment body")
	}
	return &Node{ID: p.alloc(), Kind: KindAssignment, Span: address.Span{Start: start, End: p.pos}, Children: []*Node{lhsWithTrivia, sign, body}}
}

// parseCallLike parses a receiver applied to zero or more argument
// atoms, used both for plain calls and for assignment LHS (`name p1
// p2`), per spec.md §4.2: "Identifier in assignment LHS yields
// Assignment::Function when followed by parameters."
func (p *parser) parseCallLike() *Node {
	start := p.pos
	receiver := p.parsePostfix()
	if receiver == nil {
		return nil
	}
	var args []*Node
	for {
		save := *p
		trivia := p.scanTrivia()
		// A newline (possibly followed by indentation) ends the argument
		// list: the next line is a new statement or match case.
		nl := false
		for i := int(p.pos) - 1; i >= 0; i-- {
			c := p.src[i]
			if c == '\n' {
				nl = true
				break
			}
			if c != ' ' && c != '\t' && c != '\r' {
				break
			}
		}
		if p.atEnd() || p.peeksAssignmentSign() || p.peeksStop() || nl {
			*p = save
			break
		}
		arg := p.parsePostfix()
		if arg == nil {
			*p = save
			break
		}
		if len(trivia) > 0 {
			receiver = appendTrailingTrivia(receiver, trivia)
		}
		args = append(args, arg)
	}
	if len(args) == 0 {
		return receiver
	}
	return &Node{ID: p.alloc(), Kind: KindCall, Span: address.Span{Start: start, End: p.pos}, Children: append([]*Node{receiver}, args...)}
}

func appendTrailingTrivia(n *Node, trivia []*Node) *Node {
	return &Node{ID: n.ID, Kind: n.Kind, Span: address.Span{Start: n.Span.Start, End: trivia[len(trivia)-1].Span.End}, Text: n.Text, Children: append(append([]*Node(nil), n.Children...), trivia...), Opening: n.Opening, Level: n.Level, Err: n.Err}
}

func (p *parser) peeksAssignmentSign() bool {
	save := *p
	defer func() { *p = save }()
	if _, ok := p.tryPunct(":="); ok {
		return true
	}
	if _, ok := p.tryPunct("="); ok {
		return true
	}
	return false
}

// peeksStop reports whether the cursor is at a token that can never
// start another call argument (closing delimiters, commas, the match
// `%`, pipe `|`, arrow, colon).
func (p *parser) peeksStop() bool {
	r, _ := p.peekRune()
	switch r {
	case ')', ']', '}', ',', '%', '|', ':':
		return true
	}
	if r == '-' {
		if r2, _ := p.peekRuneAt(1); r2 == '>' {
			return true
		}
	}
	return false
}

// parseExpr parses a full expression: pipes over calls.
func (p *parser) parseExpr() *Node {
	start := p.pos
	left := p.parseCallLike()
	if left == nil {
		return nil
	}
	for {
		save := *p
		trivia := p.scanTrivia()
		bar, ok := p.tryPunct("|")
		if !ok {
			*p = save
			break
		}
		if len(trivia) > 0 {
			left = appendTrailingTrivia(left, trivia)
		}
		bar = p.withTrivia(bar)
		right := p.parseCallLike()
		if right == nil {
			right = p.errorLeaf(p.pos, "expected expression after `|`")
		}
		left = &Node{ID: p.alloc(), Kind: KindBinaryBar, Span: address.Span{Start: start, End: p.pos}, Children: []*Node{left, bar, right}}
	}
	// Match: `expr % case*`
	save := *p
	trivia := p.scanTrivia()
	if percent, ok := p.tryPunct("%"); ok {
		if len(trivia) > 0 {
			left = appendTrailingTrivia(left, trivia)
		}
		percent = p.withTrivia(percent)
		cases := p.parseMatchCases()
		left = &Node{ID: p.alloc(), Kind: KindMatch, Span: address.Span{Start: start, End: p.pos}, Children: append([]*Node{left, percent}, cases...)}
	} else {
		*p = save
	}
	return left
}

func (p *parser) parseMatchCases() []*Node {
	var cases []*Node
	for {
		save := *p
		trivia := p.scanTrivia()
		if p.atEnd() || p.peeksStop() {
			*p = save
			break
		}
		caseStart := p.pos
		pattern := p.parseCallLike()
		if pattern == nil {
			*p = save
			break
		}
		for {
			barSave := *p
			barTrivia := p.scanTrivia()
			bar, ok := p.tryPunct("|")
			if !ok {
				*p = barSave
				break
			}
			if len(barTrivia) > 0 {
				pattern = appendTrailingTrivia(pattern, barTrivia)
			}
			bar = p.withTrivia(bar)
			alt := p.parseCallLike()
			if alt == nil {
				alt = p.errorLeaf(p.pos, "expected pattern after `|`")
			}
			pattern = &Node{ID: p.alloc(), Kind: KindBinaryBar, Span: address.Span{Start: caseStart, End: p.pos}, Children: []*Node{pattern, bar, alt}}
		}
		ptrivia := p.scanTrivia()
		arrow, ok := p.tryPunct("->")
		if !ok {
			*p = save
			break
		}
		if len(ptrivia) > 0 {
			pattern = appendTrailingTrivia(pattern, ptrivia)
		}
		arrow = p.withTrivia(arrow)
		body := p.parseExpr()
		if body == nil {
			body = p.errorLeaf(p.pos, "expected case body")
		}
		_ = trivia
		cases = append(cases, &Node{ID: p.alloc(), Kind: KindMatchCase, Span: address.Span{Start: caseStart, End: p.pos}, Children: []*Node{pattern, arrow, body}})
	}
	return cases
}

// parsePostfix parses a primary followed by zero or more `.identifier`
// struct accesses.
func (p *parser) parsePostfix() *Node {
	start := p.pos
	n := p.parsePrimary()
	if n == nil {
		return nil
	}
	for {
		save := *p
		r, size := p.peekRune()
		if r != '.' || size == 0 {
			break
		}
		if r2, _ := p.peekRuneAt(1); unicode.IsDigit(r2) {
			break // could be part of a float-like literal elsewhere; be conservative
		}
		dotStart := p.pos
		p.advance(1)
		dot := p.withTrivia(p.leaf(KindPunctuation, dotStart, "."))
		keyStart := p.pos
		key := p.tryIdentifier()
		if key == nil {
			*p = save
			break
		}
		_ = keyStart
		n = &Node{ID: p.alloc(), Kind: KindStructAccess, Span: address.Span{Start: start, End: p.pos}, Children: []*Node{n, dot, key}}
	}
	return n
}

func (p *parser) tryPunct(s string) (*Node, bool) {
	start := p.pos
	if int(p.pos)+len(s) > len(p.src) {
		return nil, false
	}
	if string(p.src[p.pos:int(p.pos)+len(s)]) != s {
		return nil, false
	}
	p.advance(len(s))
	return p.leaf(KindPunctuation, start, s), true
}

func (p *parser) tryIdentifier() *Node {
	start := p.pos
	r, size := p.peekRune()
	if size == 0 || !isIdentStart(r) {
		return nil
	}
	for {
		r2, s2 := p.peekRune()
		if s2 == 0 || !isIdentCont(r2) {
			break
		}
		p.advance(s2)
	}
	text := string(p.src[start:p.pos])
	kind := KindIdentifier
	if r0, _ := utf8.DecodeRuneInString(text); unicode.IsUpper(r0) {
		kind = KindSymbol
	}
	return p.withTrivia(p.leaf(kind, start, text))
}

// parsePrimary parses one atomic expression form: Int, Text,
// Identifier/Symbol, List, Struct, Parenthesized, Lambda.
func (p *parser) parsePrimary() *Node {
	if p.atEnd() {
		return nil
	}
	r, _ := p.peekRune()
	switch {
	case unicode.IsDigit(r):
		return p.parseInt()
	case r == '"' || r == '\'':
		return p.parseText()
	case r == '(':
		return p.parseParenOrList()
	case r == '[':
		return p.parseStruct()
	case r == '{':
		return p.parseLambda()
	case isIdentStart(r):
		return p.tryIdentifier()
	default:
		return nil
	}
}

func (p *parser) parseInt() *Node {
	start := p.pos
	for {
		r, size := p.peekRune()
		if size == 0 || !unicode.IsDigit(r) {
			break
		}
		p.advance(size)
	}
	return p.withTrivia(p.leaf(KindInt, start, string(p.src[start:p.pos])))
}

// countApostrophes counts a run of `'` starting at the cursor.
func (p *parser) countApostrophes() int {
	n := 0
	for {
		r, size := p.peekRuneAt(n)
		if size == 0 || r != '\'' {
			break
		}
		n += size
	}
	return n
}

// parseText implements spec.md §4.2: opening quote is k single-quotes
// then a double-quote; interpolations require k+1 braces; closing
// mirrors the opening.
func (p *parser) parseText() *Node {
	start := p.pos
	k := p.countApostrophes()
	p.advance(k)
	qStart := p.pos
	if r, size := p.peekRune(); size == 0 || r != '"' {
		// Not actually text; backtrack fully.
		p.pos = start
		return nil
	}
	p.advance(1)
	opening := p.leaf(KindQuote, qStart, string(p.src[start:p.pos]))
	opening.Opening = true
	opening.Level = k

	var parts []*Node
	for {
		if p.atEnd() {
			errTok := p.errorLeaf(p.pos, "unterminated text literal")
			return &Node{ID: p.alloc(), Kind: KindText, Span: address.Span{Start: start, End: p.pos}, Children: append(append([]*Node{opening}, parts...), errTok)}
		}
		if p.atClosingQuote(k) {
			closeStart := p.pos
			p.advance(1 + k)
			closing := p.withTrivia(p.leaf(KindQuote, closeStart, string(p.src[closeStart:closeStart+address.Offset(1+k)])))
			closing.Opening = false
			closing.Level = k
			return &Node{ID: p.alloc(), Kind: KindText, Span: address.Span{Start: start, End: p.pos}, Children: append(append([]*Node{opening}, parts...), closing)}
		}
		if p.atOpenBraces(k + 1) {
			interpStart := p.pos
			p.advance(k + 1)
			openBraces := p.withTrivia(p.leaf(KindPunctuation, interpStart, string(p.src[interpStart:p.pos])))
			expr := p.parseExpr()
			if expr == nil {
				expr = p.errorLeaf(p.pos, "expected expression in text interpolation")
			}
			if tr := p.scanTrivia(); len(tr) > 0 {
				expr = appendTrailingTrivia(expr, tr)
			}
			closeStart := p.pos
			if p.atCloseBraces(k + 1) {
				p.advance(k + 1)
				closeBraces := p.leaf(KindPunctuation, closeStart, string(p.src[closeStart:p.pos]))
				parts = append(parts, &Node{ID: p.alloc(), Kind: KindInterpolation, Span: address.Span{Start: interpStart, End: p.pos}, Level: k + 1, Children: []*Node{openBraces, expr, closeBraces}})
			} else {
				errTok := p.errorLeaf(closeStart, "unterminated text interpolation")
				parts = append(parts, &Node{ID: p.alloc(), Kind: KindInterpolation, Span: address.Span{Start: interpStart, End: p.pos}, Level: k + 1, Children: []*Node{openBraces, expr, errTok}})
			}
			continue
		}
		partStart := p.pos
		for !p.atEnd() && !p.atClosingQuote(k) && !p.atOpenBraces(k+1) {
			_, size := p.peekRune()
			p.advance(size)
		}
		raw := string(p.src[partStart:p.pos])
		normalized := norm.NFC.String(raw)
		parts = append(parts, p.leaf(KindTextPart, partStart, normalized))
	}
}

func (p *parser) atClosingQuote(k int) bool {
	r, size := p.peekRune()
	if size == 0 || r != '"' {
		return false
	}
	for i := 0; i < k; i++ {
		r2, s2 := p.peekRuneAt(1 + i)
		if s2 == 0 || r2 != '\'' {
			return false
		}
	}
	return true
}

func (p *parser) atOpenBraces(n int) bool {
	for i := 0; i < n; i++ {
		r, s := p.peekRuneAt(i)
		if s == 0 || r != '{' {
			return false
		}
	}
	return true
}

func (p *parser) atCloseBraces(n int) bool {
	for i := 0; i < n; i++ {
		r, s := p.peekRuneAt(i)
		if s == 0 || r != '}' {
			return false
		}
	}
	return true
}

// parseParenOrList implements the `(,)`/`(x,)`/`(x)` grammar from
// spec.md §4.2: a comma anywhere inside makes it a List; otherwise a
// lone inner expression makes it Parenthesized.
func (p *parser) parseParenOrList() *Node {
	start := p.pos
	p.advance(1) // '('
	open := p.withTrivia(p.leaf(KindPunctuation, start, "("))

	var items []*Node
	sawComma := false
	var emptyComma *Node
	if r, _ := p.peekRune(); r == ',' {
		commaStart := p.pos
		p.advance(1)
		emptyComma = p.withTrivia(p.leaf(KindPunctuation, commaStart, ","))
		sawComma = true
	}
	for {
		p.scanTrivia()
		if p.atEnd() {
			break
		}
		if r, _ := p.peekRune(); r == ')' {
			break
		}
		itemStart := p.pos
		val := p.parseExpr()
		if val == nil {
			val = p.errorLeaf(p.pos, "expected list item")
		}
		p.scanTrivia()
		var comma *Node
		if c, ok := p.tryPunct(","); ok {
			comma = p.withTrivia(c)
			sawComma = true
		} else if r, _ := p.peekRune(); r != ')' {
			val = &Node{ID: p.alloc(), Kind: KindError, Span: val.Span, Children: []*Node{val}, Err: &ErrorPayload{Message: "missing comma after list item"}}
		}
		kids := []*Node{val}
		if comma != nil {
			kids = append(kids, comma)
		}
		items = append(items, &Node{ID: p.alloc(), Kind: KindListItem, Span: address.Span{Start: itemStart, End: p.pos}, Children: kids})
		if comma == nil {
			break
		}
	}
	var closeNode *Node
	if r, _ := p.peekRune(); r == ')' {
		closeStart := p.pos
		p.advance(1)
		closeNode = p.withTrivia(p.leaf(KindPunctuation, closeStart, ")"))
	} else {
		closeNode = p.errorLeaf(p.pos, "expected closing `)`")
	}

	if !sawComma && len(items) == 1 {
		inner := items[0].Children[0]
		return &Node{ID: p.alloc(), Kind: KindParenthesized, Span: address.Span{Start: start, End: p.pos}, Children: []*Node{open, inner, closeNode}}
	}
	children := []*Node{open}
	if emptyComma != nil {
		children = append(children, emptyComma)
	}
	children = append(append(children, items...), closeNode)
	return &Node{ID: p.alloc(), Kind: KindList, Span: address.Span{Start: start, End: p.pos}, Children: children}
}

// parseStruct implements `[k1: v1, k2: v2]` with the `[foo]` shorthand
// for `[Foo: foo]` (spec.md §4.2).
func (p *parser) parseStruct() *Node {
	start := p.pos
	p.advance(1) // '['
	open := p.withTrivia(p.leaf(KindPunctuation, start, "["))

	var fields []*Node
	for {
		p.scanTrivia()
		if p.atEnd() {
			break
		}
		if r, _ := p.peekRune(); r == ']' {
			break
		}
		fieldStart := p.pos
		save := *p
		keyOrValue := p.parseExpr()
		if keyOrValue == nil {
			keyOrValue = p.errorLeaf(p.pos, "expected struct field")
		}
		p.scanTrivia()
		var key, colon, value *Node
		if c, ok := p.tryPunct(":"); ok {
			key = keyOrValue
			colon = p.withTrivia(c)
			p.scanTrivia()
			value = p.parseExpr()
			if value == nil {
				value = p.errorLeaf(p.pos, "expected struct field value")
			}
		} else {
			value = keyOrValue
			_ = save
		}
		p.scanTrivia()
		var comma *Node
		if c, ok := p.tryPunct(","); ok {
			comma = p.withTrivia(c)
		} else if r, _ := p.peekRune(); r != ']' {
			value = &Node{ID: p.alloc(), Kind: KindError, Span: value.Span, Children: []*Node{value}, Err: &ErrorPayload{Message: "missing comma after struct field"}}
		}
		kids := []*Node{}
		if key != nil {
			kids = append(kids, key, colon)
		}
		kids = append(kids, value)
		if comma != nil {
			kids = append(kids, comma)
		}
		fields = append(fields, &Node{ID: p.alloc(), Kind: KindStructField, Span: address.Span{Start: fieldStart, End: p.pos}, Children: kids})
		if comma == nil {
			break
		}
	}
	var closeNode *Node
	if r, _ := p.peekRune(); r == ']' {
		closeStart := p.pos
		p.advance(1)
		closeNode = p.withTrivia(p.leaf(KindPunctuation, closeStart, "]"))
	} else {
		closeNode = p.errorLeaf(p.pos, "expected closing `]`")
	}
	return &Node{ID: p.alloc(), Kind: KindStruct, Span: address.Span{Start: start, End: p.pos}, Children: append(append([]*Node{open}, fields...), closeNode)}
}

// parseLambda implements `{ param* -> body }`.
func (p *parser) parseLambda() *Node {
	start := p.pos
	p.advance(1) // '{'
	open := p.withTrivia(p.leaf(KindPunctuation, start, "{"))

	var params []*Node
	for {
		save := *p
		p.scanTrivia()
		if _, ok := p.peekArrow(); ok {
			*p = save
			break
		}
		param := p.parsePostfix()
		if param == nil {
			*p = save
			break
		}
		params = append(params, param)
	}
	p.scanTrivia()
	var arrow *Node
	if a, ok := p.tryPunct("->"); ok {
		arrow = p.withTrivia(a)
	} else {
		arrow = p.errorLeaf(p.pos, "expected `->` in function literal")
	}
	body := p.parseExpr()
	if body == nil {
		body = p.errorLeaf(p.pos, "expected function body")
	}
	p.scanTrivia()
	var closeNode *Node
	if r, _ := p.peekRune(); r == '}' {
		closeStart := p.pos
		p.advance(1)
		closeNode = p.withTrivia(p.leaf(KindPunctuation, closeStart, "}"))
	} else {
		closeNode = p.errorLeaf(p.pos, "expected closing `}`")
	}
	return &Node{ID: p.alloc(), Kind: KindLambda, Span: address.Span{Start: start, End: p.pos}, Children: append(append([]*Node{open}, params...), arrow, body, closeNode)}
}

func (p *parser) peekArrow() (*Node, bool) {
	save := *p
	defer func() { *p = save }()
	return p.tryPunct("->")
}
