package hir

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sunholo/ailang/internal/address"
	"github.com/sunholo/ailang/internal/ast"
)

// idGen allocates hir-ids under a fixed prefix, auto-disambiguating
// named keys and incrementing an unnamed positional counter
// (spec.md §4.3: "named keys auto-disambiguate... unnamed keys use an
// incrementing positional counter").
type idGen struct {
	module   address.Module
	prefix   []Component
	named    map[string]int
	position int
}

func newIDGen(module address.Module) *idGen {
	return &idGen{module: module, named: map[string]int{}}
}

func (g *idGen) id(path []Component) ID {
	full := make([]Component, len(g.prefix)+len(path))
	copy(full, g.prefix)
	copy(full[len(g.prefix):], path)
	return ID{Module: g.module, Path: full}
}

func (g *idGen) namedID(name string) ID {
	d := g.named[name]
	g.named[name] = d + 1
	return g.id([]Component{{Name: name, Disambiguator: d}})
}

func (g *idGen) positionalID() ID {
	d := g.position
	g.position++
	return g.id([]Component{{Disambiguator: d}})
}

func (g *idGen) child(c Component) *idGen {
	prefix := make([]Component, len(g.prefix)+1)
	copy(prefix, g.prefix)
	prefix[len(g.prefix)] = c
	return &idGen{module: g.module, prefix: prefix, named: map[string]int{}}
}

// Context threads everything AST→HIR lowering needs through recursion
// (spec.md §4.3: "the implementer maintains a Context with: the
// current body, an IdPrefix, an immutable scope of visible names, a
// boolean is_top_level, and the pre-allocated ids of the synthetic use
// and builtins bindings").
type Context struct {
	module     address.Module
	isBuiltins bool
	isTopLevel bool
	scope      map[string]ID
	gen        *idGen
	body       *Body
	useID      ID
	builtinsID ID
	errors     *[]*Error
}

func (c *Context) reportf(code, message string) {
	*c.errors = append(*c.errors, &Error{Code: code, Message: message})
}

func (c *Context) add(id ID, n *Node) ID { return c.body.Add(id, n) }

func (c *Context) fresh(n *Node) ID { return c.add(c.gen.positionalID(), n) }

// withScope returns a shallow copy of c with an extended, independently
// mutable scope (the "immutable scope" is modeled as copy-on-extend).
func (c *Context) withScope(extra map[string]ID) *Context {
	scope := make(map[string]ID, len(c.scope)+len(extra))
	for k, v := range c.scope {
		scope[k] = v
	}
	for k, v := range extra {
		scope[k] = v
	}
	cp := *c
	cp.scope = scope
	return &cp
}

// withNestedBody returns a copy of c that lowers into a fresh Body
// under a fresh id prefix — used for function bodies and match case
// bodies, each of which gets its own scope chain.
func (c *Context) withNestedBody(prefix Component) (*Context, *Body) {
	body := NewBody()
	cp := *c
	cp.gen = c.gen.child(prefix)
	cp.body = body
	cp.isTopLevel = false
	return &cp, body
}

func uppercaseFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// Lower name-resolves, scopes and desugars an AST module into HIR
// (spec.md §4.3). isBuiltins selects the special bootstrap lowering
// for the "Builtins" module itself.
func Lower(m *ast.Module, isBuiltins bool) *Module {
	errs := []*Error{}
	body := NewBody()
	ctx := &Context{
		module:     m.Address,
		isBuiltins: isBuiltins,
		isTopLevel: true,
		scope:      map[string]ID{},
		gen:        newIDGen(m.Address),
		body:       body,
		errors:     &errs,
	}

	useID := ctx.gen.namedID("use")
	ctx.useID = useID
	ctx.scope["use"] = useID
	body.Bind(useID, "use")
	{
		useGen := ctx.gen.child(Component{Name: "use"})
		paramID := useGen.namedID("relative_path")
		innerBody := NewBody()
		innerBody.Add(useGen.positionalID(), &Node{Kind: KindUseModule, CurrentModule: ctx.module, RelativePath: ""})
		body.Add(useID, &Node{Kind: KindFunction, Parameters: []ID{paramID}, FunctionBody: innerBody, FunctionKind: FunctionUse})
	}

	if !isBuiltins {
		builtinsID := ctx.gen.namedID("builtins")
		ctx.builtinsID = builtinsID
		ctx.scope["builtins"] = builtinsID
		body.Bind(builtinsID, "builtins")
		body.Add(builtinsID, &Node{Kind: KindUseModule, CurrentModule: ctx.module, RelativePath: "Builtins"})
	}

	type export struct {
		name string
		id   ID
	}
	var exports []export
	seen := map[string]bool{}

	for _, top := range m.Top {
		switch {
		case top.Kind == ast.KindAssignment:
			name, id := ctx.lowerTopLevelAssignment(top)
			if top.IsPublic && name != "" {
				if seen[name] {
					ctx.reportf("PublicAssignmentWithSameName", "duplicate public assignment "+name)
				}
				seen[name] = true
				exports = append(exports, export{name: name, id: id})
			}
		default:
			// A bare top-level expression (legal per the grammar but
			// exporting nothing); still lowered for its side effects
			// and so later references to earlier-declared ids resolve.
			ctx.lowerExpr(top)
		}
	}

	var exportsID ID
	if isBuiltins {
		var fields []StructField
		for _, name := range knownBuiltins {
			keyID := ctx.fresh(&Node{Kind: KindSymbol, Text: name})
			valID := ctx.fresh(&Node{Kind: KindBuiltin, Text: name})
			fields = append(fields, StructField{Key: keyID, Value: valID})
		}
		exportsID = ctx.fresh(&Node{Kind: KindStruct, Fields: fields})
	} else {
		var fields []StructField
		for _, e := range exports {
			keyID := ctx.fresh(&Node{Kind: KindSymbol, Text: uppercaseFirst(e.name)})
			valID := ctx.fresh(&Node{Kind: KindReference, Reference: e.id})
			fields = append(fields, StructField{Key: keyID, Value: valID})
		}
		exportsID = ctx.fresh(&Node{Kind: KindStruct, Fields: fields})
	}

	return &Module{
		Address:    m.Address,
		Top:        body,
		UseID:      useID,
		BuiltinsID: ctx.builtinsID,
		ExportsID:  exportsID,
		Errors:     errs,
	}
}

// knownBuiltins lists the subset of native builtins this implementation
// models explicitly; every one of them is exercised by the desugarings
// in this file (structGet, text coercion). The real language has
// many more, which would just be additional KindBuiltin leaves here.
var knownBuiltins = []string{
	"StructGet", "TypeOf", "Equals", "IfElse", "ToDebugText", "TextConcatenate",
}

func (c *Context) lowerTopLevelAssignment(n *ast.Node) (string, ID) {
	switch {
	case n.Name != nil && n.Pattern == nil:
		// Assignment::Function.
		fn := n.Body
		name := n.Name.Text
		fnCtx := *c
		fnCtx.gen = c.gen.child(Component{Name: name})
		fnCtx.isTopLevel = false
		bound := c.lowerFunctionAt(fn, &fnCtx, FunctionNormal, name)
		c.scope[name] = bound
		return name, bound

	case n.Name != nil && n.Pattern != nil:
		valID := c.lowerExpr(n.Body)
		c.body.Bind(valID, n.Name.Text)
		c.scope[n.Name.Text] = valID
		return n.Name.Text, valID

	default:
		// Pattern assignment / destructure: no single export name, so
		// the caller's IsPublic branch exports nothing for this shape
		// even under `:=`; still lower it for its bindings.
		c.lowerDestructure(n)
		return "", ID{}
	}
}

// lowerFunctionAt lowers an ast Function literal using a pre-built
// child context (so a named top-level assignment's function body sees
// its own name in scope already, for self-recursion), returning the
// id the Function expression was bound at.
func (c *Context) lowerFunctionAt(fn *ast.Node, fnCtx *Context, kind FunctionKind, selfName string) ID {
	ownID := c.gen.namedID(selfName)
	if selfName != "" {
		fnCtx.scope = fnCtx.withScope(map[string]ID{selfName: ownID}).scope
	}
	node := c.buildFunction(fn, fnCtx, kind)
	c.add(ownID, node)
	c.body.Bind(ownID, selfName)
	return ownID
}

// buildFunction lowers an ast KindFunction node's parameters and body
// into a fresh nested Body, returning the HIR Function node (not yet
// added to any Body — the caller picks the id).
func (c *Context) buildFunction(fn *ast.Node, fnCtx *Context, kind FunctionKind) *Node {
	inner, body := fnCtx.withNestedBody(Component{Name: "body"})
	var paramIDs []ID
	extra := map[string]ID{}
	type prologueEntry struct {
		paramID ID
		pattern *ast.Node
	}
	var prologue []prologueEntry
	for _, p := range fn.Parameters {
		if p.Kind == ast.KindIdentifier {
			pid := inner.gen.namedID(p.Text)
			paramIDs = append(paramIDs, pid)
			extra[p.Text] = pid
			continue
		}
		// Complex parameter pattern: bind an anonymous parameter then
		// destructure it in the body prologue.
		pid := inner.gen.positionalID()
		paramIDs = append(paramIDs, pid)
		prologue = append(prologue, prologueEntry{paramID: pid, pattern: p})
	}
	inner = inner.withScope(extra)
	for _, entry := range prologue {
		refID := inner.fresh(&Node{Kind: KindReference, Reference: entry.paramID})
		pattern := lowerPattern(entry.pattern)
		inner.fresh(&Node{Kind: KindDestructure, DestructureExpr: refID, DestructurePattern: pattern})
		names := CapturedIdentifiers(pattern)
		capturedScope := map[string]ID{}
		for i, name := range names {
			id := inner.gen.namedID(name)
			inner.add(id, &Node{Kind: KindPatternIdentifierReference, PatternID: i})
			inner.body.Bind(id, name)
			capturedScope[name] = id
		}
		inner = inner.withScope(capturedScope)
	}
	inner.lowerExpr(fn.Body)
	return &Node{Kind: KindFunction, Parameters: paramIDs, FunctionBody: body, FunctionKind: kind}
}

func (c *Context) lowerDestructure(n *ast.Node) ID {
	exprID := c.lowerExpr(n.Body)
	pattern := lowerPattern(n.Pattern)
	names := CapturedIdentifiers(pattern)
	destructID := c.fresh(&Node{Kind: KindDestructure, DestructureExpr: exprID, DestructurePattern: pattern})
	for i, name := range names {
		id := c.gen.namedID(name)
		c.add(id, &Node{Kind: KindPatternIdentifierReference, PatternID: i})
		c.body.Bind(id, name)
		c.scope[name] = id
	}
	return destructID
}

// lowerExpr lowers one AST expression node into the current body,
// returning the id of its resulting HIR expression.
func (c *Context) lowerExpr(n *ast.Node) ID {
	switch n.Kind {
	case ast.KindInt:
		return c.fresh(&Node{Kind: KindInt, IntValue: n.IntValue})

	case ast.KindSymbol:
		return c.fresh(&Node{Kind: KindSymbol, Text: n.Text})

	case ast.KindIdentifier:
		if id, ok := c.scope[n.Text]; ok {
			return c.fresh(&Node{Kind: KindReference, Reference: id})
		}
		c.reportf("UnknownReference", "unknown reference "+n.Text)
		return c.fresh(&Node{Kind: KindError, Errors: []*Error{{Code: "UnknownReference", Message: "unknown reference " + n.Text}}})

	case ast.KindText:
		return c.lowerText(n)

	case ast.KindList:
		var items []ID
		for _, it := range n.Items {
			items = append(items, c.lowerExpr(it))
		}
		return c.fresh(&Node{Kind: KindList, Items: items})

	case ast.KindStruct:
		var fields []StructField
		for _, f := range n.Fields {
			keyID := c.lowerExpr(f.Key)
			valID := c.lowerExpr(f.Value)
			fields = append(fields, StructField{Key: keyID, Value: valID})
		}
		return c.fresh(&Node{Kind: KindStruct, Fields: fields})

	case ast.KindStructAccess:
		receiverID := c.lowerExpr(n.Receiver)
		return c.structAccess(receiverID, n.Key.Text)

	case ast.KindFunction:
		node := c.buildFunction(n, c, FunctionCurlyBraces)
		return c.fresh(node)

	case ast.KindCall:
		return c.lowerCall(n)

	case ast.KindMatch:
		return c.lowerMatch(n)

	case ast.KindError:
		msg := "lowered from an AST error"
		if len(n.Errors) > 0 {
			msg = n.Errors[0].Message
		}
		return c.fresh(&Node{Kind: KindError, Errors: []*Error{{Code: "LoweredError", Message: msg}}})

	default:
		return c.fresh(&Node{Kind: KindError, Errors: []*Error{{Code: "UnexpectedExpression", Message: n.Kind.String() + " is not valid in expression position"}}})
	}
}

func (c *Context) lowerCall(n *ast.Node) ID {
	if n.Receiver.Kind == ast.KindIdentifier {
		switch n.Receiver.Text {
		case "needs":
			if _, shadowed := c.scope["needs"]; !shadowed {
				return c.lowerNeeds(n)
			}
		case "use":
			if id, ok := c.scope["use"]; ok && id.Key() == c.useID.Key() && len(n.Arguments) == 1 {
				if path, ok := literalText(n.Arguments[0]); ok {
					return c.fresh(&Node{Kind: KindUseModule, CurrentModule: c.module, RelativePath: path})
				}
			}
		}
	}
	fnID := c.lowerExpr(n.Receiver)
	var args []ID
	for _, a := range n.Arguments {
		args = append(args, c.lowerExpr(a))
	}
	return c.fresh(&Node{Kind: KindCall, CallFunction: fnID, CallArguments: args})
}

func (c *Context) lowerNeeds(n *ast.Node) ID {
	if len(n.Arguments) != 1 && len(n.Arguments) != 2 {
		c.reportf("NeedsWithWrongNumberOfArguments", "needs takes one or two arguments")
		return c.fresh(&Node{Kind: KindError, Errors: []*Error{{Code: "NeedsWithWrongNumberOfArguments", Message: "needs takes one or two arguments"}}})
	}
	conditionID := c.lowerExpr(n.Arguments[0])
	var reasonID ID
	if len(n.Arguments) == 2 {
		reasonID = c.lowerExpr(n.Arguments[1])
	} else {
		reasonID = c.fresh(&Node{Kind: KindText, Text: "a needs was not met"})
	}
	return c.fresh(&Node{Kind: KindNeeds, NeedsCondition: conditionID, NeedsReason: reasonID})
}

func literalText(n *ast.Node) (string, bool) {
	if n.Kind != ast.KindText {
		return "", false
	}
	var b strings.Builder
	for _, p := range n.Parts {
		if p.Kind != ast.KindTextPart {
			return "", false
		}
		b.WriteString(p.Text)
	}
	return b.String(), true
}

// structAccess desugars `receiver.key` to a direct StructGet builtin
// call (spec.md §4.3); see DESIGN.md for why this implementation does
// not additionally route non-builtins-module access through a
// `builtins.structGet` reference.
func (c *Context) structAccess(receiverID ID, key string) ID {
	keyID := c.fresh(&Node{Kind: KindSymbol, Text: uppercaseFirst(key)})
	fnID := c.fresh(&Node{Kind: KindBuiltin, Text: "StructGet"})
	return c.fresh(&Node{Kind: KindCall, CallFunction: fnID, CallArguments: []ID{receiverID, keyID}})
}

func (c *Context) builtinRef(name string) ID {
	if c.isBuiltins {
		return c.fresh(&Node{Kind: KindBuiltin, Text: name})
	}
	baseID := c.fresh(&Node{Kind: KindReference, Reference: c.builtinsID})
	return c.structAccess(baseID, name)
}

func (c *Context) builtinCall(name string, args []ID) ID {
	fnID := c.builtinRef(name)
	return c.fresh(&Node{Kind: KindCall, CallFunction: fnID, CallArguments: args})
}

// lowerText desugars interpolated text into a left fold of
// TextConcatenate calls, coercing non-literal parts with
// `ifElse (typeOf x == Text) { x } { toDebugText x }` (spec.md §4.3).
func (c *Context) lowerText(n *ast.Node) ID {
	allLiteral := true
	for _, p := range n.Parts {
		if p.Kind != ast.KindTextPart {
			allLiteral = false
			break
		}
	}
	if allLiteral {
		var b strings.Builder
		for _, p := range n.Parts {
			b.WriteString(p.Text)
		}
		return c.fresh(&Node{Kind: KindText, Text: b.String()})
	}

	var pieces []ID
	for _, p := range n.Parts {
		if p.Kind == ast.KindTextPart {
			pieces = append(pieces, c.fresh(&Node{Kind: KindText, Text: p.Text}))
			continue
		}
		exprID := c.lowerExpr(p)
		pieces = append(pieces, c.coerceToText(exprID))
	}
	if len(pieces) == 0 {
		return c.fresh(&Node{Kind: KindText, Text: ""})
	}
	result := pieces[0]
	for _, p := range pieces[1:] {
		result = c.builtinCall("TextConcatenate", []ID{result, p})
	}
	return result
}

// coerceToText builds `ifElse (typeOf x == Text) { x } { toDebugText x }`.
func (c *Context) coerceToText(exprID ID) ID {
	typeID := c.builtinCall("TypeOf", []ID{exprID})
	textSymbolID := c.fresh(&Node{Kind: KindSymbol, Text: "Text"})
	eqID := c.builtinCall("Equals", []ID{typeID, textSymbolID})

	thenCtx, thenBody := c.withNestedBody(Component{Name: "then"})
	thenBody.Add(thenCtx.gen.positionalID(), &Node{Kind: KindReference, Reference: exprID})
	thenFnID := c.fresh(&Node{Kind: KindFunction, FunctionBody: thenBody, FunctionKind: FunctionCurlyBraces})

	elseCtx, elseBody := c.withNestedBody(Component{Name: "else"})
	elseCtx.builtinCall("ToDebugText", []ID{exprID})
	elseFnID := c.fresh(&Node{Kind: KindFunction, FunctionBody: elseBody, FunctionKind: FunctionCurlyBraces})

	return c.builtinCall("IfElse", []ID{eqID, thenFnID, elseFnID})
}

func (c *Context) lowerMatch(n *ast.Node) ID {
	exprID := c.lowerExpr(n.Expression)
	var cases []MatchCase
	for _, astCase := range n.Cases {
		pattern := lowerPattern(astCase.Pattern)
		names := CapturedIdentifiers(pattern)
		caseCtx, caseBody := c.withNestedBody(Component{Name: "case"})
		extra := map[string]ID{}
		for i, name := range names {
			id := caseCtx.gen.namedID(name)
			caseBody.Add(id, &Node{Kind: KindPatternIdentifierReference, PatternID: i})
			caseBody.Bind(id, name)
			extra[name] = id
		}
		caseCtx = caseCtx.withScope(extra)
		caseCtx.lowerExpr(astCase.Body)
		cases = append(cases, MatchCase{Pattern: pattern, CaseBody: caseBody})
	}
	return c.fresh(&Node{Kind: KindMatch, MatchExpr: exprID, Cases: cases})
}

// lowerPattern converts an ast pattern node into its structural HIR
// form (spec.md §3); unlike expressions, patterns carry no hir-ids of
// their own — captures are numbered later by CapturedIdentifiers.
func lowerPattern(n *ast.Node) *Pattern {
	switch n.Kind {
	case ast.KindIdentifier:
		return &Pattern{Kind: PatternIdentifier, Name: n.Text}
	case ast.KindInt:
		return &Pattern{Kind: PatternInt, IntValue: n.IntValue}
	case ast.KindText:
		text, _ := literalText(n)
		return &Pattern{Kind: PatternText, TextValue: text}
	case ast.KindSymbol:
		return &Pattern{Kind: PatternTag, TagSymbol: n.Text}
	case ast.KindTagPattern:
		var value *Pattern
		if n.Value != nil {
			value = lowerPattern(n.Value)
		}
		return &Pattern{Kind: PatternTag, TagSymbol: n.TagSymbol, TagValue: value}
	case ast.KindList:
		items := make([]*Pattern, len(n.Items))
		for i, it := range n.Items {
			items[i] = lowerPattern(it)
		}
		return &Pattern{Kind: PatternList, Items: items}
	case ast.KindStruct:
		fields := make([]PatternField, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = PatternField{Key: f.Key.Text, Value: lowerPattern(f.Value)}
		}
		return &Pattern{Kind: PatternStruct, Fields: fields}
	case ast.KindOrPattern:
		items := make([]*Pattern, len(n.Items))
		for i, it := range n.Items {
			items[i] = lowerPattern(it)
		}
		return &Pattern{Kind: PatternOr, Items: items}
	default:
		msg := "invalid pattern"
		if n.Kind == ast.KindError && len(n.Errors) > 0 {
			msg = n.Errors[0].Message
		}
		return &Pattern{Kind: PatternError, Errors: []*Error{{Code: "PatternContainsCall", Message: msg}}}
	}
}
