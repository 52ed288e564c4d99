package mir

import (
	"strconv"
	"strings"

	"github.com/sunholo/ailang/internal/config"
	"github.com/sunholo/ailang/internal/hir"
)

// idGen hands out dense ids for one module's entire MIR tree — every
// nested function body shares the same counter (spec.md §4.4: MIR ids
// are dense and scope-free; a closure can reference an id defined in
// any enclosing body, so there is one flat id space per module).
type idGen struct{ next int }

func (g *idGen) alloc() ID {
	id := ID(g.next)
	g.next++
	return id
}

// builder accumulates one Body's expressions, sharing an idGen with
// its enclosing builder so ids stay unique across the whole tree
// (the Go analogue of the original compiler's BodyBuilder).
type builder struct {
	gen  *idGen
	body *Body
}

func newBuilder(gen *idGen) *builder {
	return &builder{gen: gen, body: NewBody()}
}

func (b *builder) add(n *Node) ID {
	return b.body.Add(b.gen.alloc(), n)
}

func (b *builder) newParameter() ID { return b.gen.alloc() }

func (b *builder) pushInt(v string) ID  { return b.add(&Node{Kind: KindInt, IntValue: v}) }
func (b *builder) pushText(v string) ID { return b.add(&Node{Kind: KindText, Text: v}) }

func (b *builder) pushTag(symbol string, value *ID) ID {
	return b.add(&Node{Kind: KindTag, Text: symbol, TagValue: value})
}
func (b *builder) pushMatchTag() ID   { return b.pushTag("Match", nil) }
func (b *builder) pushNoMatchTag() ID { return b.pushTag("NoMatch", nil) }
func (b *builder) pushNothing() ID    { return b.pushTag("Nothing", nil) }

func (b *builder) pushBool(v bool) ID {
	if v {
		return b.pushTag("True", nil)
	}
	return b.pushTag("False", nil)
}

func (b *builder) pushReference(target ID) ID { return b.add(&Node{Kind: KindReference, Reference: target}) }
func (b *builder) pushBuiltin(name string) ID { return b.add(&Node{Kind: KindBuiltin, Text: name}) }
func (b *builder) pushList(items []ID) ID     { return b.add(&Node{Kind: KindList, Items: items}) }
func (b *builder) pushStruct(fields []StructField) ID {
	return b.add(&Node{Kind: KindStruct, Fields: fields})
}
func (b *builder) pushHirID(id hir.ID) ID { return b.add(&Node{Kind: KindHirID, HirID: id}) }

func (b *builder) pushCall(function ID, args []ID, responsible ID) ID {
	return b.add(&Node{Kind: KindCall, CallFunction: function, CallArguments: args, Responsible: responsible})
}

func (b *builder) pushPanic(reason, responsible ID) ID {
	return b.add(&Node{Kind: KindPanic, PanicReason: reason, Responsible: responsible})
}

// pushFunction lowers one MIR function: paramCount ordinary parameters
// plus the implicit trailing responsible parameter (spec.md §4.4:
// "each HIR function becomes an MIR Function whose implicit last
// parameter is responsible_parameter"). build receives a builder for
// the function's own nested Body.
func (b *builder) pushFunction(origin hir.ID, fuzzable bool, paramCount int, build func(inner *builder, params []ID, responsible ID)) ID {
	inner := newBuilder(b.gen)
	responsible := inner.newParameter()
	params := make([]ID, paramCount)
	for i := range params {
		params[i] = inner.newParameter()
	}
	build(inner, params, responsible)
	allParams := make([]ID, 0, paramCount+1)
	allParams = append(allParams, params...)
	allParams = append(allParams, responsible)
	return b.add(&Node{
		Kind:         KindFunction,
		Parameters:   allParams,
		Body:         inner.body,
		IsFuzzable:   fuzzable,
		OriginalHirs: []hir.ID{origin},
	})
}

// pushIfElse builds two zero-parameter functions and calls the IfElse
// builtin with them (every conditional in this lowering desugars the
// same way the source language itself does — spec.md §4.4.1's pattern
// compiler and §4.4's destructure/match lowering are built entirely
// out of this one primitive).
func (b *builder) pushIfElse(origin hir.ID, condition ID, thenBuild, elseBuild func(inner *builder), responsible ID) ID {
	builtinIfElse := b.pushBuiltin("IfElse")
	thenFn := b.pushFunction(origin, false, 0, func(inner *builder, _ []ID, _ ID) { thenBuild(inner) })
	elseFn := b.pushFunction(origin, false, 0, func(inner *builder, _ []ID, _ ID) { elseBuild(inner) })
	return b.pushCall(builtinIfElse, []ID{condition, thenFn, elseFn}, responsible)
}

// pushIsMatch compiles code that takes a `(Match, …)` or `(NoMatch, …)`
// tuple and returns a boolean (spec.md §4.4.1).
func (b *builder) pushIsMatch(matchOrNoMatch ID, responsible ID) ID {
	listGet := b.pushBuiltin("ListGet")
	zero := b.pushInt("0")
	tag := b.pushCall(listGet, []ID{matchOrNoMatch, zero}, responsible)
	equalsFn := b.pushBuiltin("Equals")
	matchTag := b.pushMatchTag()
	return b.pushCall(equalsFn, []ID{tag, matchTag}, responsible)
}

func compileErrors(b *builder, responsible ID, errs []*hir.Error) ID {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	reason := b.pushText(strings.Join(msgs, "\n"))
	id := b.pushPanic(reason, responsible)
	b.body.Exprs[id].IsPropagatedError = true
	return id
}

// ongoingDestructuring tracks the most recently compiled Destructure or
// Match-case result so a following PatternIdentifierReference knows
// where to read its capture from (spec.md §4.4).
type ongoingDestructuring struct {
	result    ID
	isTrivial bool
}

// context threads per-module lowering state (spec.md §4.4: "Maintains a
// mapping: hir-id → mir-id, a shared needs_function mir-id, a
// TracingConfig, an optional OngoingDestructuring, and a mutable error
// set").
type context struct {
	mapping       map[string]ID
	needsFunction ID
	tracing       config.TracingConfig
	ongoing       *ongoingDestructuring
	errors        *[]*Error
}

func (c *context) reportf(code, message string) {
	*c.errors = append(*c.errors, &Error{Code: code, Message: message})
}

// get/set wrap mapping's hir-id keying: hir.ID isn't comparable (see
// hir.ID.Key()), so the hir-id -> mir-id mapping is keyed by string.
func (c *context) get(id hir.ID) ID       { return c.mapping[id.Key()] }
func (c *context) set(id hir.ID, v ID) ID { c.mapping[id.Key()] = v; return v }

// Lower desugars an HIR module into MIR (spec.md §4.4).
func Lower(m *hir.Module, tracing config.TracingConfig) *Module {
	gen := &idGen{}
	top := newBuilder(gen)
	needsFn := generateNeedsFunction(top)

	moduleHirID := hir.ID{Module: m.Address}
	moduleHirIDRef := top.pushHirID(moduleHirID)

	errs := []*Error{}
	ctx := &context{
		mapping:       map[string]ID{},
		needsFunction: needsFn,
		tracing:       tracing,
		errors:        &errs,
	}
	ctx.compileExpressions(top, moduleHirIDRef, m.Top)

	return &Module{
		Address:       m.Address,
		Top:           top.body,
		NeedsFunction: needsFn,
		Errors:        errs,
	}
}

// generateNeedsFunction synthesizes the module-wide `needs` function
// once (spec.md §4.4: "synthesized once at module top"), grounded
// exactly on the original compiler's generate_needs_function.
func generateNeedsFunction(top *builder) ID {
	needsHirID := hir.ID{Path: []hir.Component{{Name: "needs"}}}
	return top.pushFunction(needsHirID, false, 3, func(inner *builder, params []ID, responsibleForCall ID) {
		condition, reason, responsibleForCondition := params[0], params[1], params[2]

		needsCode := inner.pushHirID(needsHirID)
		equalsFn := inner.pushBuiltin("Equals")
		nothingTag := inner.pushNothing()

		trueTag := inner.pushBool(true)
		falseTag := inner.pushBool(false)
		isConditionTrue := inner.pushCall(equalsFn, []ID{condition, trueTag}, needsCode)
		isConditionBool := inner.pushIfElse(needsHirID, isConditionTrue,
			func(b *builder) { b.pushReference(trueTag) },
			func(b *builder) { b.pushCall(equalsFn, []ID{condition, falseTag}, needsCode) },
			needsCode,
		)
		inner.pushIfElse(needsHirID, isConditionBool,
			func(b *builder) { b.pushReference(nothingTag) },
			func(b *builder) {
				reasonMsg := b.pushText("The `condition` must be either `True` or `False`.")
				b.pushPanic(reasonMsg, responsibleForCall)
			},
			needsCode,
		)

		typeOfFn := inner.pushBuiltin("TypeOf")
		typeOfReason := inner.pushCall(typeOfFn, []ID{reason}, responsibleForCall)
		textTag := inner.pushTag("Text", nil)
		isReasonText := inner.pushCall(equalsFn, []ID{typeOfReason, textTag}, responsibleForCall)
		inner.pushIfElse(needsHirID, isReasonText,
			func(b *builder) { b.pushReference(nothingTag) },
			func(b *builder) {
				reasonMsg := b.pushText("The `reason` must be a text.")
				b.pushPanic(reasonMsg, responsibleForCall)
			},
			needsCode,
		)

		inner.pushIfElse(needsHirID, condition,
			func(b *builder) { b.pushReference(nothingTag) },
			func(b *builder) { b.pushPanic(reason, responsibleForCondition) },
			needsCode,
		)
	})
}

func (c *context) compileExpressions(b *builder, responsibleForNeeds ID, body *hir.Body) {
	for _, id := range body.Order {
		n, _ := body.Find(id)
		c.compileExpression(b, responsibleForNeeds, id, n)
	}
}

func (c *context) compileExpression(b *builder, responsibleForNeeds ID, hirID hir.ID, n *hir.Node) ID {
	var id ID
	switch n.Kind {
	case hir.KindInt:
		id = b.pushInt(n.IntValue)
	case hir.KindText:
		id = b.pushText(n.Text)
	case hir.KindReference:
		id = b.pushReference(c.get(n.Reference))
	case hir.KindSymbol:
		id = b.pushTag(n.Text, nil)
	case hir.KindBuiltin:
		id = b.pushBuiltin(n.Text)
	case hir.KindList:
		items := make([]ID, len(n.Items))
		for i, it := range n.Items {
			items[i] = c.get(it)
		}
		id = b.pushList(items)
	case hir.KindStruct:
		fields := make([]StructField, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = StructField{Key: c.get(f.Key), Value: c.get(f.Value)}
		}
		id = b.pushStruct(fields)
	case hir.KindDestructure:
		id = c.compileDestructure(b, hirID, n)
	case hir.KindPatternIdentifierReference:
		id = c.compilePatternIdentifierReference(b, hirID, n)
	case hir.KindMatch:
		id = c.compileMatch(b, hirID, n, responsibleForNeeds)
	case hir.KindFunction:
		id = c.compileFunction(b, hirID, n, responsibleForNeeds)
	case hir.KindCall:
		id = c.compileCall(b, hirID, n)
	case hir.KindUseModule:
		relID := b.pushText(n.RelativePath)
		id = b.add(&Node{Kind: KindUseModule, CurrentModule: n.CurrentModule, RelativePath: relID, Responsible: responsibleForNeeds})
	case hir.KindNeeds:
		responsible := b.pushHirID(hirID)
		id = b.pushCall(c.needsFunction, []ID{c.get(n.NeedsCondition), c.get(n.NeedsReason), responsibleForNeeds}, responsible)
	case hir.KindError:
		responsible := b.pushHirID(hirID)
		id = compileErrors(b, responsible, n.Errors)
	default:
		responsible := b.pushHirID(hirID)
		id = b.pushPanic(b.pushText("unsupported HIR expression "+n.Kind.String()), responsible)
	}
	c.set(hirID, id)

	if c.tracing.EvaluatedExpressions != config.Off {
		hirExpr := b.pushHirID(hirID)
		b.add(&Node{Kind: KindTraceExpressionEvaluated, TraceHirExpression: hirExpr, TraceValue: id})
		b.pushReference(id)
	}
	return id
}

func (c *context) compileFunction(b *builder, hirID hir.ID, n *hir.Node, responsibleForNeeds ID) ID {
	fnID := b.pushFunction(hirID, n.IsFuzzable(), len(n.Parameters), func(inner *builder, params []ID, responsibleParam ID) {
		for i, p := range n.Parameters {
			c.set(p, params[i])
		}
		responsible := responsibleParam
		if n.FunctionKind == hir.FunctionCurlyBraces {
			// Whoever is responsible for `needs` in the enclosing scope
			// is also responsible for `needs` inside a curly-braces
			// function (spec.md §4.4).
			responsible = responsibleForNeeds
		}
		c.compileExpressions(inner, responsible, n.FunctionBody)
	})

	if c.tracing.RegisterFuzzables != config.Off && n.IsFuzzable() {
		hirDef := b.pushHirID(hirID)
		b.add(&Node{Kind: KindTraceFoundFuzzableFunction, TraceHirDefinition: hirDef, TraceFunctionRef: fnID})
		return b.pushReference(fnID)
	}
	return fnID
}

func (c *context) compileCall(b *builder, hirID hir.ID, n *hir.Node) ID {
	responsible := b.pushHirID(hirID)
	args := make([]ID, len(n.CallArguments))
	for i, a := range n.CallArguments {
		args[i] = c.get(a)
	}

	if c.tracing.Calls != config.Off {
		hirCall := b.pushHirID(hirID)
		b.add(&Node{
			Kind: KindTraceCallStarts, TraceHirCall: hirCall, TraceFunction: c.get(n.CallFunction),
			TraceArguments: append([]ID(nil), args...), Responsible: responsible,
		})
	}
	call := b.pushCall(c.get(n.CallFunction), args, responsible)
	if c.tracing.Calls != config.Off {
		b.add(&Node{Kind: KindTraceCallEnds, TraceReturnValue: call})
		return b.pushReference(call)
	}
	return call
}

func (c *context) compileDestructure(b *builder, hirID hir.ID, n *hir.Node) ID {
	responsible := b.pushHirID(hirID)
	exprID := c.get(n.DestructureExpr)

	if n.DestructurePattern.Kind == hir.PatternIdentifier {
		result := b.pushReference(exprID)
		c.ongoing = &ongoingDestructuring{result: result, isTrivial: true}
		return result
	}

	patternResult := compilePattern(b, hirID, responsible, exprID, n.DestructurePattern)
	c.ongoing = &ongoingDestructuring{result: patternResult, isTrivial: false}

	nothing := b.pushNothing()
	isMatch := b.pushIsMatch(patternResult, responsible)
	return b.pushIfElse(hirID, isMatch,
		func(inner *builder) { inner.pushReference(nothing) },
		func(inner *builder) {
			listGet := inner.pushBuiltin("ListGet")
			one := inner.pushInt("1")
			reason := inner.pushCall(listGet, []ID{patternResult, one}, responsible)
			inner.pushPanic(reason, responsible)
		},
		responsible,
	)
}

func (c *context) compilePatternIdentifierReference(b *builder, hirID hir.ID, n *hir.Node) ID {
	og := c.ongoing
	if og == nil {
		c.reportf("NoOngoingDestructuring", "PatternIdentifierReference outside a destructure or match case")
		return b.pushPanic(b.pushText("internal lowering error: no ongoing destructuring"), b.pushHirID(hirID))
	}
	if og.isTrivial {
		return b.pushReference(og.result)
	}
	listGet := b.pushBuiltin("ListGet")
	index := b.pushInt(strconv.Itoa(n.PatternID + 1))
	responsible := b.pushHirID(hirID)
	return b.pushCall(listGet, []ID{og.result, index}, responsible)
}

func (c *context) compileMatch(b *builder, hirID hir.ID, n *hir.Node, responsibleForNeeds ID) ID {
	responsibleForMatch := b.pushHirID(hirID)
	exprID := c.get(n.MatchExpr)
	return c.compileMatchRec(b, hirID, exprID, n.Cases, responsibleForNeeds, responsibleForMatch)
}

func (c *context) compileMatchRec(b *builder, hirID hir.ID, exprID ID, cases []hir.MatchCase, responsibleForNeeds, responsibleForMatch ID) ID {
	if len(cases) == 0 {
		reason := b.pushText("No case matched the given expression.")
		return b.pushPanic(reason, responsibleForMatch)
	}
	current, rest := cases[0], cases[1:]

	patternResult := compilePattern(b, hirID, responsibleForMatch, exprID, current.Pattern)
	isMatch := b.pushIsMatch(patternResult, responsibleForMatch)
	builtinIfElse := b.pushBuiltin("IfElse")
	thenFn := b.pushFunction(hirID, false, 0, func(inner *builder, _ []ID, _ ID) {
		c.ongoing = &ongoingDestructuring{result: patternResult, isTrivial: false}
		c.compileExpressions(inner, responsibleForNeeds, current.CaseBody)
	})
	elseFn := b.pushFunction(hirID, false, 0, func(inner *builder, _ []ID, _ ID) {
		listGet := inner.pushBuiltin("ListGet")
		one := inner.pushInt("1")
		// Computed for its side effect on body ordering, matching the
		// reference implementation; actual concatenation of no-match
		// reasons across cases is left as a TODO there too.
		inner.pushCall(listGet, []ID{patternResult, one}, responsibleForMatch)
		c.compileMatchRec(inner, hirID, exprID, rest, responsibleForNeeds, responsibleForMatch)
	})
	return b.pushCall(builtinIfElse, []ID{isMatch, thenFn, elseFn}, responsibleForMatch)
}
