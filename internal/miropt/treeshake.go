package miropt

import "github.com/sunholo/ailang/internal/mir"

// ShakeTree removes definitions with no remaining uses whose
// definition is pure (spec.md §4.5.3). A body's final expression (the
// exports struct, or a function's return value) is always kept
// regardless of use count, as are every id in exempt.
func ShakeTree(body *mir.Body, pureness *PurenessInsights, exempt []mir.ID) bool {
	keep := map[mir.ID]bool{}
	for _, id := range exempt {
		keep[id] = true
	}
	if last, ok := body.Last(); ok {
		keep[last] = true
	}

	uses := countUses(body)
	changed := false
	var kept []mir.ID
	for _, id := range body.Order {
		if !keep[id] && uses[id] == 0 && pureness.Of(id) != Effectful {
			delete(body.Exprs, id)
			changed = true
			continue
		}
		kept = append(kept, id)
	}
	body.Order = kept
	return changed
}

func countUses(body *mir.Body) map[mir.ID]int {
	uses := map[mir.ID]int{}
	note := func(id mir.ID) { uses[id]++ }
	for _, id := range body.Order {
		n := body.Exprs[id]
		switch n.Kind {
		case mir.KindReference:
			note(n.Reference)
		case mir.KindTag:
			if n.TagValue != nil {
				note(*n.TagValue)
			}
		case mir.KindList:
			for _, it := range n.Items {
				note(it)
			}
		case mir.KindStruct:
			for _, f := range n.Fields {
				note(f.Key)
				note(f.Value)
			}
		case mir.KindFunction:
			noteFreeUses(n.Body, uses)
		case mir.KindCall:
			note(n.CallFunction)
			for _, a := range n.CallArguments {
				note(a)
			}
			note(n.Responsible)
		case mir.KindPanic:
			note(n.PanicReason)
			note(n.Responsible)
		case mir.KindUseModule:
			note(n.RelativePath)
			note(n.Responsible)
		case mir.KindTraceCallStarts:
			note(n.TraceHirCall)
			note(n.TraceFunction)
			for _, a := range n.TraceArguments {
				note(a)
			}
			note(n.Responsible)
		case mir.KindTraceCallEnds:
			note(n.TraceReturnValue)
		case mir.KindTraceExpressionEvaluated:
			note(n.TraceHirExpression)
			note(n.TraceValue)
		case mir.KindTraceFoundFuzzableFunction:
			note(n.TraceHirDefinition)
			note(n.TraceFunctionRef)
		}
	}
	return uses
}

// noteFreeUses walks a nested function body and records uses of any id
// it references that belongs to an enclosing scope (ids the inner
// body doesn't itself define), so an enclosing definition a closure
// captures is never shaken out from under it.
func noteFreeUses(inner *mir.Body, uses map[mir.ID]int) {
	local := map[mir.ID]bool{}
	for _, id := range inner.Order {
		local[id] = true
		if n := inner.Exprs[id]; n.Kind == mir.KindFunction {
			for _, p := range n.Parameters {
				local[p] = true
			}
		}
	}
	noteIfFree := func(id mir.ID) {
		if !local[id] {
			uses[id]++
		}
	}
	for _, id := range inner.Order {
		n := inner.Exprs[id]
		switch n.Kind {
		case mir.KindReference:
			noteIfFree(n.Reference)
		case mir.KindTag:
			if n.TagValue != nil {
				noteIfFree(*n.TagValue)
			}
		case mir.KindList:
			for _, it := range n.Items {
				noteIfFree(it)
			}
		case mir.KindStruct:
			for _, f := range n.Fields {
				noteIfFree(f.Key)
				noteIfFree(f.Value)
			}
		case mir.KindFunction:
			noteFreeUses(n.Body, uses)
		case mir.KindCall:
			noteIfFree(n.CallFunction)
			for _, a := range n.CallArguments {
				noteIfFree(a)
			}
			noteIfFree(n.Responsible)
		case mir.KindPanic:
			noteIfFree(n.PanicReason)
			noteIfFree(n.Responsible)
		case mir.KindUseModule:
			noteIfFree(n.RelativePath)
			noteIfFree(n.Responsible)
		case mir.KindTraceCallStarts:
			noteIfFree(n.TraceHirCall)
			noteIfFree(n.TraceFunction)
			for _, a := range n.TraceArguments {
				noteIfFree(a)
			}
			noteIfFree(n.Responsible)
		case mir.KindTraceCallEnds:
			noteIfFree(n.TraceReturnValue)
		case mir.KindTraceExpressionEvaluated:
			noteIfFree(n.TraceHirExpression)
			noteIfFree(n.TraceValue)
		case mir.KindTraceFoundFuzzableFunction:
			noteIfFree(n.TraceHirDefinition)
			noteIfFree(n.TraceFunctionRef)
		}
	}
}

// CollapseReferenceChains folds `x = Reference(y)` chains so every
// Reference points directly at a non-Reference definition (spec.md
// §4.5.3), shortening what tree shaking and CSE both have to look
// through.
func CollapseReferenceChains(body *mir.Body) bool {
	changed := false
	resolve := func(id mir.ID) mir.ID {
		seen := map[mir.ID]bool{}
		for {
			n, ok := body.Exprs[id]
			if !ok || n.Kind != mir.KindReference || seen[id] {
				return id
			}
			seen[id] = true
			id = n.Reference
		}
	}
	for _, id := range body.Order {
		n := body.Exprs[id]
		if n.Kind != mir.KindReference {
			continue
		}
		target := resolve(n.Reference)
		if target != n.Reference {
			n.Reference = target
			changed = true
		}
	}
	return changed
}
