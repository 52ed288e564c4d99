package miropt

import "github.com/sunholo/ailang/internal/mir"

// effectfulBuiltins never fold and are never CSE/tree-shake candidates
// even when their arguments are const, because their whole purpose is
// an observable side effect.
var effectfulBuiltins = map[string]bool{
	"Print": true,
}

// PurenessInsights memoizes the Purity of every id reachable from the
// body it was built over (spec.md §4.5: "Operates on a Body plus
// PurenessInsights carrying classifications").
type PurenessInsights struct {
	root  *mir.Body
	cache map[mir.ID]Purity
}

// AnalyzePureness classifies every expression in body (and its nested
// function bodies) in one bottom-up-on-demand pass.
func AnalyzePureness(body *mir.Body) *PurenessInsights {
	p := &PurenessInsights{root: body, cache: map[mir.ID]Purity{}}
	for _, id := range body.Order {
		p.of(body, id)
	}
	return p
}

// Of returns the previously computed purity of id, defaulting to
// Effectful for ids never classified (e.g. an id that no analyzed
// expression of this body defines or references).
func (p *PurenessInsights) Of(id mir.ID) Purity {
	if pur, ok := p.cache[id]; ok {
		return pur
	}
	return Effectful
}

// IsDeterministic reports whether id may participate in common-subtree
// elimination.
func (p *PurenessInsights) IsDeterministic(id mir.ID) bool { return p.Of(id) >= Deterministic }

// IsConst reports whether id's value is known at compile time.
func (p *PurenessInsights) IsConst(id mir.ID) bool { return p.Of(id) == Const }

func (p *PurenessInsights) of(body *mir.Body, id mir.ID) Purity {
	if pur, ok := p.cache[id]; ok {
		return pur
	}
	n, ok := body.Exprs[id]
	if !ok {
		// A bare parameter: its value comes from the caller, so it is
		// never const but reusing the same parameter twice is sound.
		p.cache[id] = Deterministic
		return Deterministic
	}

	var pur Purity
	switch n.Kind {
	case mir.KindInt, mir.KindText, mir.KindBuiltin:
		pur = Const
	case mir.KindTag:
		pur = Const
		if n.TagValue != nil {
			pur = min(pur, p.of(body, *n.TagValue))
		}
	case mir.KindList:
		pur = Const
		for _, item := range n.Items {
			pur = min(pur, p.of(body, item))
		}
	case mir.KindStruct:
		pur = Const
		for _, f := range n.Fields {
			pur = min(pur, p.of(body, f.Key))
			pur = min(pur, p.of(body, f.Value))
		}
	case mir.KindFunction:
		// A function literal is itself const (closing over const
		// operands doesn't change that a *reference* to it is stable);
		// its body is analyzed independently since it's a separate
		// scope with its own ids.
		pur = Const
		inner := AnalyzePureness(n.Body)
		for k, v := range inner.cache {
			p.cache[k] = v
		}
	case mir.KindReference:
		pur = p.of(body, n.Reference)
	case mir.KindCall:
		pur = p.classifyCall(body, n)
	case mir.KindHirID:
		pur = Deterministic
	case mir.KindPanic, mir.KindUseModule,
		mir.KindTraceCallStarts, mir.KindTraceCallEnds,
		mir.KindTraceExpressionEvaluated, mir.KindTraceFoundFuzzableFunction:
		pur = Effectful
	default:
		pur = Effectful
	}
	p.cache[id] = pur
	return pur
}

func (p *PurenessInsights) classifyCall(body *mir.Body, n *mir.Node) Purity {
	fn, ok := body.Exprs[n.CallFunction]
	if !ok || fn.Kind != mir.KindBuiltin {
		// Calling a user-defined function may diverge, panic, or (if the
		// function was registered fuzzable / traced) have been built for
		// observation; only builtins are trusted to be side-effect-free.
		return Effectful
	}
	if effectfulBuiltins[fn.Text] {
		return Effectful
	}
	pur := Deterministic
	for _, arg := range n.CallArguments {
		pur = min(pur, p.of(body, arg))
	}
	return pur
}

func min(a, b Purity) Purity {
	if a < b {
		return a
	}
	return b
}
