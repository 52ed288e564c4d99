package mir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunholo/ailang/internal/address"
	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/config"
	"github.com/sunholo/ailang/internal/cst"
	"github.com/sunholo/ailang/internal/hir"
)

func testModule() address.Module {
	return address.New(address.ToolingPackage("test"), []string{"Main"}, address.Code)
}

func lowerSource(t *testing.T, src string, tracing config.TracingConfig) *Module {
	t.Helper()
	tree, modErr := cst.Parse(testModule(), []byte(src))
	require.Nil(t, modErr)
	astModule := ast.Lower(tree)
	hirModule := hir.Lower(astModule, false)
	return Lower(hirModule, tracing)
}

func TestNeedsFunctionIsSynthesizedOnce(t *testing.T) {
	m := lowerSource(t, `foo = 1`, config.NoTracing)
	fn, ok := m.Top.Find(m.NeedsFunction)
	require.True(t, ok)
	require.Equal(t, KindFunction, fn.Kind)
	// condition, reason, responsibleForCondition, plus the implicit
	// trailing responsible_for_call parameter.
	assert.Len(t, fn.Parameters, 4)
}

func TestFunctionGetsTrailingResponsibleParameter(t *testing.T) {
	m := lowerSource(t, "foo = { x -> x }", config.NoTracing)
	var fn *Node
	for _, id := range m.Top.Order {
		if n := m.Top.Exprs[id]; n.Kind == KindFunction && n.ID != m.NeedsFunction {
			fn = n
		}
	}
	require.NotNil(t, fn)
	assert.Len(t, fn.Parameters, 2, "one explicit parameter plus the implicit responsible parameter")
}

func TestCallLoweringProducesResponsibleID(t *testing.T) {
	m := lowerSource(t, "foo = { x -> x }\nbar = foo 1", config.NoTracing)
	var call *Node
	for _, id := range m.Top.Order {
		if n := m.Top.Exprs[id]; n.Kind == KindCall {
			call = n
		}
	}
	require.NotNil(t, call)
	responsible, ok := m.Top.Find(call.Responsible)
	require.True(t, ok)
	assert.Equal(t, KindHirID, responsible.Kind)
}

func TestCallTracingWrapsWithStartAndEnd(t *testing.T) {
	tracing := config.TracingConfig{Calls: config.All}
	m := lowerSource(t, "foo = { x -> x }\nbar = foo 1", tracing)

	var sawStart, sawEnd bool
	for _, id := range m.Top.Order {
		switch m.Top.Exprs[id].Kind {
		case KindTraceCallStarts:
			sawStart = true
		case KindTraceCallEnds:
			sawEnd = true
		}
	}
	assert.True(t, sawStart)
	assert.True(t, sawEnd)
}

func TestTrivialDestructureBecomesReference(t *testing.T) {
	m := lowerSource(t, `foo = 1`, config.NoTracing)
	var ref *Node
	for _, id := range m.Top.Order {
		if n := m.Top.Exprs[id]; n.Kind == KindReference {
			ref = n
		}
	}
	require.NotNil(t, ref, "a trivial `foo = 1` destructure lowers to a Reference")
}

func TestNonTrivialDestructureUsesPatternCompiler(t *testing.T) {
	m := lowerSource(t, "(a, b) = (1, 2)", config.NoTracing)

	var sawPanic, sawIsMatchCall bool
	for _, id := range m.Top.Order {
		n := m.Top.Exprs[id]
		if n.Kind == KindPanic {
			sawPanic = true
		}
		// The failure branch is its own function (the ifElse else-branch).
		if n.Kind == KindFunction && n.ID != m.NeedsFunction {
			for _, innerID := range n.Body.Order {
				if n.Body.Exprs[innerID].Kind == KindPanic {
					sawPanic = true
				}
			}
		}
		if n.Kind == KindCall {
			if fn, ok := m.Top.Find(n.CallFunction); ok && fn.Kind == KindBuiltin && fn.Text == "Equals" {
				sawIsMatchCall = true
			}
		}
	}
	assert.True(t, sawPanic, "destructure failure path panics")
	assert.True(t, sawIsMatchCall, "is_match is built from an Equals call against the Match tag")
}

func TestMatchExpressionCompilesEveryCase(t *testing.T) {
	m := lowerSource(t, "foo = 1 % 1 -> 2\n2 -> 3", config.NoTracing)

	var ifElseCalls int
	for _, id := range m.Top.Order {
		n := m.Top.Exprs[id]
		if n.Kind == KindCall {
			if fn, ok := m.Top.Find(n.CallFunction); ok && fn.Kind == KindBuiltin && fn.Text == "IfElse" {
				ifElseCalls++
			}
		}
	}
	assert.GreaterOrEqual(t, ifElseCalls, 2, "each match case compiles to an ifElse on is_match")
}

func TestOrPatternMatchCaseCompilesWithoutOutOfRangePatternID(t *testing.T) {
	// The two alternatives capture the same two names in different
	// order, which forces compileOrPattern's ListGet reorder path —
	// the path whose capture-count must agree with
	// hir.CapturedIdentifiers's count for a PatternOr.
	m := lowerSource(t, "foo = pair % (a, b) | (b, a) -> a", config.NoTracing)

	var sawListGet bool
	var walk func(b *Body)
	walk = func(b *Body) {
		for _, id := range b.Order {
			n := b.Exprs[id]
			if n.Kind == KindCall {
				if fn, ok := m.Top.Find(n.CallFunction); ok && fn.Kind == KindBuiltin && fn.Text == "ListGet" {
					sawListGet = true
				}
			}
			if n.Kind == KindFunction && n.Body != nil {
				walk(n.Body)
			}
		}
	}
	walk(m.Top)

	assert.True(t, sawListGet, "the second Or-pattern alternative reorders its capture through ListGet")
}

func TestFuzzableRegistrationTracing(t *testing.T) {
	tracing := config.TracingConfig{RegisterFuzzables: config.All}
	m := lowerSource(t, "foo x = x", tracing)

	var saw bool
	for _, id := range m.Top.Order {
		if m.Top.Exprs[id].Kind == KindTraceFoundFuzzableFunction {
			saw = true
		}
	}
	assert.True(t, saw)
}

func TestDenseIDsAreUniqueAcrossNestedBodies(t *testing.T) {
	m := lowerSource(t, "foo = { x -> x }\nbar = foo 1", config.NoTracing)
	seen := map[ID]bool{}
	var walk func(b *Body)
	walk = func(b *Body) {
		for _, id := range b.Order {
			require.False(t, seen[id], "duplicate mir id %v", id)
			seen[id] = true
			if n := b.Exprs[id]; n.Kind == KindFunction {
				walk(n.Body)
			}
		}
	}
	walk(m.Top)
}
