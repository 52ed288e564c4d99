package miropt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunholo/ailang/internal/address"
	"github.com/sunholo/ailang/internal/hir"
	"github.com/sunholo/ailang/internal/mir"
)

func testModule() address.Module {
	return address.New(address.ToolingPackage("test"), []string{"Main"}, address.Code)
}

func TestFoldIntAdd(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindBuiltin, Text: "IntAdd"})
	body.Add(1, &mir.Node{Kind: mir.KindInt, IntValue: "2"})
	body.Add(2, &mir.Node{Kind: mir.KindInt, IntValue: "3"})
	body.Add(3, &mir.Node{Kind: mir.KindHirID})
	body.Add(4, &mir.Node{Kind: mir.KindCall, CallFunction: 0, CallArguments: []mir.ID{1, 2}, Responsible: 3})

	pureness := AnalyzePureness(body)
	alloc := newIDAllocator(body)
	changed := FoldConstants(body, pureness, alloc)
	require.True(t, changed)
	assert.Equal(t, mir.KindInt, body.Exprs[4].Kind)
	assert.Equal(t, "5", body.Exprs[4].IntValue)
}

func TestFoldIntSubtractSelfShortcut(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindBuiltin, Text: "IntSubtract"})
	body.Add(1, &mir.Node{Kind: mir.KindInt, IntValue: "7"})
	body.Add(2, &mir.Node{Kind: mir.KindHirID})
	body.Add(3, &mir.Node{Kind: mir.KindCall, CallFunction: 0, CallArguments: []mir.ID{1, 1}, Responsible: 2})

	pureness := AnalyzePureness(body)
	alloc := newIDAllocator(body)
	require.True(t, FoldConstants(body, pureness, alloc))
	assert.Equal(t, mir.KindInt, body.Exprs[3].Kind)
	assert.Equal(t, "0", body.Exprs[3].IntValue)
}

func TestFoldIfElseConstantCondition(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindBuiltin, Text: "IfElse"})
	body.Add(1, &mir.Node{Kind: mir.KindTag, Text: "True"})
	body.Add(2, &mir.Node{Kind: mir.KindFunction, Parameters: []mir.ID{100}, Body: mir.NewBody()}) // then
	body.Add(3, &mir.Node{Kind: mir.KindFunction, Parameters: []mir.ID{101}, Body: mir.NewBody()}) // else
	body.Add(4, &mir.Node{Kind: mir.KindHirID})
	body.Add(5, &mir.Node{Kind: mir.KindCall, CallFunction: 0, CallArguments: []mir.ID{1, 2, 3}, Responsible: 4})

	pureness := AnalyzePureness(body)
	alloc := newIDAllocator(body)
	require.True(t, FoldConstants(body, pureness, alloc))
	call := body.Exprs[5]
	require.Equal(t, mir.KindCall, call.Kind)
	assert.Equal(t, mir.ID(2), call.CallFunction)
	assert.Empty(t, call.CallArguments)
}

func TestFoldStructGet(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindTag, Text: "Foo"})
	body.Add(1, &mir.Node{Kind: mir.KindInt, IntValue: "42"})
	body.Add(2, &mir.Node{Kind: mir.KindStruct, Fields: []mir.StructField{{Key: 0, Value: 1}}})
	body.Add(3, &mir.Node{Kind: mir.KindBuiltin, Text: "StructGet"})
	body.Add(4, &mir.Node{Kind: mir.KindTag, Text: "Foo"})
	body.Add(5, &mir.Node{Kind: mir.KindHirID})
	body.Add(6, &mir.Node{Kind: mir.KindCall, CallFunction: 3, CallArguments: []mir.ID{2, 4}, Responsible: 5})

	pureness := AnalyzePureness(body)
	alloc := newIDAllocator(body)
	require.True(t, FoldConstants(body, pureness, alloc))
	assert.Equal(t, mir.KindReference, body.Exprs[6].Kind)
	assert.Equal(t, mir.ID(1), body.Exprs[6].Reference)
}

func TestEquals_SameIDShortcut(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindBuiltin, Text: "Equals"})
	body.Add(1, &mir.Node{Kind: mir.KindInt, IntValue: "9"})
	body.Add(2, &mir.Node{Kind: mir.KindHirID})
	body.Add(3, &mir.Node{Kind: mir.KindCall, CallFunction: 0, CallArguments: []mir.ID{1, 1}, Responsible: 2})

	pureness := AnalyzePureness(body)
	alloc := newIDAllocator(body)
	require.True(t, FoldConstants(body, pureness, alloc))
	assert.Equal(t, mir.KindTag, body.Exprs[3].Kind)
	assert.Equal(t, "True", body.Exprs[3].Text)
}

func TestCSEMergesIdenticalIntLiterals(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindInt, IntValue: "2"})
	body.Add(1, &mir.Node{Kind: mir.KindInt, IntValue: "2"})

	pureness := AnalyzePureness(body)
	require.True(t, EliminateCommonSubtrees(body, pureness))
	assert.Equal(t, mir.KindReference, body.Exprs[1].Kind)
	assert.Equal(t, mir.ID(0), body.Exprs[1].Reference)
}

func TestCSEMergesStructurallyIdenticalFunctionsAndMergesHirs(t *testing.T) {
	body := mir.NewBody()
	originA := hir.ID{Path: []hir.Component{{Name: "a"}}}
	originB := hir.ID{Path: []hir.Component{{Name: "b"}}}

	innerA := mir.NewBody()
	innerA.Add(10, &mir.Node{Kind: mir.KindInt, IntValue: "1"})
	body.Add(0, &mir.Node{Kind: mir.KindFunction, Parameters: []mir.ID{100}, Body: innerA, OriginalHirs: []hir.ID{originA}})

	innerB := mir.NewBody()
	innerB.Add(20, &mir.Node{Kind: mir.KindInt, IntValue: "1"})
	body.Add(1, &mir.Node{Kind: mir.KindFunction, Parameters: []mir.ID{200}, Body: innerB, OriginalHirs: []hir.ID{originB}})

	pureness := AnalyzePureness(body)
	require.True(t, EliminateCommonSubtrees(body, pureness))

	assert.Equal(t, mir.KindReference, body.Exprs[1].Kind)
	assert.Equal(t, mir.ID(0), body.Exprs[1].Reference)

	canonical := body.Exprs[0]
	assert.ElementsMatch(t, []hir.ID{originA, originB}, canonical.OriginalHirs)
}

func TestCSEDoesNotMergeDifferentLiterals(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindInt, IntValue: "2"})
	body.Add(1, &mir.Node{Kind: mir.KindInt, IntValue: "3"})

	pureness := AnalyzePureness(body)
	assert.False(t, EliminateCommonSubtrees(body, pureness))
	assert.Equal(t, mir.KindInt, body.Exprs[1].Kind)
}

func TestCSEDoesNotMergeEffectfulExpressions(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindHirID})
	body.Add(1, &mir.Node{Kind: mir.KindHirID, HirID: hir.ID{Path: []hir.Component{{Name: "other"}}}})
	body.Add(2, &mir.Node{Kind: mir.KindText, Text: "boom"})
	body.Add(3, &mir.Node{Kind: mir.KindPanic, PanicReason: 2, Responsible: 0})
	body.Add(4, &mir.Node{Kind: mir.KindPanic, PanicReason: 2, Responsible: 0})

	pureness := AnalyzePureness(body)
	assert.False(t, EliminateCommonSubtrees(body, pureness), "Panic is Effectful and never a CSE candidate")
}

func TestReferenceChainCollapse(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindInt, IntValue: "1"})
	body.Add(1, &mir.Node{Kind: mir.KindReference, Reference: 0})
	body.Add(2, &mir.Node{Kind: mir.KindReference, Reference: 1})

	require.True(t, CollapseReferenceChains(body))
	assert.Equal(t, mir.ID(0), body.Exprs[2].Reference)
}

func TestShakeTreeRemovesUnusedPureDefinition(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindInt, IntValue: "1"}) // unused
	body.Add(1, &mir.Node{Kind: mir.KindInt, IntValue: "2"}) // the result

	pureness := AnalyzePureness(body)
	require.True(t, ShakeTree(body, pureness, nil))
	_, ok := body.Exprs[0]
	assert.False(t, ok)
	_, ok = body.Exprs[1]
	assert.True(t, ok, "the body's final expression is always kept")
}

func TestShakeTreeKeepsExemptID(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindFunction, Parameters: []mir.ID{100}, Body: mir.NewBody()})
	body.Add(1, &mir.Node{Kind: mir.KindInt, IntValue: "1"})

	pureness := AnalyzePureness(body)
	require.False(t, ShakeTree(body, pureness, []mir.ID{0}))
	_, ok := body.Exprs[0]
	assert.True(t, ok)
}

func TestShakeTreeNeverRemovesEffectfulExpressions(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindHirID})
	body.Add(1, &mir.Node{Kind: mir.KindText, Text: "side effect"})
	body.Add(2, &mir.Node{Kind: mir.KindPanic, PanicReason: 1, Responsible: 0, IsPropagatedError: true})
	body.Add(3, &mir.Node{Kind: mir.KindInt, IntValue: "0"})

	pureness := AnalyzePureness(body)
	ShakeTree(body, pureness, nil)
	_, ok := body.Exprs[2]
	assert.True(t, ok, "a Panic is kept even though its result is never referenced")
}

func TestCollectErrorsOnlyReportsPropagatedPanics(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindHirID})
	body.Add(1, &mir.Node{Kind: mir.KindText, Text: "unknown reference foo"})
	body.Add(2, &mir.Node{Kind: mir.KindPanic, PanicReason: 1, Responsible: 0, IsPropagatedError: true})
	body.Add(3, &mir.Node{Kind: mir.KindText, Text: "No case matched the given expression."})
	body.Add(4, &mir.Node{Kind: mir.KindPanic, PanicReason: 3, Responsible: 0})

	reports := CollectErrors(testModule(), body)
	require.Len(t, reports, 1)
	assert.Equal(t, "unknown reference foo", reports[0].Message)
}

func TestOptimizeReachesFixpointAndFoldsNestedFunctions(t *testing.T) {
	body := mir.NewBody()
	body.Add(0, &mir.Node{Kind: mir.KindHirID})

	inner := mir.NewBody()
	inner.Add(10, &mir.Node{Kind: mir.KindBuiltin, Text: "IntAdd"})
	inner.Add(11, &mir.Node{Kind: mir.KindInt, IntValue: "1"})
	inner.Add(12, &mir.Node{Kind: mir.KindInt, IntValue: "1"})
	inner.Add(13, &mir.Node{Kind: mir.KindCall, CallFunction: 10, CallArguments: []mir.ID{11, 12}, Responsible: 0})

	body.Add(1, &mir.Node{Kind: mir.KindFunction, Parameters: []mir.ID{100, 101}, Body: inner})

	reports := Optimize(testModule(), body, 1)
	assert.Empty(t, reports)

	fn := body.Exprs[1]
	require.Equal(t, mir.KindFunction, fn.Kind)
	last, ok := fn.Body.Last()
	require.True(t, ok)
	result := fn.Body.Exprs[last]
	require.Equal(t, mir.KindInt, result.Kind)
	assert.Equal(t, "2", result.IntValue)
}
