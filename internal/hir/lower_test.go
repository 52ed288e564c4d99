package hir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunholo/ailang/internal/address"
	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/cst"
)

func testModule() address.Module {
	return address.New(address.ToolingPackage("test"), []string{"Main"}, address.Code)
}

func lowerSource(t *testing.T, src string) *Module {
	t.Helper()
	tree, modErr := cst.Parse(testModule(), []byte(src))
	require.Nil(t, modErr)
	astModule := ast.Lower(tree)
	return Lower(astModule, false)
}

func TestUseAndBuiltinsPreambleAreBound(t *testing.T) {
	m := lowerSource(t, `foo = 1`)
	_, ok := m.Top.Find(m.UseID)
	require.True(t, ok)
	_, ok = m.Top.Find(m.BuiltinsID)
	require.True(t, ok)
}

func TestPublicExportAppearsInExportsStruct(t *testing.T) {
	m := lowerSource(t, `foo = 1`)
	exports, ok := m.Top.Find(m.ExportsID)
	require.True(t, ok)
	require.Equal(t, KindStruct, exports.Kind)
	require.Len(t, exports.Fields, 1)

	keyNode, ok := m.Top.Find(exports.Fields[0].Key)
	require.True(t, ok)
	assert.Equal(t, "Foo", keyNode.Text)

	valNode, ok := m.Top.Find(exports.Fields[0].Value)
	require.True(t, ok)
	require.Equal(t, KindReference, valNode.Kind)

	referent, ok := m.Top.Find(valNode.Reference)
	require.True(t, ok)
	assert.Equal(t, KindInt, referent.Kind)
	assert.Equal(t, "1", referent.IntValue)
}

func TestDuplicatePublicAssignmentReportsError(t *testing.T) {
	m := lowerSource(t, "foo = 1\nfoo = 2")
	found := false
	for _, e := range m.Errors {
		if e.Code == "PublicAssignmentWithSameName" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestUnknownReferenceReportsError(t *testing.T) {
	m := lowerSource(t, `foo = bar`)
	require.NotEmpty(t, m.Errors)
	assert.Equal(t, "UnknownReference", m.Errors[0].Code)
}

func TestStructAccessDesugarsToStructGetCall(t *testing.T) {
	m := lowerSource(t, "foo = 1\nbar = foo.Baz")
	var barRef *Node
	for _, id := range m.Top.Order {
		if m.Top.Name(id) == "bar" {
			barRef, _ = m.Top.Find(id)
		}
	}
	require.NotNil(t, barRef)
	require.Equal(t, KindCall, barRef.Kind)

	fn, ok := m.Top.Find(barRef.CallFunction)
	require.True(t, ok)
	require.Equal(t, KindBuiltin, fn.Kind)
	assert.Equal(t, "StructGet", fn.Text)

	key, ok := m.Top.Find(barRef.CallArguments[1])
	require.True(t, ok)
	assert.Equal(t, KindSymbol, key.Kind)
	assert.Equal(t, "Baz", key.Text)
}

func TestNeedsWithOneArgumentGetsDefaultReason(t *testing.T) {
	m := lowerSource(t, "foo = { x -> needs x }")
	var fnID ID
	for _, id := range m.Top.Order {
		if m.Top.Name(id) == "foo" {
			fnID = id
		}
	}
	fn, _ := m.Top.Find(fnID)
	require.Equal(t, KindFunction, fn.Kind)

	var needsNode *Node
	for _, id := range fn.FunctionBody.Order {
		if n, _ := fn.FunctionBody.Find(id); n != nil && n.Kind == KindNeeds {
			needsNode = n
		}
	}
	require.NotNil(t, needsNode)
	reason, ok := fn.FunctionBody.Find(needsNode.NeedsReason)
	require.True(t, ok)
	assert.Equal(t, "a needs was not met", reason.Text)
}

func TestFunctionParameterDestructurePrologue(t *testing.T) {
	m := lowerSource(t, "foo = { (a, b) -> a }")
	var fn *Node
	for _, id := range m.Top.Order {
		if m.Top.Name(id) == "foo" {
			fn, _ = m.Top.Find(id)
		}
	}
	require.NotNil(t, fn)
	require.Len(t, fn.Parameters, 1)

	var sawDestructure bool
	for _, id := range fn.FunctionBody.Order {
		if n, _ := fn.FunctionBody.Find(id); n != nil && n.Kind == KindDestructure {
			sawDestructure = true
			assert.Equal(t, PatternList, n.DestructurePattern.Kind)
		}
	}
	assert.True(t, sawDestructure)
}

func TestOrPatternMatchCaseCapturesOneCopyPerName(t *testing.T) {
	m := lowerSource(t, `foo = pair % (0, a) | (a, 0) -> a`)
	var match *Node
	for _, id := range m.Top.Order {
		if m.Top.Name(id) == "foo" {
			match, _ = m.Top.Find(id)
		}
	}
	require.NotNil(t, match)
	require.Equal(t, KindMatch, match.Kind)
	require.Len(t, match.Cases, 1)

	pattern := match.Cases[0].Pattern
	require.Equal(t, PatternOr, pattern.Kind)
	require.Len(t, pattern.Items, 2)

	names := CapturedIdentifiers(pattern)
	assert.Equal(t, []string{"a"}, names, "both alternatives capture the same name once, not twice")
}

func TestIDsAreUniqueAcrossBodies(t *testing.T) {
	m := lowerSource(t, "foo = { x -> x }\nbar = foo 1")
	seen := map[string]bool{}
	var walk func(b *Body)
	walk = func(b *Body) {
		for _, id := range b.Order {
			key := id.String()
			require.False(t, seen[key], "duplicate hir id %s", key)
			seen[key] = true
			if n, _ := b.Find(id); n != nil && n.Kind == KindFunction {
				walk(n.FunctionBody)
			}
		}
	}
	walk(m.Top)
}
