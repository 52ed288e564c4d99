package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunholo/ailang/internal/address"
	"github.com/sunholo/ailang/internal/cst"
)

func testModule() address.Module {
	return address.New(address.ToolingPackage("test"), []string{"Main"}, address.Code)
}

func parseAndLower(t *testing.T, src string) *Module {
	t.Helper()
	tree, modErr := cst.Parse(testModule(), []byte(src))
	require.Nil(t, modErr)
	return Lower(tree)
}

func TestLowerIntLiteral(t *testing.T) {
	m := parseAndLower(t, `foo = 3`)
	require.Len(t, m.Top, 1)
	assign := m.Top[0]
	require.Equal(t, KindAssignment, assign.Kind)
	require.NotNil(t, assign.Body)
	assert.Equal(t, KindInt, assign.Body.Kind)
	assert.Equal(t, "3", assign.Body.IntValue)
}

func TestStructFieldShorthandUppercasesKey(t *testing.T) {
	m := parseAndLower(t, `foo = [bar]`)
	assign := m.Top[0]
	require.Len(t, assign.Body.Fields, 1)
	field := assign.Body.Fields[0]
	require.NotNil(t, field.Key)
	assert.Equal(t, KindSymbol, field.Key.Kind)
	assert.Equal(t, "Bar", field.Key.Text)
}

func TestListVsParenDisambiguation(t *testing.T) {
	paren := parseAndLower(t, `foo = (1)`)
	assert.Equal(t, KindInt, paren.Top[0].Body.Kind, "a bare paren around one item is not a list")

	singleton := parseAndLower(t, `foo = (1,)`)
	assert.Equal(t, KindList, singleton.Top[0].Body.Kind)
	assert.Len(t, singleton.Top[0].Body.Items, 1)

	empty := parseAndLower(t, `foo = (,)`)
	assert.Equal(t, KindList, empty.Top[0].Body.Kind)
	assert.Empty(t, empty.Top[0].Body.Items)
}

func TestEveryNodeIDIsUnique(t *testing.T) {
	m := parseAndLower(t, `foo = [1, 2, [Bar: 3]]
bar = foo.Bar`)
	seen := map[ID]bool{}
	for _, top := range m.Top {
		Walk(top, func(n *Node) {
			require.False(t, seen[n.ID], "duplicate ast id %d", n.ID)
			seen[n.ID] = true
		})
	}
}

func TestModuleFindResolvesEveryWalkedID(t *testing.T) {
	m := parseAndLower(t, `foo = 1 + 2`)
	for _, top := range m.Top {
		Walk(top, func(n *Node) {
			found, ok := m.Find(n.ID)
			require.True(t, ok)
			assert.Same(t, n, found)
		})
	}
}

func TestOrPatternRejectsMismatchedCaptures(t *testing.T) {
	m := parseAndLower(t, `foo = bar % (a | b) -> a`)
	assign := m.Top[0]
	require.NotNil(t, assign.Body)
	require.Len(t, assign.Body.Cases, 1)
	pattern := assign.Body.Cases[0].Pattern
	require.Equal(t, KindError, pattern.Kind)
	require.Len(t, pattern.Errors, 1)
	assert.Equal(t, "AST011", pattern.Errors[0].Code)
}

func TestOrPatternAcceptsSameCaptureSet(t *testing.T) {
	m := parseAndLower(t, `foo = bar % (a | a) -> a`)
	assign := m.Top[0]
	require.Len(t, assign.Body.Cases, 1)
	pattern := assign.Body.Cases[0].Pattern
	require.Equal(t, KindOrPattern, pattern.Kind)
	require.Len(t, pattern.Items, 2)
}

func TestOrPatternWithoutEnclosingParensInMatchCase(t *testing.T) {
	m := parseAndLower(t, `foo = bar % (0, a) | (a, 0) -> a`)
	assign := m.Top[0]
	require.Len(t, assign.Body.Cases, 1)
	pattern := assign.Body.Cases[0].Pattern
	require.Equal(t, KindOrPattern, pattern.Kind)
	require.Len(t, pattern.Items, 2)
	for _, alt := range pattern.Items {
		assert.Equal(t, KindList, alt.Kind)
		assert.Len(t, alt.Items, 2)
	}
}

func TestTagPatternWithPayload(t *testing.T) {
	m := parseAndLower(t, `foo = bar % Some(x) -> x`)
	assign := m.Top[0]
	require.Len(t, assign.Body.Cases, 1)
	pattern := assign.Body.Cases[0].Pattern
	require.Equal(t, KindTagPattern, pattern.Kind)
	assert.Equal(t, "Some", pattern.TagSymbol)
	require.NotNil(t, pattern.Value)
	assert.Equal(t, KindIdentifier, pattern.Value.Kind)
}

func TestCallForbiddenInPatternIsAnError(t *testing.T) {
	m := parseAndLower(t, `foo = bar % baz(1, 2) -> 1`)
	assign := m.Top[0]
	require.Len(t, assign.Body.Cases, 1)
	pattern := assign.Body.Cases[0].Pattern
	// "baz(1, 2)" is an Identifier applied to one list argument; only a
	// Symbol receiver forms a tag pattern with payload, so it must be
	// rejected.
	assert.Equal(t, KindError, pattern.Kind)
}
