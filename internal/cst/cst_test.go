package cst

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunholo/ailang/internal/address"
)

func testModule() address.Module {
	return address.New(address.ToolingPackage("test"), []string{"Main"}, address.Code)
}

func TestParseRoundTrip(t *testing.T) {
	sources := []string{
		``,
		`foo = 3`,
		`foo = "hello #{1 + 2} world"`,
		`bar = [1, 2, 3]`,
		`baz = [Foo: 1, bar]`,
		"qux = { a b -> a }",
		`result = value % case1 -> 1 case2 -> 2`,
		`piped = value | double | increment`,
		`result = value % (0, a) | (a, 0) -> a`,
	}
	for _, src := range sources {
		tree, modErr := Parse(testModule(), []byte(src))
		require.Nil(t, modErr)
		assert.Equal(t, src, tree.Leaves(), "leaves must reconstruct the source exactly")
	}
}

func TestParseInvalidUTF8(t *testing.T) {
	_, modErr := Parse(testModule(), []byte{0xff, 0xfe, 0x00})
	require.NotNil(t, modErr)
	assert.Equal(t, address.InvalidEncoding, modErr.Kind)
}

func TestMatchCaseParsesOrPatternWithoutEnclosingParens(t *testing.T) {
	tree, modErr := Parse(testModule(), []byte(`result = value % (0, a) | (a, 0) -> a`))
	require.Nil(t, modErr)

	var bars []*Node
	Walk(tree.Root, func(n *Node) {
		if n.Kind == KindBinaryBar {
			bars = append(bars, n)
		}
	})
	require.Len(t, bars, 1, "the match-case pattern must parse into one KindBinaryBar node")

	kids := NonTrivia(bars[0])
	require.Len(t, kids, 3)
	assert.Equal(t, KindList, kids[0].Kind, "left alternative (0, a) is a comma-tuple List")
	assert.Equal(t, KindPunctuation, kids[1].Kind)
	assert.Equal(t, KindList, kids[2].Kind, "right alternative (a, 0) is a comma-tuple List")
}

func TestFindIsTotalOnValidIDs(t *testing.T) {
	tree, modErr := Parse(testModule(), []byte(`foo = 3`))
	require.Nil(t, modErr)

	var ids []ID
	Walk(tree.Root, func(n *Node) { ids = append(ids, n.ID) })
	require.NotEmpty(t, ids)
	for _, id := range ids {
		assert.NotPanics(t, func() { tree.Find(id) })
	}
}

func TestFindPanicsOnUnknownID(t *testing.T) {
	tree, modErr := Parse(testModule(), []byte(`foo = 3`))
	require.Nil(t, modErr)
	assert.Panics(t, func() { tree.Find(ID(999999)) })
}

func TestTryFindUnknownID(t *testing.T) {
	tree, modErr := Parse(testModule(), []byte(`foo = 3`))
	require.Nil(t, modErr)
	_, ok := tree.TryFind(ID(999999))
	assert.False(t, ok)
}

func TestNonTriviaFiltersWhitespace(t *testing.T) {
	tree, modErr := Parse(testModule(), []byte(`foo = 3`))
	require.Nil(t, modErr)

	kids := NonTrivia(tree.Root)
	for _, k := range kids {
		assert.NotEqual(t, KindWhitespace, k.Kind)
		assert.NotEqual(t, KindNewline, k.Kind)
		assert.NotEqual(t, KindComment, k.Kind)
	}
}

func TestDisplaySpanTrimsTrailingTrivia(t *testing.T) {
	tree, modErr := Parse(testModule(), []byte("foo = 3  \n"))
	require.Nil(t, modErr)

	full := tree.Root.Span
	display := tree.DisplaySpan(tree.Root.ID)
	assert.LessOrEqual(t, int(display.End), int(full.End))
	assert.Equal(t, 7, int(display.End), "the trailing \"  \\n\" after `3` is trimmed")
}
