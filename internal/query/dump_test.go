package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunholo/ailang/internal/config"
)

func TestDumpCSTShowsKindsAndLeafText(t *testing.T) {
	l := NewLayer(nil)
	mod := testModule()
	src := []byte("foo = 1")
	tree, err := l.CST(mod, src)
	require.Nil(t, err)

	var b strings.Builder
	DumpCST(&b, tree.Root, 0)
	out := b.String()
	assert.Contains(t, out, "Module")
	assert.Contains(t, out, `"1"`)
}

func TestDumpASTShowsAssignment(t *testing.T) {
	l := NewLayer(nil)
	mod := testModule()
	astModule, err := l.AST(mod, []byte("foo = 1"))
	require.Nil(t, err)

	var b strings.Builder
	DumpAST(&b, astModule)
	assert.Contains(t, b.String(), "Assignment")
}

func TestDumpHIRDescendsIntoFunctionBody(t *testing.T) {
	l := NewLayer(nil)
	mod := testModule()
	hirModule, err := l.HIR(mod, []byte("foo = { x -> x }"), false)
	require.Nil(t, err)

	var b strings.Builder
	DumpHIR(&b, hirModule)
	assert.Contains(t, b.String(), "Function")
}

func TestDumpMIRShowsCallShape(t *testing.T) {
	l := NewLayer(nil)
	mod := testModule()
	mirModule, err := l.MIR(mod, []byte("foo = { x -> x }\nbar = foo 1"), false, config.NoTracing)
	require.Nil(t, err)

	var b strings.Builder
	DumpMIR(&b, mirModule.Top)
	assert.Contains(t, b.String(), "Call")
	assert.Contains(t, b.String(), "fn=")
}
