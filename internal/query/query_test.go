package query

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunholo/ailang/internal/address"
	"github.com/sunholo/ailang/internal/config"
)

func testModule() address.Module {
	return address.New(address.ToolingPackage("test"), []string{"Main"}, address.Code)
}

func TestCSTIsCachedAcrossIdenticalSource(t *testing.T) {
	l := NewLayer(nil)
	src := []byte("foo = 1")
	tree1, err1 := l.CST(testModule(), src)
	require.Nil(t, err1)
	tree2, err2 := l.CST(testModule(), src)
	require.Nil(t, err2)
	assert.Same(t, tree1, tree2, "identical source should return the cached tree instance")
}

func TestCSTMissesOnChangedSource(t *testing.T) {
	l := NewLayer(nil)
	mod := testModule()
	tree1, _ := l.CST(mod, []byte("foo = 1"))
	tree2, _ := l.CST(mod, []byte("foo = 2"))
	assert.NotSame(t, tree1, tree2)
}

func TestCSTReportsInvalidEncoding(t *testing.T) {
	l := NewLayer(nil)
	_, err := l.CST(testModule(), []byte{0xff, 0xfe, 0xfd})
	require.NotNil(t, err)
	assert.Equal(t, address.InvalidEncoding, err.Kind)
}

func TestASTChainsThroughCST(t *testing.T) {
	l := NewLayer(nil)
	mod := testModule()
	astModule, err := l.AST(mod, []byte("foo = 1"))
	require.Nil(t, err)
	require.NotNil(t, astModule)
	assert.Equal(t, mod.Key(), astModule.Address.Key())
}

func TestASTShortCircuitsOnInvalidEncoding(t *testing.T) {
	l := NewLayer(nil)
	astModule, err := l.AST(testModule(), []byte{0xff, 0xfe})
	require.NotNil(t, err)
	assert.Nil(t, astModule)
}

func TestHIRCachesSeparatelyForBuiltinsFlag(t *testing.T) {
	l := NewLayer(nil)
	mod := testModule()
	src := []byte("foo = 1")

	asUser, err1 := l.HIR(mod, src, false)
	require.Nil(t, err1)
	asBuiltins, err2 := l.HIR(mod, src, true)
	require.Nil(t, err2)

	assert.NotSame(t, asUser, asBuiltins, "isBuiltins must be part of the cache key")

	again, err3 := l.HIR(mod, src, false)
	require.Nil(t, err3)
	assert.Same(t, asUser, again)
}

func TestMIRCachesSeparatelyPerTracingConfig(t *testing.T) {
	l := NewLayer(nil)
	mod := testModule()
	src := []byte("foo = 1")

	untraced, err1 := l.MIR(mod, src, false, config.NoTracing)
	require.Nil(t, err1)
	traced, err2 := l.MIR(mod, src, false, config.TracingConfig{Calls: config.All})
	require.Nil(t, err2)
	assert.NotSame(t, untraced, traced)

	again, err3 := l.MIR(mod, src, false, config.NoTracing)
	require.Nil(t, err3)
	assert.Same(t, untraced, again)
}

func TestConcurrentCSTQueriesComputeOnce(t *testing.T) {
	l := NewLayer(nil)
	mod := testModule()
	src := []byte("foo = 1")

	var wg sync.WaitGroup
	results := make([]any, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tree, _ := l.CST(mod, src)
			results[i] = tree
		}(i)
	}
	wg.Wait()

	first := results[0]
	for _, r := range results {
		assert.Same(t, first, r)
	}
}

func TestInvalidateDropsEveryStageForModule(t *testing.T) {
	l := NewLayer(nil)
	mod := testModule()
	src := []byte("foo = 1")

	tree1, _ := l.CST(mod, src)
	l.Invalidate(mod)
	tree2, _ := l.CST(mod, src)
	assert.NotSame(t, tree1, tree2, "invalidation forces recomputation even for identical source")
}
