// Package query implements the memoized compilation query layer
// (spec.md §4.6, §5): cst/ast/hir/mir results cached per module content
// (plus TracingConfig for mir), computed at most once per key even
// under concurrent callers, generalized from the teacher's module
// loader cache.
package query

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/sunholo/ailang/internal/address"
	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/config"
	"github.com/sunholo/ailang/internal/cst"
	"github.com/sunholo/ailang/internal/hir"
	"github.com/sunholo/ailang/internal/mir"
)

type cstResult struct {
	tree *cst.Tree
	err  *address.ModuleError
}

type astResult struct {
	tree    *cst.Tree
	module  *ast.Module
	cstErr  *address.ModuleError
}

type hirResult struct {
	module *hir.Module
}

type mirResult struct {
	module *mir.Module
}

// Layer memoizes every compilation stage by content key. Each stage
// has its own cache map and singleflight group (a query for the same
// key from many goroutines blocks on a single computation, per the
// teacher's loadStack+cache discipline generalized to four independent
// stage caches instead of one module cache).
type Layer struct {
	log *logrus.Logger

	mu  sync.RWMutex
	cst map[string]*cstResult
	ast map[string]*astResult
	hir map[string]*hirResult
	mir map[string]*mirResult

	cstGroup singleflight.Group
	astGroup singleflight.Group
	hirGroup singleflight.Group
	mirGroup singleflight.Group
}

// NewLayer returns an empty query layer logging cache events to log.
// A nil log discards them.
func NewLayer(log *logrus.Logger) *Layer {
	if log == nil {
		log = logrus.New()
		log.SetOutput(discard{})
	}
	return &Layer{
		log: log,
		cst: map[string]*cstResult{},
		ast: map[string]*astResult{},
		hir: map[string]*hirResult{},
		mir: map[string]*mirResult{},
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// contentKey hashes parts into one cache key. Each part is prefixed
// with its own length rather than separated by a delimiter byte — a
// delimiter alone is ambiguous whenever a part (module.Key(), or raw
// source bytes, which may contain any byte) can itself contain that
// delimiter.
func contentKey(parts ...string) string {
	h := sha256.New()
	var lenBuf [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CST parses src for module, reusing a prior result for the same
// (module, bytes) pair.
func (l *Layer) CST(module address.Module, src []byte) (*cst.Tree, *address.ModuleError) {
	key := contentKey("cst", module.Key(), string(src))

	l.mu.RLock()
	if cached, ok := l.cst[key]; ok {
		l.mu.RUnlock()
		l.log.WithField("module", module.String()).Debug("query: cst cache hit")
		return cached.tree, cached.err
	}
	l.mu.RUnlock()

	v, _, shared := l.cstGroup.Do(key, func() (any, error) {
		l.mu.RLock()
		if cached, ok := l.cst[key]; ok {
			l.mu.RUnlock()
			return cached, nil
		}
		l.mu.RUnlock()
		tree, err := cst.Parse(module, src)
		res := &cstResult{tree: tree, err: err}
		l.mu.Lock()
		l.cst[key] = res
		l.mu.Unlock()
		return res, nil
	})
	l.log.WithFields(logrus.Fields{"module": module.String(), "shared": shared}).Debug("query: cst computed")
	res := v.(*cstResult)
	return res.tree, res.err
}

// AST lowers src's CST to an AST, chaining through CST. A CST-level
// ModuleError (invalid encoding) short-circuits with a nil AST.
func (l *Layer) AST(module address.Module, src []byte) (*ast.Module, *address.ModuleError) {
	key := contentKey("ast", module.Key(), string(src))

	l.mu.RLock()
	if cached, ok := l.ast[key]; ok {
		l.mu.RUnlock()
		return cached.module, cached.cstErr
	}
	l.mu.RUnlock()

	v, _, _ := l.astGroup.Do(key, func() (any, error) {
		tree, cstErr := l.CST(module, src)
		res := &astResult{tree: tree, cstErr: cstErr}
		if cstErr == nil {
			res.module = ast.Lower(tree)
		}
		l.mu.Lock()
		l.ast[key] = res
		l.mu.Unlock()
		return res, nil
	})
	l.log.WithField("module", module.String()).Debug("query: ast computed")
	res := v.(*astResult)
	return res.module, res.cstErr
}

// HIR lowers src's AST to HIR. isBuiltins participates in the cache
// key since it changes how the same AST lowers (spec.md §4.3's
// synthetic builtins-module preamble).
func (l *Layer) HIR(module address.Module, src []byte, isBuiltins bool) (*hir.Module, *address.ModuleError) {
	builtinsTag := "0"
	if isBuiltins {
		builtinsTag = "1"
	}
	key := contentKey("hir", module.Key(), string(src), builtinsTag)

	l.mu.RLock()
	if cached, ok := l.hir[key]; ok {
		l.mu.RUnlock()
		return cached.module, nil
	}
	l.mu.RUnlock()

	astModule, astErr := l.AST(module, src)
	if astErr != nil {
		return nil, astErr
	}

	v, _, _ := l.hirGroup.Do(key, func() (any, error) {
		res := &hirResult{module: hir.Lower(astModule, isBuiltins)}
		l.mu.Lock()
		l.hir[key] = res
		l.mu.Unlock()
		return res, nil
	})
	l.log.WithField("module", module.String()).Debug("query: hir computed")
	return v.(*hirResult).module, nil
}

// MIR lowers src's HIR to MIR under tracing. tracing participates in
// the cache key (spec.md's TracingConfig doc: "two TracingConfig
// values with equal fields are treated as the same cache key").
func (l *Layer) MIR(module address.Module, src []byte, isBuiltins bool, tracing config.TracingConfig) (*mir.Module, *address.ModuleError) {
	builtinsTag := "0"
	if isBuiltins {
		builtinsTag = "1"
	}
	key := contentKey("mir", module.Key(), string(src), builtinsTag, tracing.Key())

	l.mu.RLock()
	if cached, ok := l.mir[key]; ok {
		l.mu.RUnlock()
		return cached.module, nil
	}
	l.mu.RUnlock()

	hirModule, hirErr := l.HIR(module, src, isBuiltins)
	if hirErr != nil {
		return nil, hirErr
	}

	v, _, _ := l.mirGroup.Do(key, func() (any, error) {
		res := &mirResult{module: mir.Lower(hirModule, tracing)}
		l.mu.Lock()
		l.mir[key] = res
		l.mu.Unlock()
		return res, nil
	})
	l.log.WithField("module", module.String()).Debug("query: mir computed")
	return v.(*mirResult).module, nil
}

// cstResultModule/astResultModule recover the module identity of a
// cached result even when parsing failed and tree is nil (cst.Parse
// still reports which module an encoding error came from via the
// ModuleError it returns) — Invalidate needs this so an invalid-source
// module's cache entry isn't permanently unreclaimable.
func cstResultModule(r *cstResult) address.Module {
	if r.tree != nil {
		return r.tree.Module
	}
	if r.err != nil {
		return r.err.Module
	}
	return address.Module{}
}

func astResultModule(r *astResult) address.Module {
	if r.tree != nil {
		return r.tree.Module
	}
	if r.cstErr != nil {
		return r.cstErr.Module
	}
	return address.Module{}
}

// Invalidate drops every cached result for module across all four
// stages (spec.md §4.6: a module's source changing must not serve a
// stale downstream result). Since cache keys are content-addressed by
// the exact source bytes, a changed file naturally misses on its own;
// Invalidate exists for an embedder that wants to reclaim memory for a
// module it knows will never be queried again.
func (l *Layer) Invalidate(module address.Module) {
	prefix := module.Key()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.ast {
		if astResultModule(v).Key() == prefix {
			delete(l.ast, k)
		}
	}
	for k, v := range l.cst {
		if cstResultModule(v).Key() == prefix {
			delete(l.cst, k)
		}
	}
	for k, v := range l.hir {
		if v.module != nil && v.module.Address.Key() == prefix {
			delete(l.hir, k)
		}
	}
	for k, v := range l.mir {
		if v.module != nil && v.module.Address.Key() == prefix {
			delete(l.mir, k)
		}
	}
}
