// Package miropt implements the MIR optimizer (spec.md §4.5): constant
// folding, common-subtree elimination, tree shaking, reference-chain
// collapse, and final error collection, all operating on the same
// Body-plus-PurenessInsights shape.
package miropt

import (
	"github.com/sunholo/ailang/internal/address"
	"github.com/sunholo/ailang/internal/diag"
	"github.com/sunholo/ailang/internal/mir"
)

// Purity classifies an expression for optimization purposes (spec.md
// §4.5): whether it may be deduplicated, constant-folded, or removed
// when unused.
type Purity int

const (
	// Effectful expressions (Panic, UseModule, any Trace*, a Call whose
	// target isn't known to be side-effect-free) can't be deduplicated
	// or dropped even if their result goes unused.
	Effectful Purity = iota
	// Deterministic expressions always produce the same value given
	// the same (already-evaluated) operands, so CSE may merge two
	// occurrences and tree-shaking may drop an unused one.
	Deterministic
	// Const expressions are compile-time literals: Int, Text, Tag,
	// Builtin, Lists/Structs built entirely from Const operands, and
	// every Function literal.
	Const
)

// Optimize runs every miropt pass to a fixpoint and returns the
// diagnostics gathered from the remaining panics that were compiled
// from HIR errors (spec.md §4.5.3's "error collection"). The passes
// mutate body in place; needsFunction is the module's needs function,
// exempt from tree shaking even when nothing currently calls it.
func Optimize(mod address.Module, body *mir.Body, needsFunction mir.ID) []*diag.Report {
	alloc := newIDAllocator(body)
	optimizeBody(body, alloc, []mir.ID{needsFunction})
	return CollectErrors(mod, body)
}

// optimizeBody runs every pass on one body to a fixpoint, then
// recurses into every nested function body (each is its own
// optimization unit with its own local definitions, per spec.md
// §4.5.2's body-scoped normalization). exempt lists ids a tree-shaking
// pass must never drop even with no visible uses within this body
// (the module-wide needs function, referenced only indirectly through
// KindNeeds calls that were compiled before this body existed).
func optimizeBody(body *mir.Body, alloc *idAllocator, exempt []mir.ID) {
	for {
		pureness := AnalyzePureness(body)
		changed := false
		changed = FoldConstants(body, pureness, alloc) || changed
		changed = EliminateCommonSubtrees(body, pureness) || changed
		changed = CollapseReferenceChains(body) || changed
		changed = ShakeTree(body, pureness, exempt) || changed
		if !changed {
			break
		}
	}
	for _, id := range body.Order {
		if n := body.Exprs[id]; n.Kind == mir.KindFunction {
			optimizeBody(n.Body, alloc, nil)
		}
	}
}

// idAllocator hands out fresh mir.IDs above every id already in use.
// It is passed to constant folding, but no current pass calls alloc.
type idAllocator struct{ next int }

func newIDAllocator(body *mir.Body) *idAllocator {
	max := -1
	walkAllIDs(body, func(id mir.ID) {
		if int(id) > max {
			max = int(id)
		}
	})
	return &idAllocator{next: max + 1}
}

func (a *idAllocator) alloc() mir.ID {
	id := mir.ID(a.next)
	a.next++
	return id
}

func walkAllIDs(body *mir.Body, visit func(mir.ID)) {
	for _, id := range body.Order {
		visit(id)
		if n := body.Exprs[id]; n.Kind == mir.KindFunction {
			for _, p := range n.Parameters {
				visit(p)
			}
			walkAllIDs(n.Body, visit)
		}
	}
}
