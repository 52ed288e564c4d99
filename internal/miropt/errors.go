package miropt

import (
	"github.com/sunholo/ailang/internal/address"
	"github.com/sunholo/ailang/internal/diag"
	"github.com/sunholo/ailang/internal/mir"
)

// CollectErrors walks the final, optimized MIR to gather every Panic
// compiled from a hir.Error node as a diagnostic (spec.md §4.5.3's
// "error collection"). Every other Panic in the tree (a failed needs
// validation, an unmatched destructure or match) is a legitimate
// runtime failure mode, not a compile-time diagnostic, and is left
// alone.
func CollectErrors(mod address.Module, body *mir.Body) []*diag.Report {
	var reports []*diag.Report
	var walk func(b *mir.Body)
	walk = func(b *mir.Body) {
		for _, id := range b.Order {
			n := b.Exprs[id]
			if n.Kind == mir.KindPanic && n.IsPropagatedError {
				if reason := b.Exprs[n.PanicReason]; reason != nil && reason.Kind == mir.KindText {
					r := diag.New(diag.PhaseMIR, diag.MIRPropagatedError, mod, address.Span{}, reason.Text)
					reports = append(reports, r)
				}
			}
			if n.Kind == mir.KindFunction {
				walk(n.Body)
			}
		}
	}
	walk(body)
	return reports
}
