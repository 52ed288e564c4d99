package query

import (
	"fmt"
	"io"
	"strings"

	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/cst"
	"github.com/sunholo/ailang/internal/hir"
	"github.com/sunholo/ailang/internal/mir"
)

// DumpCST writes an indented text rendering of a CST, one node per
// line, for cmd/candyc's `cst` subcommand and for eyeballing a tree in
// tests without a debugger.
func DumpCST(w io.Writer, n *cst.Node, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	if n.Text != "" {
		fmt.Fprintf(w, "%s%s %q\n", indent, n.Kind, n.Text)
	} else {
		fmt.Fprintf(w, "%s%s\n", indent, n.Kind)
	}
	for _, c := range n.Children {
		DumpCST(w, c, depth+1)
	}
}

// DumpAST writes an indented text rendering of every top-level AST
// node in a module.
func DumpAST(w io.Writer, m *ast.Module) {
	for _, n := range m.Top {
		dumpASTNode(w, n, 0)
	}
}

func dumpASTNode(w io.Writer, n *ast.Node, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	switch {
	case n.Text != "":
		fmt.Fprintf(w, "%s%s %q\n", indent, n.Kind, n.Text)
	case n.IntValue != "":
		fmt.Fprintf(w, "%s%s %s\n", indent, n.Kind, n.IntValue)
	default:
		fmt.Fprintf(w, "%s%s\n", indent, n.Kind)
	}
	for _, p := range n.Parts {
		dumpASTNode(w, p, depth+1)
	}
	for _, it := range n.Items {
		dumpASTNode(w, it, depth+1)
	}
	for _, f := range n.Fields {
		dumpASTNode(w, f.Key, depth+1)
		dumpASTNode(w, f.Value, depth+1)
	}
	dumpASTNode(w, n.Receiver, depth+1)
	dumpASTNode(w, n.Key, depth+1)
	for _, p := range n.Parameters {
		dumpASTNode(w, p, depth+1)
	}
	dumpASTNode(w, n.Body, depth+1)
	for _, a := range n.Arguments {
		dumpASTNode(w, a, depth+1)
	}
	dumpASTNode(w, n.Name, depth+1)
	dumpASTNode(w, n.Pattern, depth+1)
	dumpASTNode(w, n.Expression, depth+1)
	for _, c := range n.Cases {
		dumpASTNode(w, c, depth+1)
	}
	dumpASTNode(w, n.Value, depth+1)
}

// DumpHIR writes an indented text rendering of a module's top-level
// body, descending into nested Function/Match-case bodies.
func DumpHIR(w io.Writer, m *hir.Module) {
	dumpHIRBody(w, m.Top, 0)
}

func dumpHIRBody(w io.Writer, b *hir.Body, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, id := range b.Order {
		n, _ := b.Find(id)
		name := b.Name(id)
		label := n.Kind.String()
		if name != "" {
			label = fmt.Sprintf("%s (%s)", label, name)
		}
		switch n.Kind {
		case hir.KindInt:
			fmt.Fprintf(w, "%s%s:%s %s\n", indent, id, label, n.IntValue)
		case hir.KindText, hir.KindSymbol:
			fmt.Fprintf(w, "%s%s:%s %q\n", indent, id, label, n.Text)
		default:
			fmt.Fprintf(w, "%s%s:%s\n", indent, id, label)
		}
		if n.Kind == hir.KindFunction && n.FunctionBody != nil {
			dumpHIRBody(w, n.FunctionBody, depth+1)
		}
		if n.Kind == hir.KindMatch {
			for i, c := range n.Cases {
				fmt.Fprintf(w, "%s  case %d:\n", indent, i)
				if c.CaseBody != nil {
					dumpHIRBody(w, c.CaseBody, depth+2)
				}
			}
		}
	}
}

// DumpMIR writes an indented text rendering of one MIR body,
// descending into nested Function bodies.
func DumpMIR(w io.Writer, b *mir.Body) {
	dumpMIRBody(w, b, 0)
}

func dumpMIRBody(w io.Writer, b *mir.Body, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, id := range b.Order {
		n := b.Exprs[id]
		switch n.Kind {
		case mir.KindInt:
			fmt.Fprintf(w, "%s%s:%s %s\n", indent, id, n.Kind, n.IntValue)
		case mir.KindText, mir.KindBuiltin:
			fmt.Fprintf(w, "%s%s:%s %q\n", indent, id, n.Kind, n.Text)
		case mir.KindTag:
			fmt.Fprintf(w, "%s%s:%s %q\n", indent, id, n.Kind, n.Text)
		case mir.KindCall:
			fmt.Fprintf(w, "%s%s:%s fn=%s args=%v responsible=%s\n", indent, id, n.Kind, n.CallFunction, n.CallArguments, n.Responsible)
		case mir.KindReference:
			fmt.Fprintf(w, "%s%s:%s -> %s\n", indent, id, n.Kind, n.Reference)
		default:
			fmt.Fprintf(w, "%s%s:%s\n", indent, id, n.Kind)
		}
		if n.Kind == mir.KindFunction && n.Body != nil {
			dumpMIRBody(w, n.Body, depth+1)
		}
	}
}
