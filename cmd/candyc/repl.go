package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/sunholo/ailang/internal/address"
	"github.com/sunholo/ailang/internal/config"
	"github.com/sunholo/ailang/internal/query"
)

var replStageFlag string

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactively dump a stage's tree for a typed-in snippet.",
	Run: func(cmd *cobra.Command, args []string) {
		runREPL(os.Stdout)
	},
}

func init() {
	replCmd.Flags().StringVar(&replStageFlag, "stage", "mir", "stage to dump: cst, ast, hir, or mir")
	rootCmd.AddCommand(replCmd)
}

func runREPL(out io.Writer) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetMultiLineMode(true)

	historyFile := filepath.Join(os.TempDir(), ".candyc_history")
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	dim := color.New(color.Faint).SprintFunc()
	fmt.Fprintln(out, dim(fmt.Sprintf("candyc repl — dumping %s; :quit to exit, :stage <name> to switch", replStageFlag)))

	mod := address.New(address.ToolingPackage("repl"), []string{"Repl"}, address.Code)

	for {
		input, err := line.Prompt("candy> ")
		if err != nil {
			break
		}
		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		line.AppendHistory(input)

		if trimmed == ":quit" {
			break
		}
		if rest, ok := strings.CutPrefix(trimmed, ":stage "); ok {
			replStageFlag = strings.TrimSpace(rest)
			continue
		}

		dumpSnippet(out, mod, []byte(input), replStageFlag)
	}

	if f, err := os.Create(historyFile); err == nil {
		_, _ = line.WriteHistory(f)
		f.Close()
	}
}

func dumpSnippet(out io.Writer, mod address.Module, src []byte, stage string) {
	switch stage {
	case "cst":
		tree, err := layer.CST(mod, src)
		if err != nil {
			fmt.Fprintln(out, red(err.Error()))
			return
		}
		query.DumpCST(out, tree.Root, 0)
	case "ast":
		astModule, err := layer.AST(mod, src)
		if err != nil {
			fmt.Fprintln(out, red(err.Error()))
			return
		}
		query.DumpAST(out, astModule)
	case "hir":
		hirModule, err := layer.HIR(mod, src, false)
		if err != nil {
			fmt.Fprintln(out, red(err.Error()))
			return
		}
		query.DumpHIR(out, hirModule)
	case "mir":
		mirModule, err := layer.MIR(mod, src, false, config.NoTracing)
		if err != nil {
			fmt.Fprintln(out, red(err.Error()))
			return
		}
		query.DumpMIR(out, mirModule.Top)
	default:
		fmt.Fprintf(out, "unknown stage %q (want cst, ast, hir, or mir)\n", stage)
	}
}
