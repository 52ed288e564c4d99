package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sunholo/ailang/internal/query"
)

var hirBuiltinsFlag bool

var hirCmd = &cobra.Command{
	Use:   "hir <file>",
	Short: "Lower a file to HIR and dump its top-level body.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mod := moduleForFile(args[0])
		src := readSource(args[0])
		hirModule, err := layer.HIR(mod, src, hirBuiltinsFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", red("candyc"), err)
			os.Exit(1)
		}
		query.DumpHIR(os.Stdout, hirModule)
	},
}

func init() {
	hirCmd.Flags().BoolVar(&hirBuiltinsFlag, "builtins", false, "lower as the synthetic builtins module")
	rootCmd.AddCommand(hirCmd)
}
