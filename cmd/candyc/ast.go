package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sunholo/ailang/internal/query"
)

var astCmd = &cobra.Command{
	Use:   "ast <file>",
	Short: "Lower a file to AST and dump it.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mod := moduleForFile(args[0])
		src := readSource(args[0])
		astModule, err := layer.AST(mod, src)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", red("candyc"), err)
			os.Exit(1)
		}
		query.DumpAST(os.Stdout, astModule)
	},
}

func init() {
	rootCmd.AddCommand(astCmd)
}
