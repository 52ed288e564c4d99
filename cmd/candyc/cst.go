package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sunholo/ailang/internal/query"
)

var cstCmd = &cobra.Command{
	Use:   "cst <file>",
	Short: "Parse a file and dump its concrete syntax tree.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mod := moduleForFile(args[0])
		src := readSource(args[0])
		tree, err := layer.CST(mod, src)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", red("candyc"), err)
			os.Exit(1)
		}
		query.DumpCST(os.Stdout, tree.Root, 0)
	},
}

func init() {
	rootCmd.AddCommand(cstCmd)
}
