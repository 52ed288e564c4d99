package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sunholo/ailang/internal/address"
	"github.com/sunholo/ailang/internal/query"
)

var rootCmd = &cobra.Command{
	Use:   "candyc",
	Short: "A pipeline harness for the Candy compiler core.",
	Long:  "candyc parses a file through cst/ast/hir/mir and dumps the requested stage's tree.",
}

var layer = query.NewLayer(nil)

var (
	red = color.New(color.FgRed).SprintFunc()
)

// moduleForFile derives a Module identity from a file path the way a
// standalone CLI invocation naturally would: the file's path is the
// module's User-package identity, and its basename (minus extension)
// is its single path component.
func moduleForFile(path string) address.Module {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return address.New(address.UserPackage(abs), []string{name}, address.Code)
}

func readSource(path string) []byte {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("candyc"), err)
		os.Exit(1)
	}
	return src
}
