// Command candyc is a thin CLI harness over the compiler pipeline in
// internal/: each subcommand parses one file through cst/ast/hir/mir
// and dumps the resulting tree. All the actual logic lives in
// internal/*; this binary exists only for manual smoke-testing.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
