package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sunholo/ailang/internal/config"
	"github.com/sunholo/ailang/internal/miropt"
	"github.com/sunholo/ailang/internal/query"
)

var (
	mirOptimizeFlag  bool
	mirTraceFlags    = map[string]string{}
	mirTraceFileFlag string
)

var mirCmd = &cobra.Command{
	Use:   "mir <file>",
	Short: "Lower a file to MIR and dump it, optionally optimized.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mod := moduleForFile(args[0])
		src := readSource(args[0])

		var tracing config.TracingConfig
		var tErr error
		if mirTraceFileFlag != "" {
			tracing, tErr = config.LoadTracingConfigFile(mirTraceFileFlag)
		} else {
			tracing, tErr = config.ParseTracingConfig(mirTraceFlags)
		}
		if tErr != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", red("candyc"), tErr)
			os.Exit(1)
		}

		mirModule, err := layer.MIR(mod, src, false, tracing)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", red("candyc"), err)
			os.Exit(1)
		}

		if mirOptimizeFlag {
			reports := miropt.Optimize(mod, mirModule.Top, mirModule.NeedsFunction)
			for _, r := range reports {
				fmt.Fprintf(os.Stderr, "%s: %s\n", red(r.Code), r.Message)
			}
		}

		query.DumpMIR(os.Stdout, mirModule.Top)
	},
}

func init() {
	mirCmd.Flags().BoolVar(&mirOptimizeFlag, "optimize", false, "run the MIR optimizer before dumping")
	mirCmd.Flags().StringToStringVar(&mirTraceFlags, "trace", nil, "tracing config, e.g. --trace calls=all")
	mirCmd.Flags().StringVar(&mirTraceFileFlag, "trace-config", "", "load tracing config from a YAML file instead of --trace")
	rootCmd.AddCommand(mirCmd)
}
