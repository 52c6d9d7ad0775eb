// Command cvf2tool is the operator-facing entry point around the CVF2
// codec, tile manager, and meta-tile pyramid generator: one cobra root
// command with a subcommand per pipeline stage, replacing the reference
// project's convention of one binary per stage.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	verbose     bool
	metricsAddr string

	logger *log.Logger
	reg    *prometheus.Registry
)

var rootCmd = &cobra.Command{
	Use:   "cvf2tool",
	Short: "Build and query CVF2 scalar-field tile pyramids",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		flags := log.LstdFlags
		if verbose {
			flags |= log.Lmicroseconds
		}
		logger = log.New(os.Stderr, "", flags)
		reg = prometheus.NewRegistry()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "if set, also expose Prometheus metrics on this address during the command")
	rootCmd.AddCommand(encodeCmd, inspectCmd, scanCmd, queryCmd, renderCmd, pyramidCmd, csvCmd, serveMetricsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
