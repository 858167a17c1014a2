// Package main implements the mlnground CLI: load a declarative theory
// fixture, ground it into a Markov Random Field, and print a summary (or
// the full ground-atom listing) of the result.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mlnground/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "mlnground",
	Short: "Parallel grounding engine for Markov Logic Networks",
	Long: `mlnground materializes the minimal ground Markov Random Field relevant
to a set of query predicates from a first-order theory: a set of weighted
clauses, a domain of constants, and a partial evidence assignment.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(verbose); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug-level structured logging")
	rootCmd.AddCommand(buildCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mlnground version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("mlnground 0.1.0")
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
