// Package cmd defines and implements the CLI commands for the ingest executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/recourt/ingest/internal/config"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Processes queued court cases into analyzed, normalized records.",
		Long: `ingest drains the case job queue: it fetches each case's decision PDF,
deduplicates identical documents, sends fresh documents to the analysis
service and normalizes the structured result into the relational store.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment only)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newRetryCmd())

	return cmd
}

// loadConfig reads the configuration from the --config file plus environment.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
