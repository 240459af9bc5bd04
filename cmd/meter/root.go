package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/westsidetechsolutions/meter/bootstrap"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meter",
	Short: "Usage metering and plan entitlement enforcement",
	Long: `meter counts per-user usage within billing periods and enforces
the quota ceilings of each user's subscription plan.

Quick start:
  meter serve                       # Start the HTTP service
  meter keys issue --user=user_123  # Issue an API key

Management:
  meter subscribers  # Manage subscriber plans and periods
  meter keys         # Manage API keys
  meter usage        # Inspect and adjust usage
  meter plans        # Show the plan catalog`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "meter.yaml", "config file path")
}

// openApp wires the application for one-shot admin commands.
// Logs go to stderr so command output stays clean.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	a, err := bootstrap.New(ctx, bootstrap.Options{
		ConfigPath: cfgFile,
		Version:    version,
		LogOutput:  os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return a, nil
}
