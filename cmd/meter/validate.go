package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/westsidetechsolutions/meter/config"
)

const (
	checkMark = "✓"
	crossMark = "✗"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the meter configuration file.

Checks:
  - YAML syntax is valid
  - Storage driver and DSN are consistent
  - Plan rows are well formed and default_plan exists

Examples:
  meter validate
  meter validate --config /etc/meter/meter.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Fprintf(out, "  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	fmt.Fprintf(out, "  %s Storage: %s\n", checkMark, cfg.Storage.Driver)
	if cfg.Storage.Redis.URL != "" {
		fmt.Fprintf(out, "  %s Usage counters: redis\n", checkMark)
	}
	fmt.Fprintf(out, "  %s Plans configured: %d (default %s)\n", checkMark, len(cfg.Plans), cfg.Catalog().FallbackID())
	fmt.Fprintf(out, "  %s Key prefix: %s, hash: %s\n", checkMark, cfg.Auth.KeyPrefix, cfg.Auth.HashAlgorithm)
	return nil
}
