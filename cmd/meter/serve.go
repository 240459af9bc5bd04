package main

import (
	"github.com/spf13/cobra"

	"github.com/westsidetechsolutions/meter/bootstrap"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metering HTTP service",
	Long: `Start the meter HTTP service.

The server will:
  - Load configuration from meter.yaml (or --config)
  - Or load configuration from METER_* environment variables
  - Open the configured store (memory, sqlite or postgres)
  - Serve /v1/meter/{field} and /v1/usage for API key holders

Environment variables:
  METER_STORAGE_DRIVER  - memory, sqlite or postgres (default: sqlite)
  METER_STORAGE_DSN     - database path or connection string
  METER_REDIS_URL       - keep usage counters in Redis
  METER_SERVER_PORT     - server port (default: 8080)
  METER_LOG_LEVEL       - debug, info, warn, error

Examples:
  meter serve
  meter serve --config /etc/meter/meter.yaml
  meter serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := bootstrap.New(cmd.Context(), bootstrap.Options{
		ConfigPath: cfgFile,
		Watch:      hotReload,
		Version:    version,
	})
	if err != nil {
		return err
	}

	// Run (blocks until shutdown)
	return a.Run()
}
