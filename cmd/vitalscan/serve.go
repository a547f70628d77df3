package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sitevitals/vitalscan/internal/config"
	"github.com/sitevitals/vitalscan/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scan API and worker pool",
		Long: `Starts the HTTP API, the background worker pool consuming the scan
queue, and the Prometheus metrics endpoint in one process. Blocks until
SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := server.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}
