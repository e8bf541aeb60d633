package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the crawl trigger and health endpoints",
		Long: `Starts the HTTP server exposing /crawl, /healthz, /readyz and /metrics,
plus the cron schedule when schedule.enabled is set. Stops on SIGINT or
SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return appInstance.Run(cmd.Context())
		},
	}
}
