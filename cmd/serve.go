package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the operator API and executes queued runs",
		Long: `Starts the HTTP API (health, metrics, sources and runs endpoints)
and a dispatcher that executes submitted runs one at a time. SIGINT or
SIGTERM drains the server and stops between sources.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, _ *env, app App) error {
				return app.Serve(ctx)
			})
		},
	}
}
