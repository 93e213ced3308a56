// Package cmd defines and implements the CLI commands for the govdata-ingest executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/govdata-ingest/internal/config"
	"github.com/JakeFAU/govdata-ingest/internal/ingest"
	"github.com/JakeFAU/govdata-ingest/internal/logging"
	"github.com/JakeFAU/govdata-ingest/internal/server"
)

// Version is stamped at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

// envKeyType is the key for storing the command environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// App defines the application surface that commands use.
// This allows tests to inject a fake.
type App interface {
	RunOnce(ctx context.Context, filter ingest.Filter) (ingest.RunReport, error)
	Serve(ctx context.Context) error
	Migrate(ctx context.Context) (int, error)
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	app, err := server.Build(ctx, cfg, logger, Version)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// env carries what PersistentPreRunE resolved to the subcommands.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "govdata-ingest",
		Short: "Ingests Canadian government data into a deduplicated store.",
		Long: `govdata-ingest walks a registry of federal, provincial and municipal
government websites, fetches their published data (politicians, bills,
votes, committees, statements and elections), and upserts the records
into a store keyed on each entity's natural identity.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before every subcommand: config and logging are resolved once
		// and handed down through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml); env vars use the INGEST_ prefix")

	cmd.AddCommand(newRunCmd(), newServeCmd(), newSourcesCmd(), newMigrateCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("command environment not initialized")
	}
	return e, nil
}

// withApp builds the application, hands it to fn and always closes it.
func withApp(cmd *cobra.Command, fn func(context.Context, *env, App) error) (err error) {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	app, err := newApp(cmd.Context(), e.cfg, e.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := app.Close(context.WithoutCancel(cmd.Context())); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(cmd.Context(), e, app)
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
