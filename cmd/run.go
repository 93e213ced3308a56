package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// ErrRunHadErrors is returned by run --strict when the run did not complete cleanly.
var ErrRunHadErrors = errors.New("run completed with errors")

type runOptions struct {
	tier     string
	dataType string
	format   string
	strict   bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one ingestion pass over the source registry",
		Long: `Fetches every selected source in registry order, extracts and
normalizes its records and upserts them into the configured store.
Interrupting the command stops the run between sources; the report
is still printed and marked partial.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(opts.format); err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, _ *env, app App) error {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				report, err := app.RunOnce(ctx, ingest.Filter{Tier: opts.tier, DataType: opts.dataType})
				if err != nil {
					return err
				}
				if err := renderReport(cmd.OutOrStdout(), report, opts.format); err != nil {
					return err
				}
				if opts.strict && report.State != ingest.RunCompleted {
					return ErrRunHadErrors
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.tier, "tier", "", "only sources of this tier (federal, provincial, municipal)")
	cmd.Flags().StringVar(&opts.dataType, "data-type", "", "only this data type (politicians, bills, votes, committees, statements, elections)")
	cmd.Flags().StringVarP(&opts.format, "format", "o", formatTable, "output format: table or json")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit non-zero unless the run completed without errors")
	return cmd
}
