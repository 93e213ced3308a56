package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
	"github.com/JakeFAU/govdata-ingest/internal/registry"
)

func newSourcesCmd() *cobra.Command {
	var (
		tier     string
		dataType string
		format   string
	)
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Lists the sources in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			reg := registry.Default()
			if len(e.cfg.Sources) > 0 {
				if reg, err = registry.FromConfig(e.cfg.Sources); err != nil {
					return err
				}
			}
			sources, err := reg.ListSources(ingest.Filter{Tier: tier, DataType: dataType})
			if err != nil {
				return err
			}
			return renderSources(cmd.OutOrStdout(), sources, format)
		},
	}
	cmd.Flags().StringVar(&tier, "tier", "", "only sources of this tier")
	cmd.Flags().StringVar(&dataType, "data-type", "", "only sources publishing this data type")
	cmd.Flags().StringVarP(&format, "format", "o", formatTable, "output format: table or json")
	return cmd
}
