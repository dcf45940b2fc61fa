package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-price-pilot/marketplace"
)

var marketplacesCurrency string

func init() {
	marketplacesCmd.Flags().StringVar(&marketplacesCurrency, "currency", "", "Only list the marketplaces searched for this currency")
	rootCmd.AddCommand(marketplacesCmd)
}

var marketplacesCmd = &cobra.Command{
	Use:   "marketplaces [--currency <code>]",
	Short: "Lists the supported marketplace profiles.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := marketplace.IDs()
		if marketplacesCurrency != "" {
			ids = marketplace.ForCurrency(marketplacesCurrency)
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"ID", "Search URL", "Container"})
		for _, id := range ids {
			profile := marketplace.MustLookup(id)
			t.AppendRow(table.Row{profile.ID, profile.SearchURLTemplate, profile.Selectors.Container})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
