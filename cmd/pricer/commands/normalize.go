package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-price-pilot/parser"
)

var normalizeJSON bool

func init() {
	normalizeCmd.Flags().BoolVar(&normalizeJSON, "json", false, "Print the query as JSON")
	rootCmd.AddCommand(normalizeCmd)
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <product name>",
	Short: "Prints the simplified search name and relevance keywords for a product name.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := parser.NormalizeQuery(strings.Join(args, " "))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if normalizeJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(query)
		}
		fmt.Fprintf(out, "simplified: %s\n", query.SimplifiedName)
		fmt.Fprintf(out, "keywords:   %s\n", strings.Join(query.Keywords, ", "))
		return nil
	},
}
