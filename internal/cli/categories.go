package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/epimap/internal/catalogue"
)

var categoriesJSON bool

// categoriesCmd represents the categories command
var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the epistemology catalogue",
	Long:  `List every category with its weight, keywords and explanation, in catalogue order.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalogue.Default()
		if err != nil {
			return fmt.Errorf("load catalogue: %w", err)
		}

		out := cmd.OutOrStdout()
		if categoriesJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cat.Describe())
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tWEIGHT\tKEYWORDS\tEXPLANATION")
		for _, d := range cat.Describe() {
			fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\n", d.Label, d.Weight, strings.Join(d.Keywords, ", "), d.Explanation)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)

	categoriesCmd.Flags().BoolVar(&categoriesJSON, "json", false, "print the catalogue as JSON")
}
