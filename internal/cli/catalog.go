package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and refresh the item directory",
}

var catalogRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a directory rebuild",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CatalogRefresh(cmd.Context())
	},
}

var catalogLookupCmd = &cobra.Command{
	Use:   "lookup <name>",
	Short: "Resolve an item by name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CatalogLookup(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	catalogCmd.AddCommand(catalogRefreshCmd)
	catalogCmd.AddCommand(catalogLookupCmd)
}
