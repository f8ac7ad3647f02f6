package cli

import (
	"github.com/spf13/cobra"

	"tornwatch/internal/app"
)

var (
	scanFollow         bool
	scanOnlyDeals      bool
	scanHideOverpriced bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "Classify listings in a market page HTML snapshot",
	Long:  "Reads a saved market page (or stdin when no file is given), prices every listing, and prints the verdicts.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return getApp().Scan(cmd.Context(), app.ScanOptions{
			Path:           path,
			Follow:         scanFollow,
			ShowOnlyDeals:  scanOnlyDeals,
			HideOverpriced: scanHideOverpriced,
		})
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanFollow, "follow", false, "Keep watching the file and rescan on change")
	scanCmd.Flags().BoolVar(&scanOnlyDeals, "only-deals", false, "Report only listings classified as deals")
	scanCmd.Flags().BoolVar(&scanHideOverpriced, "hide-overpriced", false, "Omit overpriced listings from the report")
}
