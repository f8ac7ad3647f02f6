package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <item-id> <price>",
	Short: "模拟一次买入判定",
	Long:  "Judges a hypothetical purchase at the given price against the item's fair value, without buying anything.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id: %w", err)
		}
		price, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid price: %w", err)
		}
		return getApp().Simulate(cmd.Context(), itemID, price)
	},
}
