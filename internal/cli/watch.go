package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tornwatch/internal/watchlist"
)

var (
	watchName      string
	watchDirection string
	muteDuration   time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage watched price targets",
}

var watchAddCmd = &cobra.Command{
	Use:   "add <item-id> <target-price>",
	Short: "Add or replace a price target",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id: %w", err)
		}
		target, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid target price: %w", err)
		}
		dir, err := parseDirection(watchDirection)
		if err != nil {
			return err
		}
		return getApp().WatchAdd(cmd.Context(), itemID, watchName, target, dir)
	},
}

var watchRemoveCmd = &cobra.Command{
	Use:     "rm <item-id>",
	Aliases: []string{"remove"},
	Short:   "Remove a price target",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id: %w", err)
		}
		dir, err := parseDirection(watchDirection)
		if err != nil {
			return err
		}
		return getApp().WatchRemove(cmd.Context(), itemID, dir)
	},
}

var watchMuteCmd = &cobra.Command{
	Use:   "mute <item-id>",
	Short: "Silence alerts for an item (tracking continues)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id: %w", err)
		}
		return getApp().WatchMute(cmd.Context(), itemID, muteDuration)
	},
}

var watchUnmuteCmd = &cobra.Command{
	Use:   "unmute <item-id>",
	Short: "Lift a mute immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id: %w", err)
		}
		return getApp().WatchUnmute(cmd.Context(), itemID)
	},
}

var watchResetCmd = &cobra.Command{
	Use:   "reset <item-id>",
	Short: "Clear the observed price extrema for an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id: %w", err)
		}
		return getApp().WatchReset(cmd.Context(), itemID)
	},
}

func parseDirection(raw string) (watchlist.Direction, error) {
	switch raw {
	case "", "below", string(watchlist.AtOrBelow):
		return watchlist.AtOrBelow, nil
	case "above", string(watchlist.AtOrAbove):
		return watchlist.AtOrAbove, nil
	default:
		return "", fmt.Errorf("invalid --direction %q (use below or above)", raw)
	}
}

func init() {
	watchAddCmd.Flags().StringVar(&watchName, "name", "", "Display name (defaults to the catalog name)")
	watchAddCmd.Flags().StringVar(&watchDirection, "direction", "below", "Alert direction: below or above")
	watchRemoveCmd.Flags().StringVar(&watchDirection, "direction", "below", "Alert direction: below or above")
	watchMuteCmd.Flags().DurationVar(&muteDuration, "for", 0, "Mute duration (defaults to 1h)")

	watchCmd.AddCommand(watchAddCmd)
	watchCmd.AddCommand(watchRemoveCmd)
	watchCmd.AddCommand(watchMuteCmd)
	watchCmd.AddCommand(watchUnmuteCmd)
	watchCmd.AddCommand(watchResetCmd)
}
