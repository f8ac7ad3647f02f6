package cli

import (
	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause scanning and background polling",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetPaused(cmd.Context(), true)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume scanning and background polling",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetPaused(cmd.Context(), false)
	},
}
