package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"caucion-alerts/internal/app"
)

var (
	pruneBefore string
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete alert audit rows older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		before, err := time.Parse(time.RFC3339, pruneBefore)
		if err != nil {
			return fmt.Errorf("--before must be an RFC3339 timestamp: %w", err)
		}

		opts := app.PruneOptions{
			Before: before,
		}

		return getApp().Prune(cmd.Context(), opts)
	},
}

func init() {
	pruneCmd.Flags().StringVar(&pruneBefore, "before", "", "Cutoff time in RFC3339, e.g. 2026-01-01T00:00:00Z")
	_ = pruneCmd.MarkFlagRequired("before")
}
