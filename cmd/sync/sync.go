// Package sync implements the one-shot full sync command.
package sync

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/runtime"
)

const fmtPrecision = 100 * time.Millisecond

// Command creates the command running one full sync over all areas.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch and reconcile all configured areas once",
		Long: "Plan the search grid for every configured area, fetch all visible " +
			"entries from the directory and upsert them into the local store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtime.Build(settings)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			summary := rt.Orchestrator.SyncAll(cmd.Context())
			fmt.Printf("Upserted %d entries from %d/%d areas in %s (max visible per cell: %d)\n",
				summary.TotalUpserted, summary.SuccessfulAreas,
				summary.SuccessfulAreas+summary.FailedAreas,
				summary.Elapsed.Round(fmtPrecision), summary.MaxVisiblePerCell)
			return nil
		},
	}
	return cmd
}
