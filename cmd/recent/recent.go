// Package recent implements the recently-changed sync command.
package recent

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/runtime"
)

// Command creates the command syncing the directory's recently-changed feed.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Reconcile recently changed entries",
		Long: "Fetch the directory's recently-changed feed and upsert the " +
			"returned entries into the local store. Cheaper than a full sync.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtime.Build(settings)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			count, err := rt.Orchestrator.SyncRecent(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Upserted %d recently changed entries\n", count)
			return nil
		},
	}
	return cmd
}
