package flows

import (
	"context"
	"time"

	"github.com/kartevonmorgen/kvmsync/internal/ofdb"
)

// recentWindow is how far back the recent sync looks. Runs are scheduled
// more often than this, so consecutive windows overlap; the upsert is
// idempotent, so overlap is harmless.
const recentWindow = 24 * time.Hour

// SyncRecent pulls the directory's recently-changed feed and reconciles it
// into the store. It is a cheap complement to SyncAll between full runs.
func (o *Orchestrator) SyncRecent(ctx context.Context) (int, error) {
	logger.Info("Starting recent entries sync")

	client := o.newClient()
	entries := client.GetRecentEntries(ctx, &ofdb.RecentQuery{
		Since:       time.Now().Add(-recentWindow).Unix(),
		WithRatings: true,
		Limit:       o.settings.OFDB.Limit,
	})
	if len(entries) == 0 {
		logger.Info("No recently changed entries")
		return 0, nil
	}

	count, err := o.store.UpsertEntries(ctx, entries)
	if err != nil {
		return 0, err
	}

	logger.Info("Completed recent entries sync", "upserted", count)
	return count, nil
}
