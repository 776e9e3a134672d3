package flows

import (
	"context"
	"time"

	"github.com/kartevonmorgen/kvmsync/internal/mail"
)

// digestWindow returns how far back a digest interval looks for changed
// entries.
func digestWindow(interval string) time.Duration {
	switch interval {
	case "weekly":
		return 7 * 24 * time.Hour
	case "monthly":
		return 30 * 24 * time.Hour
	default: // daily
		return 24 * time.Hour
	}
}

// SendDigests mails every active subscription of the given interval whose
// bounding box saw entry changes inside the interval's window. One
// subscription's failure is logged and skipped, never aborting the run.
// Returns the number of digests sent.
func (o *Orchestrator) SendDigests(ctx context.Context, sender *mail.Sender, interval string) (int, error) {
	logger.Info("Starting digest run", "interval", interval)

	subs, err := o.store.ListActiveSubscriptions(ctx, interval)
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		logger.Info("No active subscriptions", "interval", interval)
		return 0, nil
	}

	changedSince := time.Now().Add(-digestWindow(interval))

	var sent, skipped, failed int
	for i := range subs {
		sub := &subs[i]

		entries, err := o.store.EntriesInBoundingBox(ctx,
			sub.LatMin, sub.LonMin, sub.LatMax, sub.LonMax, changedSince)
		if err != nil {
			failed++
			logger.Error("Failed to load entries for subscription",
				"subscription_id", sub.ID, "error", err)
			continue
		}
		if len(entries) == 0 {
			skipped++
			logger.Debug("No new entries for subscription", "subscription_id", sub.ID)
			continue
		}

		if err := sender.SendDigest(ctx, sub, entries); err != nil {
			failed++
			logger.Error("Failed to send digest",
				"subscription_id", sub.ID, "error", err)
			continue
		}
		sent++
	}

	logger.Info("Digest run completed",
		"interval", interval, "sent", sent, "skipped", skipped, "failed", failed)
	return sent, nil
}
