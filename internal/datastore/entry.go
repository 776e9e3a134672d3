package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kartevonmorgen/kvmsync/internal/errors"
	"github.com/kartevonmorgen/kvmsync/internal/observability/metrics"
	"github.com/kartevonmorgen/kvmsync/internal/ofdb"
)

// settleDelay is inserted after a connection-level error in the guarded
// serial tier so connection state can recover before the next attempt.
const settleDelay = 250 * time.Millisecond

// upsertTier enumerates the states of the reconcile fallback machine.
// Transitions only happen on failures of the batch mechanism itself; a
// single bad row never escalates the whole batch.
type upsertTier int

const (
	tierBulk upsertTier = iota
	tierPerRecord
	tierGuarded
	tierDone
)

// UpsertEntries writes a batch of entries into the store, creating missing
// rows and overwriting all mutable fields of existing ones. It returns the
// number of records written.
//
// Three tiers are tried in order: a single multi-row insert with an
// update-on-conflict clause; if that statement fails, one update-or-insert
// per record; if the connection itself turns out to be broken, a serialized
// lookup-and-save pass with a settle delay between failures. A row-level
// failure in the later tiers is logged and counted, never fatal to the
// batch.
func (ds *DataStore) UpsertEntries(ctx context.Context, entries []ofdb.Entry) (int, error) {
	if ds.DB == nil {
		return 0, errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	unique := ofdb.DeduplicateByID(entries)
	if len(unique) == 0 {
		return 0, nil
	}

	records := make([]EntryRecord, 0, len(unique))
	for i := range unique {
		records = append(records, NewEntryRecord(&unique[i]))
	}

	var count int
	tier := tierBulk
	for tier != tierDone {
		switch tier {
		case tierBulk:
			if err := ds.bulkAttempt(ctx, records); err != nil {
				ds.recordUpsertAttempt(metrics.TierBulk, metrics.StatusError)
				logger.Warn("Bulk upsert failed, falling back to per-record writes",
					"records", len(records), "error", err)
				tier = tierPerRecord
				continue
			}
			ds.recordUpsertAttempt(metrics.TierBulk, metrics.StatusSuccess)
			count = len(records)
			tier = tierDone

		case tierPerRecord:
			n, connBroken := ds.perRecordAttempt(ctx, records)
			if connBroken {
				ds.recordUpsertAttempt(metrics.TierPerRecord, metrics.StatusError)
				logger.Warn("Per-record upsert hit a broken connection, falling back to guarded writes",
					"written", n, "records", len(records))
				tier = tierGuarded
				continue
			}
			ds.recordUpsertAttempt(metrics.TierPerRecord, metrics.StatusSuccess)
			count = n
			tier = tierDone

		case tierGuarded:
			count = ds.guardedSerialAttempt(ctx, records)
			ds.recordUpsertAttempt(metrics.TierGuarded, metrics.StatusSuccess)
			tier = tierDone
		}
	}

	if ds.metrics != nil && count > 0 {
		ds.metrics.RecordEntriesUpserted(count)
	}
	return count, nil
}

func (ds *DataStore) recordUpsertAttempt(tier, status string) {
	if ds.metrics != nil {
		ds.metrics.RecordUpsertAttempt(tier, status)
	}
}

// bulkAttempt writes the whole batch in one multi-row statement inside a
// transaction, so it is all-or-nothing at the SQL level.
func (ds *DataStore) bulkAttempt(ctx context.Context, records []EntryRecord) error {
	return ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(entryAssignColumns),
		}).Create(&records).Error
	})
}

// perRecordAttempt tries an UPDATE for each record and falls back to an
// INSERT when no row was affected. Row failures are logged and skipped.
// It reports the number of records written and whether the connection
// itself appears broken, which is what escalates to the guarded tier.
func (ds *DataStore) perRecordAttempt(ctx context.Context, records []EntryRecord) (written int, connBroken bool) {
	for i := range records {
		rec := &records[i]

		res := ds.DB.WithContext(ctx).Model(&EntryRecord{}).
			Where("id = ?", rec.ID).
			Select(entryAssignColumns).
			Updates(rec)
		if res.Error == nil && res.RowsAffected > 0 {
			written++
			continue
		}
		if res.Error == nil {
			// No existing row, insert instead.
			if err := ds.DB.WithContext(ctx).Create(rec).Error; err != nil {
				logger.Warn("Insert failed for entry", "entry_id", rec.ID, "error", err)
				if ds.connectionBroken(ctx) {
					return written, true
				}
				continue
			}
			written++
			continue
		}

		logger.Warn("Update failed for entry", "entry_id", rec.ID, "error", res.Error)
		if ds.connectionBroken(ctx) {
			return written, true
		}
	}
	return written, false
}

// guardedSerialAttempt is the tier of last resort: one record at a time,
// lookup by ID, overwrite or create. Failures increment an error counter
// and are followed by a short settle delay.
func (ds *DataStore) guardedSerialAttempt(ctx context.Context, records []EntryRecord) int {
	var written, failed int
	for i := range records {
		rec := &records[i]
		if err := ds.saveOne(ctx, rec); err != nil {
			failed++
			logger.Warn("Guarded save failed for entry", "entry_id", rec.ID, "error", err)
			select {
			case <-time.After(settleDelay):
			case <-ctx.Done():
				logger.Warn("Guarded upsert canceled",
					"written", written, "failed", failed, "remaining", len(records)-i-1)
				return written
			}
			continue
		}
		written++
	}
	if failed > 0 {
		logger.Warn("Guarded upsert completed with failures",
			"written", written, "failed", failed)
	}
	return written
}

func (ds *DataStore) saveOne(ctx context.Context, rec *EntryRecord) error {
	var existing EntryRecord
	err := ds.DB.WithContext(ctx).First(&existing, "id = ?", rec.ID).Error
	switch {
	case err == nil:
		existing.assignFrom(rec)
		return ds.DB.WithContext(ctx).Save(&existing).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ds.DB.WithContext(ctx).Create(rec).Error
	default:
		return err
	}
}

// connectionBroken distinguishes a broken connection from a bad row by
// probing the underlying database.
func (ds *DataStore) connectionBroken(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return ds.Ping(pingCtx) != nil
}
