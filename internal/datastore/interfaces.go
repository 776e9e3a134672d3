// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/errors"
	"github.com/kartevonmorgen/kvmsync/internal/ofdb"
)

// Interface abstracts the underlying database implementation and defines the
// operations the sync pipeline and the subscription API need.
type Interface interface {
	Open() error
	Close() error
	Ping(ctx context.Context) error
	SetMetrics(m UpsertMetrics)

	// entry reconciliation
	UpsertEntries(ctx context.Context, entries []ofdb.Entry) (int, error)
	GetEntry(ctx context.Context, id string) (*ofdb.Entry, error)
	CountEntries(ctx context.Context) (int64, error)
	EntriesInBoundingBox(ctx context.Context, latMin, lonMin, latMax, lonMax float64, changedSince time.Time) ([]ofdb.Entry, error)

	// subscription management
	CreateSubscription(ctx context.Context, sub *SubscriptionRecord) error
	GetSubscription(ctx context.Context, id string) (*SubscriptionRecord, error)
	FindSubscription(ctx context.Context, email string, latMin, lonMin, latMax, lonMax float64, interval, subscriptionType string) (*SubscriptionRecord, error)
	ListSubscriptions(ctx context.Context, email string) ([]SubscriptionRecord, error)
	ListActiveSubscriptions(ctx context.Context, interval string) ([]SubscriptionRecord, error)
	UpdateSubscription(ctx context.Context, sub *SubscriptionRecord) error
	SetSubscriptionActive(ctx context.Context, id string, active bool) error
	DeleteSubscription(ctx context.Context, id string) error
}

// UpsertMetrics receives reconciliation events. Implemented by
// observability/metrics.SyncMetrics; a nil recorder disables instrumentation.
type UpsertMetrics interface {
	RecordUpsertAttempt(tier, status string)
	RecordEntriesUpserted(count int)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB      *gorm.DB
	metrics UpsertMetrics
}

// New creates a new store instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// SetMetrics attaches an upsert metrics recorder. Safe to leave unset.
func (ds *DataStore) SetMetrics(m UpsertMetrics) {
	ds.metrics = m
}

// Ping verifies that the underlying connection is alive. Used by the
// reconcile tiers to distinguish a broken connection from a bad row.
func (ds *DataStore) Ping(ctx context.Context) error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return sqlDB.PingContext(ctx)
}

// GetEntry retrieves one entry by its directory ID.
func (ds *DataStore) GetEntry(ctx context.Context, id string) (*ofdb.Entry, error) {
	var rec EntryRecord
	if err := ds.DB.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("entry %s not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("entry_id", id).
			Build()
	}
	entry := rec.ToEntry()
	return &entry, nil
}

// CountEntries returns the number of entries in the store.
func (ds *DataStore) CountEntries(ctx context.Context) (int64, error) {
	var count int64
	if err := ds.DB.WithContext(ctx).Model(&EntryRecord{}).Count(&count).Error; err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return count, nil
}

// EntriesInBoundingBox returns entries inside the given box that changed
// since the given time. Used by the digest mailer to match subscriptions
// against fresh data. A zero changedSince returns all entries in the box.
func (ds *DataStore) EntriesInBoundingBox(ctx context.Context, latMin, lonMin, latMax, lonMax float64, changedSince time.Time) ([]ofdb.Entry, error) {
	q := ds.DB.WithContext(ctx).
		Where("lat >= ? AND lat <= ?", latMin, latMax).
		Where("lng >= ? AND lng <= ?", lonMin, lonMax)
	if !changedSince.IsZero() {
		q = q.Where("updated_at >= ?", changedSince)
	}

	var recs []EntryRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("bbox", fmt.Sprintf("%v,%v,%v,%v", latMin, lonMin, latMax, lonMax)).
			Build()
	}

	entries := make([]ofdb.Entry, 0, len(recs))
	for i := range recs {
		entries = append(entries, recs[i].ToEntry())
	}
	return entries, nil
}
