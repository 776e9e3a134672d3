package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/errors"
	"github.com/kartevonmorgen/kvmsync/internal/ofdb"
)

// newTestStore opens a fresh SQLite store in a per-test temp directory.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "kvmsync.db")

	store, ok := New(settings).(*SQLiteStore)
	require.True(t, ok)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEntry(id, title string) ofdb.Entry {
	return ofdb.Entry{
		ID:          id,
		Created:     1700000000,
		Version:     1,
		Title:       title,
		Description: "a place",
		Lat:         52.52,
		Lng:         13.40,
		City:        "Berlin",
		License:     "CC0-1.0",
		Categories:  []string{"2cd00bebec0c48ba9db761da48678134"},
		Tags:        []string{"organic", "fair"},
	}
}

func TestNewReturnsNilWithoutOutput(t *testing.T) {
	t.Parallel()

	assert.Nil(t, New(&conf.Settings{}))
}

func TestUpsertEntriesInsertsBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []ofdb.Entry{testEntry("e1", "one"), testEntry("e2", "two")}
	count, err := store.UpsertEntries(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	total, err := store.CountEntries(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestUpsertEntriesIsIdempotentAndOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testEntry("e1", "old title")
	_, err := store.UpsertEntries(ctx, []ofdb.Entry{first})
	require.NoError(t, err)

	second := first
	second.Title = "new title"
	second.Version = 2
	second.Tags = []string{"renamed"}
	count, err := store.UpsertEntries(ctx, []ofdb.Entry{second})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	total, err := store.CountEntries(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total, "re-syncing the same entry must not duplicate it")

	got, err := store.GetEntry(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "new title", got.Title)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, []string{"renamed"}, got.Tags)
}

func TestUpsertEntriesDeduplicatesInput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []ofdb.Entry{
		testEntry("e1", "first wins"),
		testEntry("e1", "late duplicate"),
	}
	count, err := store.UpsertEntries(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := store.GetEntry(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "first wins", got.Title)
}

func TestUpsertEntriesEmptyBatch(t *testing.T) {
	store := newTestStore(t)

	count, err := store.UpsertEntries(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpsertEntriesNilDB(t *testing.T) {
	t.Parallel()

	ds := &DataStore{}
	_, err := ds.UpsertEntries(context.Background(), []ofdb.Entry{testEntry("e1", "x")})
	assert.Error(t, err)
}

func TestPerRecordAttemptMixesUpdateAndInsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	existing := testEntry("e1", "old")
	_, err := store.UpsertEntries(ctx, []ofdb.Entry{existing})
	require.NoError(t, err)

	updated := NewEntryRecord(&existing)
	updated.Title = "updated"
	fresh := testEntry("e2", "fresh")
	records := []EntryRecord{updated, NewEntryRecord(&fresh)}

	written, connBroken := store.perRecordAttempt(ctx, records)
	assert.Equal(t, 2, written)
	assert.False(t, connBroken)

	got, err := store.GetEntry(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Title)

	total, err := store.CountEntries(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestPerRecordAttemptSkipsViolatingRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Force a constraint failure for one record without touching the
	// model: a unique index on title makes the second insert collide.
	require.NoError(t, store.DB.Exec("CREATE UNIQUE INDEX idx_entries_title ON entries(title)").Error)

	first := testEntry("e1", "same title")
	second := testEntry("e2", "same title")
	records := []EntryRecord{NewEntryRecord(&first), NewEntryRecord(&second)}

	written, connBroken := store.perRecordAttempt(ctx, records)
	assert.Equal(t, 1, written)
	assert.False(t, connBroken)

	total, err := store.CountEntries(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestGuardedSerialAttemptWritesAllRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	existing := testEntry("e1", "old")
	_, err := store.UpsertEntries(ctx, []ofdb.Entry{existing})
	require.NoError(t, err)

	updated := NewEntryRecord(&existing)
	updated.Title = "guarded update"
	fresh := testEntry("e2", "guarded insert")
	records := []EntryRecord{updated, NewEntryRecord(&fresh)}

	written := store.guardedSerialAttempt(ctx, records)
	assert.Equal(t, 2, written)

	got, err := store.GetEntry(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "guarded update", got.Title)
}

func TestGetEntryNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetEntry(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestEntriesInBoundingBox(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	berlin := testEntry("berlin", "inside")
	hamburg := testEntry("hamburg", "outside")
	hamburg.Lat, hamburg.Lng = 53.55, 9.99
	_, err := store.UpsertEntries(ctx, []ofdb.Entry{berlin, hamburg})
	require.NoError(t, err)

	inside, err := store.EntriesInBoundingBox(ctx, 52.0, 13.0, 53.0, 14.0, time.Time{})
	require.NoError(t, err)
	require.Len(t, inside, 1)
	assert.Equal(t, "berlin", inside[0].ID)

	stale, err := store.EntriesInBoundingBox(ctx, 52.0, 13.0, 53.0, 14.0, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale, "nothing changed after a future cutoff")
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestStringListRoundTrip(t *testing.T) {
	t.Parallel()

	original := StringList{"a", "b"}
	value, err := original.Value()
	require.NoError(t, err)

	var decoded StringList
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, original, decoded)

	var empty StringList
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)
}

func testSubscription(email string) *SubscriptionRecord {
	return &SubscriptionRecord{
		Title:            "Berlin Mitte",
		Email:            email,
		LatMin:           52.4,
		LonMin:           13.3,
		LatMax:           52.6,
		LonMax:           13.5,
		Interval:         "weekly",
		SubscriptionType: "creation",
		Language:         "en",
	}
}

func TestCreateSubscriptionAssignsID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sub := testSubscription("a@example.org")
	require.NoError(t, store.CreateSubscription(ctx, sub))
	require.NotEmpty(t, sub.ID)

	got, err := store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.org", got.Email)
	assert.False(t, got.IsActive, "new subscriptions start inactive")
}

func TestCreateSubscriptionRejectsDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSubscription(ctx, testSubscription("a@example.org")))

	err := store.CreateSubscription(ctx, testSubscription("a@example.org"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))
}

func TestCreateSubscriptionAllowsDifferentInterval(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSubscription(ctx, testSubscription("a@example.org")))

	other := testSubscription("a@example.org")
	other.Interval = "daily"
	assert.NoError(t, store.CreateSubscription(ctx, other))
}

func TestListSubscriptionsByEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSubscription(ctx, testSubscription("a@example.org")))
	require.NoError(t, store.CreateSubscription(ctx, testSubscription("b@example.org")))

	subs, err := store.ListSubscriptions(ctx, "a@example.org")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "a@example.org", subs[0].Email)
}

func TestListActiveSubscriptionsFiltersByInterval(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	weekly := testSubscription("a@example.org")
	require.NoError(t, store.CreateSubscription(ctx, weekly))
	require.NoError(t, store.SetSubscriptionActive(ctx, weekly.ID, true))

	daily := testSubscription("b@example.org")
	daily.Interval = "daily"
	require.NoError(t, store.CreateSubscription(ctx, daily))
	require.NoError(t, store.SetSubscriptionActive(ctx, daily.ID, true))

	inactive := testSubscription("c@example.org")
	require.NoError(t, store.CreateSubscription(ctx, inactive))

	subs, err := store.ListActiveSubscriptions(ctx, "weekly")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, weekly.ID, subs[0].ID)

	all, err := store.ListActiveSubscriptions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSetSubscriptionActiveNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.SetSubscriptionActive(context.Background(), "missing", true)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteSubscription(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sub := testSubscription("a@example.org")
	require.NoError(t, store.CreateSubscription(ctx, sub))
	require.NoError(t, store.DeleteSubscription(ctx, sub.ID))

	_, err := store.GetSubscription(ctx, sub.ID)
	assert.True(t, errors.IsNotFound(err))

	err = store.DeleteSubscription(ctx, sub.ID)
	assert.True(t, errors.IsNotFound(err))
}
