package ofdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/geo"
)

// newTestClient builds a client pointed at the given server with retries
// disabled so failure paths do not slow the suite down.
func newTestClient(srv *httptest.Server, chunkSize int) *Client {
	return NewClient(&conf.OFDBSettings{
		URL:         srv.URL,
		Limit:       100,
		MaxRetries:  1,
		Concurrency: 4,
		Timeout:     5,
		ChunkSize:   chunkSize,
	})
}

func TestSearchParamsEncodeOmitsUnsetFields(t *testing.T) {
	t.Parallel()

	params := SearchParams{
		BBox: geo.BoundingBox{LatMin: 52.4, LngMin: 13.3, LatMax: 52.5, LngMax: 13.4},
	}

	encoded := params.Encode()

	assert.Equal(t, "bbox=52.4%2C13.3%2C52.5%2C13.4", encoded)
	assert.NotContains(t, encoded, "org_tag")
	assert.NotContains(t, encoded, "text")
	assert.NotContains(t, encoded, "limit")
}

func TestSearchParamsEncodeIncludesSetFields(t *testing.T) {
	t.Parallel()

	params := SearchParams{
		BBox:   geo.BoundingBox{LatMin: 1, LngMin: 2, LatMax: 3, LngMax: 4},
		OrgTag: "kvm",
		Tags:   "organic,fair",
		Limit:  50,
	}

	encoded := params.Encode()

	assert.Contains(t, encoded, "bbox=1%2C2%2C3%2C4")
	assert.Contains(t, encoded, "org_tag=kvm")
	assert.Contains(t, encoded, "tags=organic%2Cfair")
	assert.Contains(t, encoded, "limit=50")
}

func TestSearchDeliversOneResultPerRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bbox := r.URL.Query().Get("bbox")
		result := SearchResult{
			Visible: []SearchEntry{{ID: bbox, Title: "entry for " + bbox}},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(result))
	}))
	defer srv.Close()

	client := newTestClient(srv, DefaultChunkSize)
	params := []SearchParams{
		{BBox: geo.BoundingBox{LatMin: 0, LngMin: 0, LatMax: 1, LngMax: 1}},
		{BBox: geo.BoundingBox{LatMin: 1, LngMin: 0, LatMax: 2, LngMax: 1}},
		{BBox: geo.BoundingBox{LatMin: 2, LngMin: 0, LatMax: 3, LngMax: 1}},
	}

	seen := map[string]bool{}
	for result := range client.Search(context.Background(), params) {
		require.Len(t, result.Visible, 1)
		seen[result.Visible[0].ID] = true
	}

	// every cell answered exactly once, in whatever order it completed
	assert.Len(t, seen, 3)
	for i := range params {
		assert.True(t, seen[params[i].BBox.String()], "missing result for cell %d", i)
	}
}

func TestSearchFailedRequestYieldsEmptyResult(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Query().Get("bbox"), "1,") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		result := SearchResult{Visible: []SearchEntry{{ID: "ok"}}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(result))
	}))
	defer srv.Close()

	client := newTestClient(srv, DefaultChunkSize)
	params := []SearchParams{
		{BBox: geo.BoundingBox{LatMin: 0, LngMin: 0, LatMax: 1, LngMax: 1}},
		{BBox: geo.BoundingBox{LatMin: 1, LngMin: 0, LatMax: 2, LngMax: 1}},
	}

	var total, empty int
	for result := range client.Search(context.Background(), params) {
		total++
		if len(result.Visible) == 0 {
			empty++
		}
	}

	assert.Equal(t, 2, total, "a failed request must still produce a result")
	assert.Equal(t, 1, empty)
}

func TestSearchUndecodableBodyYieldsEmptyResult(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer srv.Close()

	client := newTestClient(srv, DefaultChunkSize)
	results := client.Search(context.Background(), []SearchParams{{}})

	result, ok := <-results
	require.True(t, ok)
	assert.Empty(t, result.Visible)
	assert.Empty(t, result.Invisible)

	_, ok = <-results
	assert.False(t, ok, "stream must close after the last result")
}

func TestGetEntriesChunksCommaJoinedIDs(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := strings.TrimPrefix(r.URL.Path, "/entries/")
		mu.Lock()
		requested = append(requested, ids)
		mu.Unlock()

		entries := make([]Entry, 0, 3)
		for _, id := range strings.Split(ids, ",") {
			entries = append(entries, Entry{ID: id, Title: "t-" + id, License: "CC0-1.0"})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(entries))
	}))
	defer srv.Close()

	client := newTestClient(srv, 3)
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}

	var fetched []Entry
	for batch := range client.GetEntries(context.Background(), ids) {
		fetched = append(fetched, batch...)
	}

	require.Len(t, fetched, len(ids))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requested, 3, "7 ids at chunk size 3 means 3 requests")
	assert.ElementsMatch(t, []string{"a,b,c", "d,e,f", "g"}, requested)
}

func TestGetEntriesEmptyInputMakesNoRequests(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for empty id list")
	}))
	defer srv.Close()

	client := newTestClient(srv, 3)

	var batches int
	for range client.GetEntries(context.Background(), nil) {
		batches++
	}
	assert.Zero(t, batches)
}

func TestGetEntriesFailedChunkYieldsEmptyBatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := strings.TrimPrefix(r.URL.Path, "/entries/")
		if strings.Contains(ids, "bad") {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		entries := []Entry{{ID: ids, License: "CC0-1.0"}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(entries))
	}))
	defer srv.Close()

	client := newTestClient(srv, 1)

	var good, empty int
	for batch := range client.GetEntries(context.Background(), []string{"a", "bad", "c"}) {
		if len(batch) == 0 {
			empty++
		} else {
			good += len(batch)
		}
	}

	assert.Equal(t, 2, good)
	assert.Equal(t, 1, empty, "the failed chunk yields an empty batch, not an aborted stream")
}

func TestGetEntriesMissingIDFailsWholeBatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		entries := []Entry{{ID: "a"}, {Title: "no id here"}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(entries))
	}))
	defer srv.Close()

	client := newTestClient(srv, 10)

	batch, ok := <-client.GetEntries(context.Background(), []string{"a", "b"})
	require.True(t, ok)
	assert.Empty(t, batch, "one record without an id poisons the whole chunk")
}

func TestGetRecentEntriesOmitsZeroWindow(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "/entries/recently-changed", r.URL.Path)
		assert.False(t, query.Has("since"))
		assert.False(t, query.Has("until"))
		assert.Equal(t, "true", query.Get("with_ratings"))
		assert.Equal(t, "25", query.Get("limit"))
		assert.Equal(t, "0", query.Get("offset"))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode([]Entry{{ID: "r1"}}))
	}))
	defer srv.Close()

	client := newTestClient(srv, DefaultChunkSize)
	entries := client.GetRecentEntries(context.Background(), &RecentQuery{WithRatings: true, Limit: 25})

	require.Len(t, entries, 1)
	assert.Equal(t, "r1", entries[0].ID)
}

func TestGetRecentEntriesSendsWindowAndDeduplicates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "1700000000", query.Get("since"))
		assert.Equal(t, "1700003600", query.Get("until"))
		entries := []Entry{
			{ID: "dup", Title: "first"},
			{ID: "other"},
			{ID: "dup", Title: "second"},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(entries))
	}))
	defer srv.Close()

	client := newTestClient(srv, DefaultChunkSize)
	entries := client.GetRecentEntries(context.Background(), &RecentQuery{
		Since: 1700000000,
		Until: 1700003600,
		Limit: 10,
	})

	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Title, "first occurrence wins")
	assert.Equal(t, "other", entries[1].ID)
}

func TestGetRecentEntriesFetchFailureReturnsNil(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(srv, DefaultChunkSize)
	entries := client.GetRecentEntries(context.Background(), &RecentQuery{Limit: 10})
	assert.Nil(t, entries)
}

func TestDeduplicateByIDKeepsFirstOccurrence(t *testing.T) {
	t.Parallel()

	entries := []Entry{
		{ID: "a", Version: 1},
		{ID: "b"},
		{ID: "a", Version: 2},
		{ID: "c"},
		{ID: "b", Version: 9},
	}

	unique := DeduplicateByID(entries)

	require.Len(t, unique, 3)
	assert.Equal(t, "a", unique[0].ID)
	assert.Equal(t, 1, unique[0].Version)
	assert.Equal(t, "b", unique[1].ID)
	assert.Equal(t, 0, unique[1].Version)
	assert.Equal(t, "c", unique[2].ID)
}

func TestDecodeEntriesRejectsNonArrayPayload(t *testing.T) {
	t.Parallel()

	_, err := decodeEntries(json.RawMessage(`{"visible":[]}`))
	assert.Error(t, err)
}
