package ofdb

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// RecentQuery selects a window of the recently-changed feed. Zero Since/Until
// are omitted from the request.
type RecentQuery struct {
	Since       int64 // unix seconds, inclusive lower bound
	Until       int64 // unix seconds, exclusive upper bound
	WithRatings bool
	Limit       int
	Offset      int
}

// GetRecentEntries fetches recently changed entries. A fetch or decode
// failure returns an empty slice; this feed is advisory and the next run
// catches up. The result is deduplicated by ID keeping the first occurrence.
func (c *Client) GetRecentEntries(ctx context.Context, q *RecentQuery) []Entry {
	limit := q.Limit
	if limit <= 0 {
		limit = c.limit
	}

	values := url.Values{}
	values.Set("with_ratings", strconv.FormatBool(q.WithRatings))
	values.Set("limit", strconv.Itoa(limit))
	values.Set("offset", strconv.Itoa(q.Offset))
	if q.Since > 0 {
		values.Set("since", strconv.FormatInt(q.Since, 10))
	}
	if q.Until > 0 {
		values.Set("until", strconv.FormatInt(q.Until, 10))
	}

	requestURL := fmt.Sprintf("%s/entries/recently-changed?%s", c.baseURL, values.Encode())
	logger.Info("fetching recent entries", "since", q.Since, "until", q.Until, "limit", limit, "offset", q.Offset)

	fetcher := c.newFetcher()
	defer fetcher.Close()

	outcome := fetcher.FetchOne(ctx, requestURL)
	if !outcome.OK() {
		logger.Error("recent entries fetch failed", "url", requestURL, "error", outcome.Err)
		return nil
	}

	entries, err := decodeEntries(outcome.Value)
	if err != nil {
		logger.Error("recent entries decode failed", "url", requestURL, "error", err)
		return nil
	}

	unique := DeduplicateByID(entries)
	logger.Info("fetched recent entries", "total", len(entries), "unique", len(unique))
	return unique
}
