package ofdb

import (
	"context"
	"fmt"
	"strings"
)

// DefaultChunkSize is the maximum number of entry IDs per detail request.
const DefaultChunkSize = 100

// GetEntries fetches full entry bodies for the given IDs in chunks of the
// client's chunk size (IDs comma-joined into one request per chunk) and
// streams one decoded batch per chunk in completion order. A chunk whose
// request fails or whose payload does not decode yields an empty batch; the
// remaining chunks are unaffected.
func (c *Client) GetEntries(ctx context.Context, entryIDs []string) <-chan []Entry {
	urls := make([]string, 0, (len(entryIDs)+c.chunkSize-1)/c.chunkSize)
	for beg := 0; beg < len(entryIDs); beg += c.chunkSize {
		end := min(beg+c.chunkSize, len(entryIDs))
		urls = append(urls, fmt.Sprintf("%s/entries/%s", c.baseURL, strings.Join(entryIDs[beg:end], ",")))
	}

	fetcher := c.newFetcher()
	outcomes := fetcher.FetchStream(ctx, urls)

	out := make(chan []Entry, len(urls))
	go func() {
		defer close(out)
		defer fetcher.Close()
		for outcome := range outcomes {
			if !outcome.OK() {
				logger.Error("entry fetch failed", "url", outcome.URL, "error", outcome.Err)
				out <- nil
				continue
			}
			entries, err := decodeEntries(outcome.Value)
			if err != nil {
				logger.Error("entry batch decode failed", "url", outcome.URL, "error", err)
				out <- nil
				continue
			}
			out <- entries
		}
	}()
	return out
}
