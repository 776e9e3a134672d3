package ofdb

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/kartevonmorgen/kvmsync/internal/geo"
)

// SearchParams is one search request: a bounding box plus optional filters.
// It is a value object; equality is structural.
type SearchParams struct {
	BBox       geo.BoundingBox
	OrgTag     string
	Categories string
	Text       string
	IDs        string
	Tags       string
	Status     string
	Limit      int
}

// Encode serializes the params to a query string. Unset optional fields are
// omitted entirely.
func (p *SearchParams) Encode() string {
	values := url.Values{}
	values.Set("bbox", p.BBox.String())
	if p.OrgTag != "" {
		values.Set("org_tag", p.OrgTag)
	}
	if p.Categories != "" {
		values.Set("categories", p.Categories)
	}
	if p.Text != "" {
		values.Set("text", p.Text)
	}
	if p.IDs != "" {
		values.Set("ids", p.IDs)
	}
	if p.Tags != "" {
		values.Set("tags", p.Tags)
	}
	if p.Status != "" {
		values.Set("status", p.Status)
	}
	if p.Limit > 0 {
		values.Set("limit", strconv.Itoa(p.Limit))
	}
	return values.Encode()
}

// Search issues one search request per params entry and streams the results
// in completion order. A failed or undecodable request yields an empty
// SearchResult for that cell instead of aborting the stream.
//
// The correspondence between input position and output position is not
// preserved and no cell identity is carried with a result; a caller that must
// attribute results back to geography has to encode that in the params (for
// example via the ids filter).
func (c *Client) Search(ctx context.Context, params []SearchParams) <-chan SearchResult {
	urls := make([]string, len(params))
	for i := range params {
		urls[i] = fmt.Sprintf("%s/search?%s", c.baseURL, params[i].Encode())
	}

	fetcher := c.newFetcher()
	outcomes := fetcher.FetchStream(ctx, urls)

	out := make(chan SearchResult, len(urls))
	go func() {
		defer close(out)
		defer fetcher.Close()
		for outcome := range outcomes {
			var result SearchResult
			if err := outcome.Decode(&result); err != nil {
				logger.Error("search request failed", "url", outcome.URL, "error", err)
				out <- SearchResult{}
				continue
			}
			out <- result
		}
	}()
	return out
}
