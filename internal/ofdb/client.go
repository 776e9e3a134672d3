// Package ofdb implements the read-only client for the OpenFairDB directory
// API: grid-cell search, batched entry detail fetch, and the recently-changed
// feed. All bulk operations run on the fetch engine and deliver results in
// completion order.
package ofdb

import (
	"io"
	"log/slog"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/fetch"
	"github.com/kartevonmorgen/kvmsync/internal/logging"
)

// Package-level logger specific to the OFDB client
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelInfo)

	logger, _, err = logging.NewFileLogger("logs/ofdb.log", "ofdb", serviceLevelVar)
	if err != nil || logger == nil {
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "ofdb")
	}
}

// Client talks to one OFDB instance. Every bulk operation constructs its own
// Fetcher, so concurrent stages have independent concurrency budgets.
type Client struct {
	baseURL   string
	limit     int
	chunkSize int
	fetchCfg  fetch.Config
	metrics   fetch.MetricsRecorder
}

// NewClient creates an OFDB client from the OFDB settings block.
func NewClient(settings *conf.OFDBSettings) *Client {
	chunkSize := settings.ChunkSize
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	return &Client{
		baseURL:   settings.URL,
		limit:     settings.Limit,
		chunkSize: chunkSize,
		fetchCfg:  fetch.ConfigFromSettings(settings),
	}
}

// SetMetrics attaches a metrics recorder passed on to every fetcher this
// client constructs.
func (c *Client) SetMetrics(m fetch.MetricsRecorder) {
	c.metrics = m
}

// newFetcher constructs a fetcher with this client's tunables.
func (c *Client) newFetcher() *fetch.Fetcher {
	f := fetch.New(c.fetchCfg)
	if c.metrics != nil {
		f.SetMetrics(c.metrics)
	}
	return f
}
