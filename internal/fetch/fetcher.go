// Package fetch implements the bounded-concurrency bulk HTTP fetch engine the
// sync pipeline is built on. A Fetcher issues GET requests through a shared
// pooled client, bounds simultaneous requests with a weighted semaphore, and
// retries failed attempts with a delay that scales linearly with the attempt
// number. Failures are returned as Outcome values, never as faults.
package fetch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/errors"
	"github.com/kartevonmorgen/kvmsync/internal/httpclient"
	"github.com/kartevonmorgen/kvmsync/internal/logging"
)

// Package-level logger specific to the fetch engine
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
)

func init() {
	var err error
	initialLevel := slog.LevelInfo
	serviceLevelVar.Set(initialLevel)

	logger, _, err = logging.NewFileLogger("logs/fetch.log", "fetch", serviceLevelVar)
	if err != nil || logger == nil {
		// Fallback to a disabled handler to prevent nil panics, but respects the level var
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "fetch")
	}
}

// MetricsRecorder receives fetch events. Implemented by
// observability/metrics.SyncMetrics; a nil recorder disables instrumentation.
type MetricsRecorder interface {
	RecordFetchAttempt(status string)
	RecordFetchRetry()
	RecordFetchDuration(seconds float64)
}

// Config holds the tunables of one Fetcher instance.
type Config struct {
	// MaxRetries is the total number of attempts per URL before the last
	// error becomes the outcome.
	MaxRetries int

	// RetryDelay is the base delay between attempts. The delay after the
	// k-th failed attempt is RetryDelay*k, so waits grow linearly over the
	// retry budget.
	RetryDelay time.Duration

	// Concurrency bounds simultaneous in-flight requests issued through
	// this instance.
	Concurrency int

	// Timeout bounds each individual attempt. There is no overall deadline
	// across retries.
	Timeout time.Duration
}

// ConfigFromSettings derives a fetcher config from the OFDB settings block.
func ConfigFromSettings(ofdb *conf.OFDBSettings) Config {
	return Config{
		MaxRetries:  ofdb.MaxRetries,
		RetryDelay:  time.Duration(ofdb.RetryDelay) * time.Second,
		Concurrency: ofdb.Concurrency,
		Timeout:     time.Duration(ofdb.Timeout) * time.Second,
	}
}

// Fetcher is a bounded-concurrency bulk GET engine. Each instance owns one
// admission gate; separate instances have independent concurrency budgets.
// Safe for concurrent use.
type Fetcher struct {
	cfg     Config
	gate    *semaphore.Weighted
	metrics MetricsRecorder

	clientOnce sync.Once
	client     *httpclient.Client
}

// New creates a Fetcher. Zero or negative config values fall back to safe
// minimums so a partially filled config cannot disable retries or concurrency.
func New(cfg Config) *Fetcher {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Fetcher{
		cfg:  cfg,
		gate: semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

// SetMetrics attaches a metrics recorder. Must be called before the first
// fetch; a nil recorder is allowed.
func (f *Fetcher) SetMetrics(m MetricsRecorder) {
	f.metrics = m
}

// httpClient lazily creates the underlying pooled client on first use.
func (f *Fetcher) httpClient() *httpclient.Client {
	f.clientOnce.Do(func() {
		cfg := httpclient.Config{DefaultTimeout: f.cfg.Timeout}
		f.client = httpclient.New(&cfg)
	})
	return f.client
}

// Close releases the pooled connections. Requests already dispatched may
// still complete in the background.
func (f *Fetcher) Close() {
	if f.client != nil {
		f.client.Close()
	}
}

// FetchOne performs a GET with retries and returns the result as an Outcome.
// Transport errors and non-2xx statuses are retried identically up to
// MaxRetries attempts; the delay before attempt k+1 is RetryDelay*k. After
// exhausting retries the last error becomes the outcome. A JSON response body
// is returned as-is; any other content type is wrapped as {"text": body}.
func (f *Fetcher) FetchOne(ctx context.Context, url string) Outcome {
	start := time.Now()
	client := f.httpClient()

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		value, err := f.attempt(ctx, client, url)
		if err == nil {
			if f.metrics != nil {
				f.metrics.RecordFetchAttempt("success")
				f.metrics.RecordFetchDuration(time.Since(start).Seconds())
			}
			logger.Debug("fetch completed", "url", url, "attempts", attempt, "duration_ms", time.Since(start).Milliseconds())
			return Outcome{URL: url, Value: value}
		}
		lastErr = err
		if f.metrics != nil {
			f.metrics.RecordFetchAttempt("error")
		}
		logger.Warn("fetch attempt failed", "url", url, "attempt", attempt, "max_retries", f.cfg.MaxRetries, "error", err)

		if attempt == f.cfg.MaxRetries {
			break
		}
		if f.metrics != nil {
			f.metrics.RecordFetchRetry()
		}

		// Linear backoff: the wait grows with the attempt number.
		delay := f.cfg.RetryDelay * time.Duration(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			logger.Warn("fetch abandoned, context done", "url", url, "attempt", attempt)
			return Outcome{URL: url, Err: ctx.Err()}
		}
	}

	if f.metrics != nil {
		f.metrics.RecordFetchDuration(time.Since(start).Seconds())
	}
	logger.Warn("fetch failed after all retries", "url", url, "attempts", f.cfg.MaxRetries, "duration_ms", time.Since(start).Milliseconds())
	return Outcome{URL: url, Err: lastErr}
}

// attempt performs one GET and normalizes the response into a JSON value.
func (f *Fetcher) attempt(ctx context.Context, client *httpclient.Client, url string) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	resp, err := client.Get(attemptCtx, url)
	if err != nil {
		return nil, errors.New(err).
			Component("fetch").
			Category(errors.CategoryNetwork).
			Context("url", url).
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(err).
			Component("fetch").
			Category(errors.CategoryNetwork).
			Context("url", url).
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New(&StatusError{Code: resp.StatusCode, URL: url}).
			Component("fetch").
			Category(errors.CategoryHTTP).
			Context("status_code", resp.StatusCode).
			Context("url", url).
			Build()
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(strings.ToLower(contentType), "application/json") {
		return json.RawMessage(body), nil
	}

	// Non-JSON responses are wrapped so every outcome value is JSON.
	wrapped, err := json.Marshal(textBody{Text: string(body)})
	if err != nil {
		return nil, errors.New(err).
			Component("fetch").
			Category(errors.CategoryDecode).
			Context("url", url).
			Build()
	}
	return wrapped, nil
}

// FetchAll fetches every URL and returns one outcome per URL in input order.
// Concurrency is bounded by the instance's admission gate. It returns once
// every URL has resolved; an empty input returns an empty slice without
// issuing any request.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Outcome {
	results := make([]Outcome, len(urls))
	if len(urls) == 0 {
		return results
	}

	start := time.Now()
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			results[i] = f.fetchGated(ctx, url)
		}(i, url)
	}
	wg.Wait()

	logger.Debug("bulk fetch completed", "urls", len(urls), "duration_ms", time.Since(start).Milliseconds())
	return results
}

// FetchStream fetches every URL and delivers outcomes in completion order on
// the returned channel. All URLs are always scheduled; the channel is
// buffered to the input size so a consumer that stops reading early leaves
// in-flight requests to finish in the background without blocking. The
// channel is closed after the last outcome. Input order is not preserved and
// no correlation between input position and output position is carried.
func (f *Fetcher) FetchStream(ctx context.Context, urls []string) <-chan Outcome {
	out := make(chan Outcome, len(urls))
	if len(urls) == 0 {
		close(out)
		return out
	}

	var wg sync.WaitGroup
	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			out <- f.fetchGated(ctx, url)
		}(url)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// FetchBatched partitions urls into consecutive batches of batchSize (default
// 2*Concurrency when batchSize <= 0), runs FetchAll per batch sequentially,
// and yields each batch's outcomes in input order before starting the next
// batch. This bounds peak scheduling for very large input sets.
func (f *Fetcher) FetchBatched(ctx context.Context, urls []string, batchSize int) <-chan Outcome {
	if batchSize <= 0 {
		batchSize = 2 * f.cfg.Concurrency
	}

	out := make(chan Outcome, len(urls))
	go func() {
		defer close(out)
		for beg := 0; beg < len(urls); beg += batchSize {
			end := min(beg+batchSize, len(urls))
			for _, outcome := range f.FetchAll(ctx, urls[beg:end]) {
				out <- outcome
			}
		}
	}()
	return out
}

// fetchGated runs one fetch under the admission gate.
func (f *Fetcher) fetchGated(ctx context.Context, url string) Outcome {
	// Acquire can only fail when the context is done; surface that as an
	// error outcome like any other failure.
	if err := f.gate.Acquire(ctx, 1); err != nil {
		return Outcome{URL: url, Err: err}
	}
	defer f.gate.Release(1)
	return f.FetchOne(ctx, url)
}
