// Package flows wires the grid planner, the directory client and the local
// store into the sync pipelines of the service. Each flow is a plain
// function of its inputs; scheduling lives elsewhere.
package flows

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/datastore"
	"github.com/kartevonmorgen/kvmsync/internal/geo"
	"github.com/kartevonmorgen/kvmsync/internal/logging"
	"github.com/kartevonmorgen/kvmsync/internal/observability"
	"github.com/kartevonmorgen/kvmsync/internal/ofdb"
)

// Package-level logger specific to sync flows
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
)

func init() {
	var err error
	initialLevel := slog.LevelInfo
	serviceLevelVar.Set(initialLevel)

	logger, _, err = logging.NewFileLogger("logs/flows.log", "flows", serviceLevelVar)
	if err != nil || logger == nil {
		// Fallback to a disabled handler to prevent nil panics, but respects the level var
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "flows")
	}
}

// Summary aggregates the results of one full sync run across all areas.
type Summary struct {
	TotalUpserted     int
	MaxVisiblePerCell int
	SuccessfulAreas   int
	FailedAreas       int
	Elapsed           time.Duration
}

// Orchestrator runs the sync pipelines against one store.
type Orchestrator struct {
	settings *conf.Settings
	store    datastore.Interface
	metrics  *observability.Metrics
}

// NewOrchestrator creates an orchestrator for the given settings and store.
func NewOrchestrator(settings *conf.Settings, store datastore.Interface) *Orchestrator {
	return &Orchestrator{settings: settings, store: store}
}

// SetMetrics attaches the application metrics. Safe to leave unset.
func (o *Orchestrator) SetMetrics(m *observability.Metrics) {
	o.metrics = m
	if m != nil {
		o.store.SetMetrics(m.Sync)
	}
}

// areaResult carries one area's outcome back to the aggregation loop.
type areaResult struct {
	area       string
	upserted   int
	maxVisible int
	err        error
}

// SyncAll fetches every configured area from the directory and reconciles
// the results into the store. Areas run concurrently and fail
// independently: an area whose pipeline errors or panics is logged and
// excluded from the aggregate, never aborting its siblings. A run that
// writes zero entries is a valid outcome.
func (o *Orchestrator) SyncAll(ctx context.Context) Summary {
	start := time.Now()
	areas := o.settings.Areas

	results := make(chan areaResult, len(areas))
	var wg sync.WaitGroup
	for i := range areas {
		area := &areas[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results <- areaResult{area: area.Name, err: fmt.Errorf("panic: %v", r)}
				}
			}()
			upserted, maxVisible, err := o.processArea(ctx, area)
			results <- areaResult{area: area.Name, upserted: upserted, maxVisible: maxVisible, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var summary Summary
	for res := range results {
		if res.err != nil {
			summary.FailedAreas++
			logger.Error("Area sync failed", "area", res.area, "error", res.err)
			if o.metrics != nil {
				o.metrics.Sync.RecordAreaSync(res.area, "error")
			}
			continue
		}
		summary.SuccessfulAreas++
		summary.TotalUpserted += res.upserted
		summary.MaxVisiblePerCell = max(summary.MaxVisiblePerCell, res.maxVisible)
		if o.metrics != nil {
			o.metrics.Sync.RecordAreaSync(res.area, "success")
			o.metrics.Sync.UpdateCellVisibleMax(res.area, res.maxVisible)
		}
	}
	summary.Elapsed = time.Since(start)

	logger.Info("Full sync completed",
		"total_upserted", summary.TotalUpserted,
		"successful_areas", summary.SuccessfulAreas,
		"failed_areas", summary.FailedAreas,
		"max_visible_per_cell", summary.MaxVisiblePerCell,
		"elapsed", summary.Elapsed)
	return summary
}

// processArea runs the full pipeline for one area: plan the grid, search
// every cell, fetch details for each cell's visible IDs, reconcile. Cell
// level failures degrade the yield and are logged; only a store that cannot
// accept any writes fails the area.
func (o *Orchestrator) processArea(ctx context.Context, area *conf.AreaSettings) (upserted, maxVisible int, err error) {
	areaStart := time.Now()
	logger.Info("Fetching entries for area", "area", area.Name)

	cells := geo.Grid(area)
	params := make([]ofdb.SearchParams, 0, len(cells))
	for _, cell := range cells {
		params = append(params, ofdb.SearchParams{BBox: cell})
	}

	// Separate clients per stage so search and detail fetch each get their
	// own concurrency budget.
	searchClient := o.newClient()
	detailClient := o.newClient()

	for result := range searchClient.Search(ctx, params) {
		if len(result.Visible) == 0 {
			continue
		}
		maxVisible = max(maxVisible, len(result.Visible))
		if o.metrics != nil {
			o.metrics.Sync.RecordEntriesSeen(area.Name, len(result.Visible))
		}

		ids := make([]string, 0, len(result.Visible))
		for _, e := range result.Visible {
			ids = append(ids, e.ID)
		}

		for batch := range detailClient.GetEntries(ctx, ids) {
			if len(batch) == 0 {
				logger.Debug("No entries decoded for cell batch", "area", area.Name)
				continue
			}
			count, upsertErr := o.store.UpsertEntries(ctx, batch)
			if upsertErr != nil {
				logger.Error("Upsert failed for cell batch",
					"area", area.Name, "batch_size", len(batch), "error", upsertErr)
				continue
			}
			upserted += count
			logger.Debug("Upserted entries for cell batch",
				"area", area.Name, "count", count)
		}

		if ctx.Err() != nil {
			return upserted, maxVisible, ctx.Err()
		}
	}

	if o.metrics != nil {
		o.metrics.Sync.RecordAreaSyncDuration(area.Name, time.Since(areaStart).Seconds())
	}
	logger.Info("Completed area", "area", area.Name, "upserted", upserted,
		"elapsed", time.Since(areaStart))
	return upserted, maxVisible, nil
}

func (o *Orchestrator) newClient() *ofdb.Client {
	client := ofdb.NewClient(&o.settings.OFDB)
	if o.metrics != nil {
		client.SetMetrics(o.metrics.Sync)
	}
	return client
}
