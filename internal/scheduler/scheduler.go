// Package scheduler runs the recurring jobs of the service on fixed
// intervals. A job that is still running when its next tick arrives is
// skipped for that tick, and a panicking job never takes the scheduler
// down.
package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kartevonmorgen/kvmsync/internal/logging"
)

// Package-level logger specific to the scheduler
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
)

func init() {
	var err error
	initialLevel := slog.LevelInfo
	serviceLevelVar.Set(initialLevel)

	logger, _, err = logging.NewFileLogger("logs/scheduler.log", "scheduler", serviceLevelVar)
	if err != nil || logger == nil {
		// Fallback to a disabled handler to prevent nil panics, but respects the level var
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "scheduler")
	}
}

// JobFunc is the work one scheduled job performs.
type JobFunc func(ctx context.Context) error

// job is one registered recurring task.
type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
	running  atomic.Bool
}

// Scheduler manages recurring jobs and their execution.
type Scheduler struct {
	jobs      []*job
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// AddJob registers a recurring job. Must be called before Start.
func (s *Scheduler) AddJob(name string, interval time.Duration, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, interval: interval, fn: fn})
}

// Start begins running all registered jobs. Each job gets its own ticker
// goroutine; the first run happens after one full interval, not at start.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.isRunning = true

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.run(ctx, j)
	}
	logger.Info("Scheduler started", "jobs", len(s.jobs))
}

// Stop cancels all job loops and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.isRunning = false
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("Scheduler stopped")
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// run is the per-job ticker loop.
func (s *Scheduler) run(ctx context.Context, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJob(ctx, j)
		}
	}
}

// runJob executes one job run, skipping the tick if the previous run is
// still in flight and containing any panic.
func (s *Scheduler) runJob(ctx context.Context, j *job) {
	if !j.running.CompareAndSwap(false, true) {
		logger.Warn("Previous run still in progress, skipping tick", "job", j.name)
		return
	}
	defer j.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", j.name, "panic", r)
		}
	}()

	start := time.Now()
	logger.Debug("Running job", "job", j.name)
	if err := j.fn(ctx); err != nil {
		logger.Error("Job failed", "job", j.name, "error", err, "elapsed", time.Since(start))
		return
	}
	logger.Debug("Job completed", "job", j.name, "elapsed", time.Since(start))
}
