// Package serve implements the long-running service command: scheduled
// syncs, digest mails and the subscription HTTP API.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kartevonmorgen/kvmsync/internal/api"
	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/runtime"
	"github.com/kartevonmorgen/kvmsync/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

// Command creates the command running the service until interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync service",
		Long: "Run the scheduled sync jobs, the digest mailer and, when " +
			"enabled, the subscription HTTP API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(settings)
		},
	}
	return cmd
}

func runService(settings *conf.Settings) error {
	rt, err := runtime.Build(settings)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	sched := scheduler.New()
	registerJobs(sched, rt)
	sched.Start()
	defer sched.Stop()

	var server *api.Server
	errCh := make(chan error, 1)
	if settings.WebServer.Enabled {
		server = api.New(settings, rt.Store, rt.Sender, rt.Metrics)
		go func() {
			errCh <- server.Start()
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("Received %s, shutting down\n", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("web server failed: %w", err)
		}
	}

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

// registerJobs wires the enabled schedules into the scheduler.
func registerJobs(sched *scheduler.Scheduler, rt *runtime.Context) {
	schedules := rt.Settings.Schedules

	if schedules.FullSync.Enabled {
		sched.AddJob("full-sync", time.Duration(schedules.FullSync.Interval)*time.Minute,
			func(ctx context.Context) error {
				rt.Orchestrator.SyncAll(ctx)
				return nil
			})
	}
	if schedules.RecentSync.Enabled {
		sched.AddJob("recent-sync", time.Duration(schedules.RecentSync.Interval)*time.Minute,
			func(ctx context.Context) error {
				_, err := rt.Orchestrator.SyncRecent(ctx)
				return err
			})
	}

	digests := []struct {
		name     string
		schedule conf.ScheduleConfig
		interval string
	}{
		{"daily-digest", schedules.DailyDigest, "daily"},
		{"weekly-digest", schedules.WeeklyDigest, "weekly"},
		{"monthly-digest", schedules.MonthlyDigest, "monthly"},
	}
	for _, d := range digests {
		if !d.schedule.Enabled {
			continue
		}
		interval := d.interval
		sched.AddJob(d.name, time.Duration(d.schedule.Interval)*time.Minute,
			func(ctx context.Context) error {
				_, err := rt.Orchestrator.SendDigests(ctx, rt.Sender, interval)
				return err
			})
	}
}
