// Package runtime builds and owns the long-lived collaborators of the
// service: the store, the metrics registry, the mailer and the sync
// orchestrator. Commands construct one Context at startup and close it on
// exit.
package runtime

import (
	"fmt"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/datastore"
	"github.com/kartevonmorgen/kvmsync/internal/flows"
	"github.com/kartevonmorgen/kvmsync/internal/mail"
	"github.com/kartevonmorgen/kvmsync/internal/observability"
)

// Build metadata injected at link time.
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// Context holds the wired collaborators for one process lifetime.
type Context struct {
	Settings     *conf.Settings
	Store        datastore.Interface
	Metrics      *observability.Metrics
	Orchestrator *flows.Orchestrator
	Sender       *mail.Sender
}

// Build validates the settings, opens the store and wires everything
// together.
func Build(settings *conf.Settings) (*Context, error) {
	if err := conf.ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store := datastore.New(settings)
	if store == nil {
		return nil, fmt.Errorf("no entry store enabled in configuration")
	}
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("failed to open entry store: %w", err)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	orchestrator := flows.NewOrchestrator(settings, store)
	orchestrator.SetMetrics(metrics)

	sender := mail.NewSender(&settings.Email)
	sender.SetMetrics(metrics.Mail)

	return &Context{
		Settings:     settings,
		Store:        store,
		Metrics:      metrics,
		Orchestrator: orchestrator,
		Sender:       sender,
	}, nil
}

// Close releases the store and the mailer.
func (c *Context) Close() error {
	c.Sender.Close()
	return c.Store.Close()
}
