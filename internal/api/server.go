// Package api exposes the subscription HTTP API and the operational
// endpoints of the service.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	cache "github.com/patrickmn/go-cache"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/datastore"
	"github.com/kartevonmorgen/kvmsync/internal/logging"
	"github.com/kartevonmorgen/kvmsync/internal/mail"
	"github.com/kartevonmorgen/kvmsync/internal/observability"
)

// Package-level logger specific to the web API
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
)

func init() {
	var err error
	initialLevel := slog.LevelInfo
	serviceLevelVar.Set(initialLevel)

	logger, _, err = logging.NewFileLogger("logs/web.log", "web", serviceLevelVar)
	if err != nil || logger == nil {
		// Fallback to a disabled handler to prevent nil panics, but respects the level var
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "web")
	}
}

// activationTokenTTL is how long an activation link stays valid.
const activationTokenTTL = 48 * time.Hour

// Server encapsulates the Echo server and its collaborators.
type Server struct {
	Echo     *echo.Echo
	Store    datastore.Interface
	Settings *conf.Settings
	Sender   *mail.Sender
	Metrics  *observability.Metrics

	// tokens maps activation tokens to subscription IDs.
	tokens *cache.Cache
}

// New initializes the HTTP server with the given store and mailer.
func New(settings *conf.Settings, store datastore.Interface, sender *mail.Sender, m *observability.Metrics) *Server {
	s := &Server{
		Echo:     echo.New(),
		Store:    store,
		Settings: settings,
		Sender:   sender,
		Metrics:  m,
		tokens:   cache.New(activationTokenTTL, time.Hour),
	}

	s.Echo.HideBanner = true
	s.configureMiddleware()
	s.initRoutes()
	return s
}

// configureMiddleware sets up middleware for the server.
func (s *Server) configureMiddleware() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
				logger.Error("Request failed", attrs...)
				return nil
			}
			logger.Info("Request", attrs...)
			return nil
		},
	}))
}

// initRoutes registers all endpoints.
func (s *Server) initRoutes() {
	s.Echo.GET("/healthz", s.handleHealth)
	if s.Metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}

	v1 := s.Echo.Group("/v1")
	v1.POST("/subscriptions", s.handleCreateSubscription)
	v1.GET("/subscriptions", s.handleListSubscriptions)
	v1.GET("/subscriptions/:token/activate", s.handleActivateSubscription)
	v1.GET("/subscriptions/:id/unsubscribe", s.handleUnsubscribe)
	v1.DELETE("/subscriptions/:id", s.handleDeleteSubscription)
}

// Start begins listening and serving HTTP requests. It blocks until the
// server stops.
func (s *Server) Start() error {
	logger.Info("Starting web server", "port", s.Settings.WebServer.Port)
	err := s.Echo.Start(":" + s.Settings.WebServer.Port)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down web server")
	return s.Echo.Shutdown(ctx)
}

// handleHealth reports liveness of the service and its store.
func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  "database unreachable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
