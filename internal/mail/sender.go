// Package mail delivers activation and digest emails through a
// Mailgun-compatible HTTP API. Sends are rate limited and retried with a
// linearly growing delay, mirroring the fetch engine's retry shape.
package mail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/k3a/html2text"
	"golang.org/x/time/rate"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/errors"
	"github.com/kartevonmorgen/kvmsync/internal/httpclient"
	"github.com/kartevonmorgen/kvmsync/internal/logging"
	"github.com/kartevonmorgen/kvmsync/internal/observability/metrics"
)

// Package-level logger specific to mail delivery
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
)

func init() {
	var err error
	initialLevel := slog.LevelInfo
	serviceLevelVar.Set(initialLevel)

	logger, _, err = logging.NewFileLogger("logs/mail.log", "mail", serviceLevelVar)
	if err != nil || logger == nil {
		// Fallback to a disabled handler to prevent nil panics, but respects the level var
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "mail")
	}
}

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Kind labels for metrics and logging.
const (
	KindActivation = "activation"
	KindDigest     = "digest"
)

// Sender delivers messages through the configured mail provider.
type Sender struct {
	settings *conf.EmailSettings
	client   *httpclient.Client
	limiter  *rate.Limiter
	metrics  *metrics.MailMetrics
}

// NewSender creates a sender from the email settings. The rate limit is
// messages per minute; zero disables limiting.
func NewSender(settings *conf.EmailSettings) *Sender {
	client := httpclient.New(nil)
	client.SetBeforeRequestHook(func(req *http.Request) {
		req.SetBasicAuth("api", settings.APIKey)
	})

	limit := rate.Inf
	if settings.RateLimit > 0 {
		limit = rate.Limit(float64(settings.RateLimit) / 60.0)
	}

	return &Sender{
		settings: settings,
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// SetMetrics attaches a mail metrics recorder. Safe to leave unset.
func (s *Sender) SetMetrics(m *metrics.MailMetrics) {
	s.metrics = m
}

// Close releases the underlying HTTP client.
func (s *Sender) Close() {
	s.client.Close()
}

// Send delivers one message, waiting on the rate limiter first and retrying
// failed provider calls with a linearly growing delay. When a test
// recipient is configured it overrides the real recipient.
func (s *Sender) Send(ctx context.Context, kind string, msg *Message) error {
	if !s.settings.Enabled {
		logger.Debug("Email delivery disabled, dropping message", "to", msg.To, "kind", kind)
		return nil
	}

	to := msg.To
	if s.settings.TestRecipient != "" {
		logger.Debug("Overriding recipient with test recipient",
			"original", msg.To, "test_recipient", s.settings.TestRecipient)
		to = s.settings.TestRecipient
	}

	if !s.limiter.Allow() {
		if s.metrics != nil {
			s.metrics.RecordRateLimitWait()
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return errors.New(err).
				Component("mail").
				Category(errors.CategoryCancellation).
				Build()
		}
	}

	form := url.Values{}
	form.Set("from", s.settings.Sender)
	form.Set("to", to)
	form.Set("subject", msg.Subject)
	form.Set("html", msg.HTML)
	form.Set("text", html2text.HTML2Text(msg.HTML))

	endpoint := fmt.Sprintf("%s/%s/messages",
		strings.TrimRight(s.settings.URL, "/"), s.settings.Domain)

	maxRetries := max(s.settings.MaxRetries, 1)
	retryDelay := time.Duration(s.settings.RetryDelay) * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		start := time.Now()
		err := s.post(ctx, endpoint, form)
		if s.metrics != nil {
			s.metrics.RecordMailSendDuration(time.Since(start).Seconds())
		}
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecordMailSend(kind, metrics.StatusSuccess)
			}
			logger.Info("Email sent", "to", to, "kind", kind, "attempt", attempt)
			return nil
		}
		lastErr = err
		logger.Warn("Email send attempt failed",
			"to", to, "kind", kind, "attempt", attempt, "error", err)

		if attempt == maxRetries {
			break
		}
		select {
		case <-time.After(retryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return errors.New(ctx.Err()).
				Component("mail").
				Category(errors.CategoryCancellation).
				Build()
		}
	}

	if s.metrics != nil {
		s.metrics.RecordMailSend(kind, metrics.StatusError)
		s.metrics.RecordMailSendError(kind)
	}
	return errors.New(lastErr).
		Component("mail").
		Category(errors.CategoryMailDelivery).
		Context("to", to).
		Context("kind", kind).
		Build()
}

func (s *Sender) post(ctx context.Context, endpoint string, form url.Values) error {
	resp, err := s.client.PostForm(ctx, endpoint, form)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mail provider returned status %d", resp.StatusCode)
	}
	return nil
}
