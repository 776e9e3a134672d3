// Package metrics provides mail delivery metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MailMetrics contains Prometheus metrics for outbound email delivery
type MailMetrics struct {
	registry *prometheus.Registry

	mailSendsTotal  *prometheus.CounterVec
	mailSendErrors  *prometheus.CounterVec
	mailSendLatency prometheus.Histogram
	rateLimitWaits  prometheus.Counter
}

// NewMailMetrics creates and registers new mail metrics
func NewMailMetrics(registry *prometheus.Registry) (*MailMetrics, error) {
	m := &MailMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MailMetrics) initMetrics() error {
	m.mailSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_sends_total",
			Help: "Total number of email send attempts",
		},
		[]string{"kind", "status"}, // kind: activation, digest
	)

	m.mailSendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_send_errors_total",
			Help: "Total number of email send errors",
		},
		[]string{"kind"},
	)

	m.mailSendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "mail_send_duration_seconds",
			Help: "Time taken to hand one message to the mail provider",
			// Buckets cover mail API round trips: 10ms to ~5s
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount10),
		},
	)

	m.rateLimitWaits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mail_rate_limit_waits_total",
			Help: "Total number of sends delayed by the outbound rate limiter",
		},
	)

	return nil
}

// Describe implements the Collector interface
func (m *MailMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.mailSendsTotal.Describe(ch)
	m.mailSendErrors.Describe(ch)
	m.mailSendLatency.Describe(ch)
	m.rateLimitWaits.Describe(ch)
}

// Collect implements the Collector interface
func (m *MailMetrics) Collect(ch chan<- prometheus.Metric) {
	m.mailSendsTotal.Collect(ch)
	m.mailSendErrors.Collect(ch)
	m.mailSendLatency.Collect(ch)
	m.rateLimitWaits.Collect(ch)
}

// RecordMailSend records an email send attempt
func (m *MailMetrics) RecordMailSend(kind, status string) {
	m.mailSendsTotal.WithLabelValues(kind, status).Inc()
}

// RecordMailSendError records an email send error
func (m *MailMetrics) RecordMailSendError(kind string) {
	m.mailSendErrors.WithLabelValues(kind).Inc()
}

// RecordMailSendDuration records the duration of one provider round trip
func (m *MailMetrics) RecordMailSendDuration(seconds float64) {
	m.mailSendLatency.Observe(seconds)
}

// RecordRateLimitWait records a send that had to wait on the rate limiter
func (m *MailMetrics) RecordRateLimitWait() {
	m.rateLimitWaits.Inc()
}
