package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// several hosts (and tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Bridge metrics
	Envelopes       *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec
	BufferDropped   prometheus.Counter
	Transitions     *prometheus.CounterVec

	// Credential metrics
	CredentialWaits    *prometheus.CounterVec
	CredentialWaitTime prometheus.Histogram

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// Shell metrics
	ShellConnections prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minihost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "minihost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		Envelopes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minihost_bridge_envelopes_total",
				Help: "Inbound bridge envelopes by topic and outcome",
			},
			[]string{"topic", "outcome"},
		),
		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "minihost_bridge_handler_duration_seconds",
				Help:    "Capability handler duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30, 120},
			},
			[]string{"topic"},
		),
		BufferDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "minihost_bridge_buffer_dropped_total",
				Help: "Envelopes dropped from the not-ready buffer",
			},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minihost_lifecycle_transitions_total",
				Help: "Content lifecycle transitions",
			},
			[]string{"from", "to"},
		),

		CredentialWaits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minihost_credential_requests_total",
				Help: "Credential requests by result",
			},
			[]string{"result"},
		),
		CredentialWaitTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "minihost_credential_wait_seconds",
				Help:    "Time a credential request waited for a token",
				Buckets: []float64{.001, .01, .1, .5, 1, 5, 30},
			},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "minihost_sessions_active",
				Help: "Number of live micro-app sessions",
			},
		),
		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "minihost_sessions_total",
				Help: "Total number of micro-app sessions started",
			},
		),

		ShellConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "minihost_shell_connections",
				Help: "Number of connected host shells",
			},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.Envelopes,
		m.HandlerDuration,
		m.BufferDropped,
		m.Transitions,
		m.CredentialWaits,
		m.CredentialWaitTime,
		m.SessionsActive,
		m.SessionsTotal,
		m.ShellConnections,
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "minihost_uptime_seconds",
				Help: "Host uptime in seconds",
			},
			func() float64 { return time.Since(m.startTime).Seconds() },
		),
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEnvelope counts an inbound envelope outcome: dispatched, buffered,
// malformed, unknown, resolved, rejected, discarded.
func (m *Metrics) RecordEnvelope(topic, outcome string) {
	if topic == "" {
		topic = "none"
	}
	m.Envelopes.WithLabelValues(topic, outcome).Inc()
}

// RecordHandler records how long a capability handler ran.
func (m *Metrics) RecordHandler(topic string, duration time.Duration) {
	m.HandlerDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

// RecordBufferDrop counts envelopes dropped from the not-ready buffer.
func (m *Metrics) RecordBufferDrop(n int) {
	m.BufferDropped.Add(float64(n))
}

// RecordTransition counts a lifecycle transition.
func (m *Metrics) RecordTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

// RecordCredential counts a credential request and its wait time.
func (m *Metrics) RecordCredential(result string, waited time.Duration) {
	m.CredentialWaits.WithLabelValues(result).Inc()
	m.CredentialWaitTime.Observe(waited.Seconds())
}

// SessionStarted bumps the session gauges.
func (m *Metrics) SessionStarted() {
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	m.SessionsActive.Dec()
}

// IncShellConnections increments connected shells
func (m *Metrics) IncShellConnections() {
	m.ShellConnections.Inc()
}

// DecShellConnections decrements connected shells
func (m *Metrics) DecShellConnections() {
	m.ShellConnections.Dec()
}
