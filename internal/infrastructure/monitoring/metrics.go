package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the preview engine.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Preview lifecycle
	PreviewsActive prometheus.Gauge
	PreviewsTotal  prometheus.Counter

	// Navigation
	Navigations   *prometheus.CounterVec
	GenerationDur prometheus.Histogram

	// Intents
	IntentTriggers *prometheus.CounterVec
	IntentDuration prometheus.Histogram

	// Sandbox health
	SandboxErrors prometheus.Counter

	// WebSocket event stream
	WSConnections prometheus.Gauge
	WSEvents      *prometheus.CounterVec

	// System
	Uptime    prometheus.Gauge
	startTime time.Time
}

// New creates a metrics collector registered against reg. Tests pass
// their own registry so parallel instances never collide.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "preview_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "preview_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		PreviewsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "preview_sandboxes_active",
				Help: "Number of live preview sandboxes",
			},
		),
		PreviewsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "preview_sandboxes_total",
				Help: "Total number of preview sandboxes created",
			},
		),

		Navigations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "preview_navigations_total",
				Help: "Navigation requests by outcome",
			},
			[]string{"outcome"},
		),
		GenerationDur: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "preview_generation_duration_seconds",
				Help:    "Page generation round trip duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
			},
		),

		IntentTriggers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "preview_intent_triggers_total",
				Help: "Intent triggers by intent name and route",
			},
			[]string{"intent", "route"},
		),
		IntentDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "preview_intent_duration_seconds",
				Help:    "Intent execution duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
			},
		),

		SandboxErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "preview_sandbox_errors_total",
				Help: "Script errors captured inside sandboxes",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "preview_ws_connections",
				Help: "Active WebSocket event stream connections",
			},
		),
		WSEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "preview_ws_events_total",
				Help: "WebSocket events broadcast by type",
			},
			[]string{"type"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "preview_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	go m.updateUptime()
	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordNavigation records a navigation outcome: cache-hit, resolved,
// errored, or timed-out.
func (m *Metrics) RecordNavigation(outcome string) {
	m.Navigations.WithLabelValues(outcome).Inc()
}

// RecordGeneration records a completed generation round trip.
func (m *Metrics) RecordGeneration(duration time.Duration) {
	m.GenerationDur.Observe(duration.Seconds())
}

// RecordIntent records a trigger and where it was routed: overlay or
// backend.
func (m *Metrics) RecordIntent(intentName, route string, duration time.Duration) {
	m.IntentTriggers.WithLabelValues(intentName, route).Inc()
	m.IntentDuration.Observe(duration.Seconds())
}

// RecordSandboxError counts one captured script failure.
func (m *Metrics) RecordSandboxError() {
	m.SandboxErrors.Inc()
}

// RecordWSEvent counts one broadcast event.
func (m *Metrics) RecordWSEvent(eventType string) {
	m.WSEvents.WithLabelValues(eventType).Inc()
}

// IncPreviews tracks a sandbox creation.
func (m *Metrics) IncPreviews() {
	m.PreviewsActive.Inc()
	m.PreviewsTotal.Inc()
}

// DecPreviews tracks a sandbox teardown.
func (m *Metrics) DecPreviews() {
	m.PreviewsActive.Dec()
}

// IncWSConnections tracks a new event stream subscriber.
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections tracks a departed subscriber.
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
