package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "omnik"

// Metrics holds all Prometheus metrics. Every recording method is safe to
// call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec
	RateLimited     *prometheus.CounterVec

	// Session metrics
	SessionsLive      prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsCrashed   prometheus.Counter
	SessionsReaped    prometheus.Counter
	SessionOps        *prometheus.CounterVec
	SessionOpDuration *prometheus.HistogramVec
	BreakerOpen       *prometheus.CounterVec

	// Output metrics
	OutputUnits     *prometheus.CounterVec
	OutputUnitBytes prometheus.Histogram
	Classifications *prometheus.CounterVec
	EmptyResponses  prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// Notification metrics
	Notifications *prometheus.CounterVec

	startTime time.Time
}

// NewMetrics creates a metrics collector backed by its own registry, which
// also carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newMetrics(reg)
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by a rate limiter",
			},
			[]string{"scope"},
		),

		// Session metrics
		SessionsLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_live",
				Help:      "Number of sessions with a running process",
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_created_total",
				Help:      "Total number of sessions created",
			},
		),
		SessionsCrashed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_crashed_total",
				Help:      "Total number of sessions whose process exited unexpectedly",
			},
		),
		SessionsReaped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_reaped_total",
				Help:      "Total number of idle sessions terminated by the reaper",
			},
		),
		SessionOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_operations_total",
				Help:      "Registry operations by outcome",
			},
			[]string{"op", "status"},
		),
		SessionOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_operation_duration_seconds",
				Help:      "Registry operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		BreakerOpen: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "restart_breaker_transitions_total",
				Help:      "Crash-loop breaker state transitions",
			},
			[]string{"to"},
		),

		// Output metrics
		OutputUnits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_units_total",
				Help:      "Output units emitted by session pumps",
			},
			[]string{"reason"},
		),
		OutputUnitBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "output_unit_bytes",
				Help:      "Size of emitted output units",
				Buckets:   []float64{16, 64, 256, 1024, 2048, 4096, 8192},
			},
		),
		Classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_classified_total",
				Help:      "Rendered responses by category",
			},
			[]string{"category"},
		),
		EmptyResponses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_empty_total",
				Help:      "Sends that produced no output before the timeout",
			},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// Notification metrics
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Webhook notifications by outcome",
			},
			[]string{"status"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordRateLimited records a rejected request; scope is "ip" or "owner"
func (m *Metrics) RecordRateLimited(scope string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(scope).Inc()
}

// RecordSessionOp records one registry operation
func (m *Metrics) RecordSessionOp(op, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionOps.WithLabelValues(op, status).Inc()
	m.SessionOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// SetSessionsLive sets the number of live sessions
func (m *Metrics) SetSessionsLive(count int) {
	if m == nil {
		return
	}
	m.SessionsLive.Set(float64(count))
}

// IncSessionsCreated increments the sessions created counter
func (m *Metrics) IncSessionsCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// IncSessionsCrashed increments the crashed sessions counter
func (m *Metrics) IncSessionsCrashed() {
	if m == nil {
		return
	}
	m.SessionsCrashed.Inc()
}

// IncSessionsReaped increments the reaped sessions counter
func (m *Metrics) IncSessionsReaped() {
	if m == nil {
		return
	}
	m.SessionsReaped.Inc()
}

// RecordBreakerTransition records a crash-loop breaker state change
func (m *Metrics) RecordBreakerTransition(to string) {
	if m == nil {
		return
	}
	m.BreakerOpen.WithLabelValues(to).Inc()
}

// RecordOutputUnit records one emitted output unit
func (m *Metrics) RecordOutputUnit(reason string, size int) {
	if m == nil {
		return
	}
	m.OutputUnits.WithLabelValues(reason).Inc()
	m.OutputUnitBytes.Observe(float64(size))
}

// RecordClassification records the category of a rendered response
func (m *Metrics) RecordClassification(category string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(category).Inc()
}

// IncEmptyResponses counts sends that produced no output
func (m *Metrics) IncEmptyResponses() {
	if m == nil {
		return
	}
	m.EmptyResponses.Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// RecordNotification records a webhook delivery outcome
func (m *Metrics) RecordNotification(status string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(status).Inc()
}
