// Package monitoring provides Prometheus metrics for the proxy backend.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Proxy metrics
	ProxyRequests   *prometheus.CounterVec
	ProxyErrors     *prometheus.CounterVec
	UpstreamLatency *prometheus.HistogramVec
	RewriteDuration prometheus.Histogram

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsEvicted *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backend_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ProxyRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_proxy_requests_total",
				Help: "Total number of proxied upstream requests",
			},
			[]string{"method", "content_class"},
		),
		ProxyErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_proxy_errors_total",
				Help: "Total number of proxy errors by class",
			},
			[]string{"class"},
		),
		UpstreamLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backend_proxy_upstream_seconds",
				Help:    "Upstream fetch duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),
		RewriteDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backend_proxy_rewrite_seconds",
				Help:    "HTML/CSS rewrite duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "backend_sessions_active",
				Help: "Number of live sessions",
			},
		),
		SessionsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "backend_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsEvicted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_sessions_evicted_total",
				Help: "Total number of sessions removed",
			},
			[]string{"reason"},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "backend_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "event"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "backend_uptime_seconds",
				Help: "Backend uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProxyRequest records a proxied upstream request
func (m *Metrics) RecordProxyRequest(method, contentClass string, upstream time.Duration) {
	m.ProxyRequests.WithLabelValues(method, contentClass).Inc()
	m.UpstreamLatency.WithLabelValues(method).Observe(upstream.Seconds())
}

// RecordProxyError records a proxy error by taxonomy class
func (m *Metrics) RecordProxyError(class string) {
	m.ProxyErrors.WithLabelValues(class).Inc()
}

// RecordRewrite records a body rewrite duration
func (m *Metrics) RecordRewrite(duration time.Duration) {
	m.RewriteDuration.Observe(duration.Seconds())
}

// SetSessionsActive sets the number of live sessions
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
}

// IncSessionsCreated increments the sessions created counter
func (m *Metrics) IncSessionsCreated() {
	m.SessionsCreated.Inc()
}

// IncSessionsEvicted increments the eviction counter ("closed", "idle", "shutdown")
func (m *Metrics) IncSessionsEvicted(reason string) {
	m.SessionsEvicted.WithLabelValues(reason).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, event string) {
	m.WSMessages.WithLabelValues(direction, event).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
