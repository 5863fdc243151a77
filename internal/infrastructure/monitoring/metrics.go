package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// Renderer metrics
	Reloads       *prometheus.CounterVec
	Writes        prometheus.Counter
	WriteDuration prometheus.Histogram

	// Execution metrics
	ScriptRuns     *prometheus.CounterVec
	ScriptDuration prometheus.Histogram
	LibraryFetches *prometheus.CounterVec

	// Relay metrics
	RelayMessages *prometheus.CounterVec

	// Export metrics
	Exports     *prometheus.CounterVec
	ExportBytes prometheus.Histogram

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu       sync.RWMutex
	stopOnce sync.Once
	stop     chan struct{}
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalErrors    int64   `json:"total_errors"`
	ActiveSessions int64   `json:"active_sessions"`
	Renders        int64   `json:"renders"`
	Relayed        int64   `json:"relayed"`
	Dropped        int64   `json:"dropped"`
	TotalDuration  float64 `json:"total_duration_seconds"`
}

// NewMetrics creates a new metrics collector on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),
		stop:      make(chan struct{}),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peneditor_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "peneditor_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "peneditor_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "peneditor_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Session metrics
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "peneditor_sessions_active",
				Help: "Number of active playground sessions",
			},
		),
		SessionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "peneditor_sessions_total",
				Help: "Total number of playground sessions created",
			},
		),

		// Renderer metrics
		Reloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peneditor_sandbox_reloads_total",
				Help: "Sandbox reload requests by outcome",
			},
			[]string{"outcome"},
		),
		Writes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "peneditor_sandbox_writes_total",
				Help: "Composed documents written into a sandbox",
			},
		),
		WriteDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "peneditor_sandbox_write_duration_seconds",
				Help:    "Time spent composing and writing a preview document",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
			},
		),

		// Execution metrics
		ScriptRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peneditor_sandbox_scripts_total",
				Help: "Scripts executed in the sandbox by status",
			},
			[]string{"status"},
		),
		ScriptDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "peneditor_sandbox_script_duration_seconds",
				Help:    "Script execution time in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		LibraryFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peneditor_library_fetches_total",
				Help: "Library script fetches by status",
			},
			[]string{"status"},
		),

		// Relay metrics
		RelayMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peneditor_relay_messages_total",
				Help: "Relay messages by outcome",
			},
			[]string{"outcome"},
		),

		// Export metrics
		Exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peneditor_exports_total",
				Help: "Exported artifacts by encoding",
			},
			[]string{"encoding"},
		),
		ExportBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "peneditor_export_size_bytes",
				Help:    "Exported artifact size in bytes",
				Buckets: []float64{512, 2048, 8192, 32768, 131072, 524288, 2097152},
			},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "peneditor_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peneditor_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "peneditor_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Close stops the uptime updater
func (m *Metrics) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		case <-m.stop:
			return
		}
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordReload records a reload request. Coalesced reloads joined one already in flight.
func (m *Metrics) RecordReload(coalesced bool) {
	outcome := "started"
	if coalesced {
		outcome = "coalesced"
	}
	m.Reloads.WithLabelValues(outcome).Inc()
}

// RecordWrite records one composed document written into a sandbox
func (m *Metrics) RecordWrite(duration time.Duration) {
	m.Writes.Inc()
	m.WriteDuration.Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.Renders++
	m.mu.Unlock()
}

// RecordScript records one script execution
func (m *Metrics) RecordScript(status string, duration time.Duration) {
	m.ScriptRuns.WithLabelValues(status).Inc()
	m.ScriptDuration.Observe(duration.Seconds())
}

// RecordLibraryFetch records a library fetch
func (m *Metrics) RecordLibraryFetch(status string) {
	m.LibraryFetches.WithLabelValues(status).Inc()
}

// RecordRelay records the outcome of one relay message
func (m *Metrics) RecordRelay(outcome string) {
	m.RelayMessages.WithLabelValues(outcome).Inc()
	m.mu.Lock()
	if outcome == "forwarded" {
		m.snapshot.Relayed++
	} else {
		m.snapshot.Dropped++
	}
	m.mu.Unlock()
}

// RecordExport records an exported artifact
func (m *Metrics) RecordExport(encoding string, size int) {
	m.Exports.WithLabelValues(encoding).Inc()
	m.ExportBytes.Observe(float64(size))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SetSessionsActive sets the number of active sessions
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// IncSessionsTotal increments the total sessions counter
func (m *Metrics) IncSessionsTotal() {
	m.SessionsTotal.Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// GetSnapshot returns the current values for the JSON API
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
