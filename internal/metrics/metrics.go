package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	syncCycles          *prometheus.CounterVec
	syncCycleDuration   prometheus.Histogram
	hostSyncs           *prometheus.CounterVec
	componentChanges    *prometheus.CounterVec
	fanoutTimeouts      prometheus.Counter
}

// New creates a fresh Metrics registry with HTTP and sync metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by inventory-sync",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inventory",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by inventory-sync",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	syncCycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "sync_cycles_total",
		Help:      "Total number of sync cycles by roster outcome",
	}, []string{"status"})

	syncCycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "inventory",
		Name:      "sync_cycle_duration_seconds",
		Help:      "Duration of sync cycles from roster refresh to fan-out completion",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
	})

	hostSyncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "host_syncs_total",
		Help:      "Per-host configuration syncs by outcome",
	}, []string{"outcome"})

	componentChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "component_changes_total",
		Help:      "Component changes recorded in the change ledger",
	}, []string{"component", "change"})

	fanoutTimeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "sync_fanout_timeouts_total",
		Help:      "Fan-outs that hit their wall-clock budget before every host finished",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		syncCycles,
		syncCycleDuration,
		hostSyncs,
		componentChanges,
		fanoutTimeouts,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		syncCycles:          syncCycles,
		syncCycleDuration:   syncCycleDuration,
		hostSyncs:           hostSyncs,
		componentChanges:    componentChanges,
		fanoutTimeouts:      fanoutTimeouts,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncSyncCycle counts a cycle; status is "succeeded" or "failed".
func (m *Metrics) IncSyncCycle(status string) {
	if m == nil {
		return
	}
	m.syncCycles.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveSyncCycleDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.syncCycleDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncHostSync(outcome string) {
	if m == nil {
		return
	}
	m.hostSyncs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncComponentChange(component, change string) {
	if m == nil {
		return
	}
	m.componentChanges.WithLabelValues(component, change).Inc()
}

func (m *Metrics) IncFanoutTimeout() {
	if m == nil {
		return
	}
	m.fanoutTimeouts.Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
