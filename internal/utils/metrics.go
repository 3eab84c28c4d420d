// internal/utils/metrics.go
package utils

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "draftsvc"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	draftOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "drafts",
			Name:      "operations_total",
			Help:      "Draft operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)
	draftFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "drafts",
			Name:      "fallbacks_total",
			Help:      "Reads answered from the local store after a primary failure.",
		},
		[]string{"operation"},
	)
	bridgeCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "bridge",
			Name:      "calls_total",
			Help:      "External bridge invocations by result.",
		},
		[]string{"operation", "result"},
	)
	bridgeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "bridge",
			Name:      "call_duration_seconds",
			Help:      "External bridge invocation duration in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open draft notification connections.",
		},
	)
)

// RegisterMetrics registers collectors with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, draftOps, draftFallbacks,
			bridgeCalls, bridgeDuration, wsConnections)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordDraftOp counts a draft operation; outcome is e.g. "ok", "error", "primary", "local".
func RecordDraftOp(operation, outcome string) {
	RegisterMetrics()
	draftOps.WithLabelValues(operation, outcome).Inc()
}

func RecordFallback(operation string) {
	RegisterMetrics()
	draftFallbacks.WithLabelValues(operation).Inc()
}

// RecordBridgeCall records one bridge invocation; result is "success" or a failure kind.
func RecordBridgeCall(operation, result string, duration time.Duration) {
	RegisterMetrics()
	bridgeCalls.WithLabelValues(operation, result).Inc()
	bridgeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func SetWSConnections(n int) {
	RegisterMetrics()
	wsConnections.Set(float64(n))
}
