// Package metrics exposes Prometheus collectors for the scan service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scansTotal                *prometheus.CounterVec
	auditDurationSeconds      *prometheus.HistogramVec
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDurationSecond *prometheus.HistogramVec
	activeWorkers             prometheus.Gauge
	queueEventsTotal          *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scansTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalscan_scans_total",
				Help: "Total number of scans processed, labeled by final status.",
			},
			[]string{"status"},
		)

		auditDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitalscan_audit_duration_seconds",
				Help:    "Histogram of audit runner durations, labeled by audit kind and source.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"audit", "source"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vitalscan_active_workers",
				Help: "Number of workers currently processing a scan.",
			},
		)

		queueEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalscan_queue_events_total",
				Help: "Total queue lifecycle events, labeled by event kind.",
			},
			[]string{"event"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScan increments the scan counter for the given final status.
func ObserveScan(status string) {
	if scansTotal == nil {
		return
	}
	scansTotal.WithLabelValues(status).Inc()
}

// ObserveAudit records the duration of one audit runner invocation.
func ObserveAudit(audit, source string, duration time.Duration) {
	if auditDurationSeconds == nil {
		return
	}
	auditDurationSeconds.WithLabelValues(audit, source).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecond.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveQueueEvent increments the queue event counter.
func ObserveQueueEvent(event string) {
	if queueEventsTotal == nil {
		return
	}
	queueEventsTotal.WithLabelValues(event).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}
