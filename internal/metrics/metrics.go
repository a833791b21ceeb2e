// Package metrics exposes Prometheus instrumentation for the activity
// subsystem and its storage layer.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tdaniel1925/easemail-redux-sub002/internal/activity"
)

// Metrics owns a private registry so multiple instances can coexist in one
// process (tests in particular).
type Metrics struct {
	registry *prometheus.Registry

	eventsEmitted    *prometheus.CounterVec
	eventsDelivered  prometheus.Counter
	subsClosed       *prometheus.CounterVec
	subsActive       prometheus.Gauge
	storeWriteSec    prometheus.Histogram
	storeReadSec     prometheus.Histogram
	storeCommitSec   prometheus.Histogram
	storeWriteBytes  prometheus.Counter
	storeCommitBytes prometheus.Counter

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New builds a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		eventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "easemail_activity_events_emitted_total",
			Help: "Events persisted to the activity log",
		}, []string{"type"}),
		eventsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "easemail_activity_events_delivered_total",
			Help: "Events delivered to live subscriptions",
		}),
		subsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "easemail_activity_subscriptions_closed_total",
			Help: "Subscription terminations by reason",
		}, []string{"reason"}),
		subsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "easemail_activity_subscriptions_active",
			Help: "Currently open subscriptions",
		}),
		storeWriteSec: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "easemail_store_write_duration_seconds",
			Help:    "Store write latency",
			Buckets: prometheus.DefBuckets,
		}),
		storeReadSec: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "easemail_store_read_duration_seconds",
			Help:    "Store read latency",
			Buckets: prometheus.DefBuckets,
		}),
		storeCommitSec: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "easemail_store_batch_commit_duration_seconds",
			Help:    "Store batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		storeWriteBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "easemail_store_write_bytes_total",
			Help: "Bytes written through single-key writes",
		}),
		storeCommitBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "easemail_store_batch_commit_bytes_total",
			Help: "Bytes committed through batches",
		}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "easemail_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "easemail_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEmit implements activity.Metrics.
func (m *Metrics) ObserveEmit(eventType string) {
	m.eventsEmitted.WithLabelValues(eventType).Inc()
}

// ObserveDelivery implements activity.Metrics.
func (m *Metrics) ObserveDelivery() { m.eventsDelivered.Inc() }

// ObserveClose implements activity.Metrics.
func (m *Metrics) ObserveClose(reason activity.CloseReason) {
	m.subsClosed.WithLabelValues(string(reason)).Inc()
}

// ObserveSubscribers implements activity.Metrics.
func (m *Metrics) ObserveSubscribers(delta int) {
	m.subsActive.Add(float64(delta))
}

// ObserveWrite implements the storage MetricsHook.
func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.storeWriteSec.Observe(elapsed.Seconds())
	m.storeWriteBytes.Add(float64(bytes))
}

// ObserveRead implements the storage MetricsHook.
func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.storeReadSec.Observe(elapsed.Seconds())
}

// ObserveBatchCommit implements the storage MetricsHook.
func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	m.storeCommitSec.Observe(elapsed.Seconds())
	m.storeCommitBytes.Add(float64(bytes))
}

// HTTPMiddleware records request counts and latencies per route.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		m.httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, fmt.Sprintf("%d", rw.status())).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}

// Flush forwards to the wrapped writer when it supports streaming.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
