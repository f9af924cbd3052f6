package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	syncOperations  *prometheus.CounterVec
	syncBatches     *prometheus.HistogramVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rotasales_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rotasales_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	syncOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rotasales_sync_operations_total",
		Help: "Replayed upload operations by type and outcome.",
	}, []string{"operation", "status"})
	syncBatches := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rotasales_sync_batch_size",
		Help:    "Operations per upload batch.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
	}, []string{"type"})
	registry.MustRegister(requests, duration, syncOps, syncBatches)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		syncOperations:  syncOps,
		syncBatches:     syncBatches,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveSyncOperation counts one replayed upload operation.
func (m *Metrics) ObserveSyncOperation(operation, status string) {
	if m == nil {
		return
	}
	m.syncOperations.WithLabelValues(operation, status).Inc()
}

// ObserveSyncBatch records the size of a processed batch.
func (m *Metrics) ObserveSyncBatch(syncType string, size int) {
	if m == nil {
		return
	}
	m.syncBatches.WithLabelValues(syncType).Observe(float64(size))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
