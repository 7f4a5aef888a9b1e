// Package observability wires Prometheus metrics for the HTTP layer and the
// posting engine.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	postingsTotal   *prometheus.CounterVec
	numberRetries   prometheus.Counter
	glDriftTotal    prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_postings_total",
		Help: "Document postings by document type and result.",
	}, []string{"doc_type", "result"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_voucher_number_retries_total",
		Help: "Posting transactions retried after a voucher number collision.",
	})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_gl_drift_detected_total",
		Help: "Accounts found with cached balances diverging from ledger sums.",
	})
	registry.MustRegister(requests, duration, postings, retries, drift)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		postingsTotal:   postings,
		numberRetries:   retries,
		glDriftTotal:    drift,
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

// ObservePosting records a document posting attempt outcome.
func (m *Metrics) ObservePosting(docType, result string) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(docType, result).Inc()
}

// ObserveNumberRetry records a voucher numbering collision retry.
func (m *Metrics) ObserveNumberRetry() {
	if m == nil {
		return
	}
	m.numberRetries.Inc()
}

// ObserveGLDrift records a detected ledger/balance divergence.
func (m *Metrics) ObserveGLDrift() {
	if m == nil {
		return
	}
	m.glDriftTotal.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware records request metrics for every HTTP request.
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
