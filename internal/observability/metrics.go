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
	jobsTotal       *prometheus.CounterVec
	entriesPosted   prometheus.Counter
	entriesVoided   prometheus.Counter
	periodsClosed   prometheus.Counter
	reconMatches    *prometheus.CounterVec
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
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_jobs_total",
		Help: "Background job executions by task type and outcome.",
	}, []string{"task", "outcome"})
	posted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_journal_entries_posted_total",
		Help: "Journal entries transitioned to posted.",
	})
	voided := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_journal_entries_voided_total",
		Help: "Journal entries transitioned to voided.",
	})
	closed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_fiscal_periods_closed_total",
		Help: "Fiscal periods closed.",
	})
	matches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_recon_matches_total",
		Help: "Bank transaction matches by mode (manual or auto).",
	}, []string{"mode"})
	registry.MustRegister(requests, duration, jobs, posted, voided, closed, matches)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		jobsTotal:       jobs,
		entriesPosted:   posted,
		entriesVoided:   voided,
		periodsClosed:   closed,
		reconMatches:    matches,
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

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveJob counts a background job execution.
func (m *Metrics) ObserveJob(task, outcome string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(task, outcome).Inc()
}

// EntryPosted counts a posted journal entry.
func (m *Metrics) EntryPosted() {
	if m != nil {
		m.entriesPosted.Inc()
	}
}

// EntryVoided counts a voided journal entry.
func (m *Metrics) EntryVoided() {
	if m != nil {
		m.entriesVoided.Inc()
	}
}

// PeriodClosed counts a closed fiscal period.
func (m *Metrics) PeriodClosed() {
	if m != nil {
		m.periodsClosed.Inc()
	}
}

// ReconMatched counts matched bank transactions.
func (m *Metrics) ReconMatched(mode string, n int) {
	if m != nil && n > 0 {
		m.reconMatches.WithLabelValues(mode).Add(float64(n))
	}
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
