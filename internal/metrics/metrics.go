// Package metrics holds the Prometheus collectors of the API: saga step
// outcomes, HTTP requests, live streams and venue lookups.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rallyup"

type Metrics struct {
	// SagaStepsTotal counts multi-write steps.
	// Labels: op (delete_session, join_session, ...), step, outcome (ok, error)
	SagaStepsTotal *prometheus.CounterVec

	// PartialFailuresTotal counts sagas that stopped after applying writes.
	// Labels: op, step (the failed one)
	PartialFailuresTotal *prometheus.CounterVec

	// HTTPRequestsTotal labels: route (chi pattern), method, status
	HTTPRequestsTotal *prometheus.CounterVec

	HTTPRequestDuration *prometheus.HistogramVec

	// ActiveStreams labels: stream (messages, conversations)
	ActiveStreams *prometheus.GaugeVec

	// VenueSearchesTotal labels: outcome (success, error)
	VenueSearchesTotal  *prometheus.CounterVec
	VenueSearchDuration prometheus.Histogram

	registry *prometheus.Registry
}

// New registers every collector on a fresh registry, together with the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newWith(reg)
}

func newWith(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SagaStepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "steps_total",
			Help:      "Saga steps by operation, step and outcome",
		}, []string{"op", "step", "outcome"}),
		PartialFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "partial_failures_total",
			Help:      "Sagas that failed after applying at least one write",
		}, []string{"op", "step"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method"}),
		ActiveStreams: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "active_streams",
			Help:      "Open websocket streams",
		}, []string{"stream"}),
		VenueSearchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "venues",
			Name:      "searches_total",
			Help:      "Venue searches by outcome",
		}, []string{"outcome"}),
		VenueSearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "venues",
			Name:      "search_duration_seconds",
			Help:      "Upstream venue search latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveStep(op, step string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.SagaStepsTotal.WithLabelValues(op, step, outcome).Inc()
}

func (m *Metrics) ObservePartialFailure(op, step string) {
	m.PartialFailuresTotal.WithLabelValues(op, step).Inc()
}

func (m *Metrics) ObserveVenueSearch(outcome string, d time.Duration) {
	m.VenueSearchesTotal.WithLabelValues(outcome).Inc()
	m.VenueSearchDuration.Observe(d.Seconds())
}

// StreamOpened increments the gauge and returns the matching decrement.
func (m *Metrics) StreamOpened(stream string) func() {
	g := m.ActiveStreams.WithLabelValues(stream)
	g.Inc()
	return g.Dec
}

// Middleware records every request under its chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
