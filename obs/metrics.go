package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	TokenExchanges   *prometheus.CounterVec
	ProviderRequests *prometheus.CounterVec
	Columns          *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them on reg. If reg is
// also a Gatherer (as *prometheus.Registry is) Handler serves from it.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokenExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worktime_token_exchanges_total",
			Help: "OAuth token endpoint exchanges by grant type and outcome.",
		}, []string{"grant", "outcome"}),

		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worktime_provider_requests_total",
			Help: "Attendance API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),

		Columns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worktime_reconciled_columns_total",
			Help: "Reconciled time table columns by result status.",
		}, []string{"status"}),

		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worktime_reconcile_duration_seconds",
			Help:    "Duration of whole reconciliation runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	reg.MustRegister(
		m.TokenExchanges, m.ProviderRequests, m.Columns, m.RunDuration,
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// =============================================================================
// DOMAIN OBSERVATIONS
// =============================================================================

func (m *Metrics) TokenExchange(grant, outcome string) {
	if m == nil {
		return
	}
	m.TokenExchanges.WithLabelValues(grant, outcome).Inc()
}

func (m *Metrics) ProviderRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) Column(status string) {
	if m == nil {
		return
	}
	m.Columns.WithLabelValues(status).Inc()
}

func (m *Metrics) Run(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// =============================================================================
// HTTP
// =============================================================================

// Handler serves the registry the metrics were registered on, falling back
// to the default gatherer.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument records RPS, latency and in-flight requests. Mounted on a chi
// router, requests are labelled by route pattern; anything without one is
// labelled "unmatched".
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		route := routePattern(r)
		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
