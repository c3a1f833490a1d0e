package obs

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewLogger_Levels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "warn", "error"} {
		if _, err := NewLogger(lvl, false); err != nil {
			t.Errorf("NewLogger(%q): %v", lvl, err)
		}
	}
	if _, err := NewLogger("debug", true); err != nil {
		t.Errorf("development logger: %v", err)
	}
	if _, err := NewLogger("loud", false); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("expected a no-op logger")
	}
}

func TestMetrics_DomainCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.TokenExchange("refresh_token", "ok")
	m.TokenExchange("refresh_token", "ok")
	m.ProviderRequest("work_records", "network_error")
	m.Column("matched")
	m.Run("ok", 150*time.Millisecond)

	if got := testutil.ToFloat64(m.TokenExchanges.WithLabelValues("refresh_token", "ok")); got != 2 {
		t.Errorf("token exchanges = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ProviderRequests.WithLabelValues("work_records", "network_error")); got != 1 {
		t.Errorf("provider requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Columns.WithLabelValues("matched")); got != 1 {
		t.Errorf("columns = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.RunDuration); got != 1 {
		t.Errorf("run duration series = %d, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.TokenExchange("authorization_code", "ok")
	m.ProviderRequest("users_me", "ok")
	m.Column("skipped")
	m.Run("ok", time.Second)

	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestMetrics_InstrumentAndHandler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/employees/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/employees/1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/employees/2", nil))

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/employees/{id}", "418")); got != 2 {
		t.Errorf("http requests = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Error("metrics output should include http_requests_total")
	}
}

func TestMetrics_UnmatchedPathsShareOneSeries(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})
	for _, path := range []string{"/wp-admin", "/.env", "/a/b/c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	// without a chi router there is no route pattern either
	m.Instrument(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/raw", nil))

	if got := testutil.CollectAndCount(m.httpRequestsTotal); got != 1 {
		t.Errorf("series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")); got != 4 {
		t.Errorf("unmatched requests = %v, want 4", got)
	}
}
