/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Reconciliation request parsing and response rendering
- Error kind to HTTP status mapping
- Authorization registration, status and deletion
- Router plumbing (health, metrics, CORS)
*/
package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/worktime-checker/api"
	"github.com/warp/worktime-checker/generic"
	"github.com/warp/worktime-checker/obs"
	"github.com/warp/worktime-checker/reconcile"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeEngine struct {
	mu      sync.Mutex
	columns []reconcile.Column
	runID   string
	results []reconcile.Result
	err     error
}

func (f *fakeEngine) Run(ctx context.Context, columns []reconcile.Column) ([]reconcile.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.columns = columns
	f.runID = reconcile.RunIDFrom(ctx)
	return f.results, f.err
}

type fakeAuth struct {
	registered  []string
	registerErr error
	invalidated int
	has         bool
	hasErr      error
}

func (f *fakeAuth) RegisterAuthorizationInfo(_ context.Context, redirectURL string) error {
	f.registered = append(f.registered, redirectURL)
	return f.registerErr
}

func (f *fakeAuth) Invalidate(context.Context) error {
	f.invalidated++
	f.has = false
	return nil
}

func (f *fakeAuth) HasCredentials(context.Context) (bool, error) { return f.has, f.hasErr }

func (f *fakeAuth) AuthorizeURL() string { return "https://provider.example/authorize?client_id=abc" }

func newServer(t *testing.T, engine *fakeEngine, auth *fakeAuth) (*httptest.Server, *obs.Metrics) {
	t.Helper()
	metrics := obs.NewMetrics(prometheus.NewRegistry())
	h := api.NewHandler(engine, auth, zaptest.NewLogger(t))
	router := api.NewRouter(h, api.RouterOptions{
		AllowedOrigins: []string{"https://*.atlassian.net"},
		Metrics:        metrics,
		Log:            zaptest.NewLogger(t),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, metrics
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// =============================================================================
// RECONCILE
// =============================================================================

func TestReconcile_RendersResultsInOrder(t *testing.T) {
	// GIVEN: An engine returning one result per status
	engine := &fakeEngine{results: []reconcile.Result{
		{Status: reconcile.StatusSkipped, Column: reconcile.Column{ColSpan: 2, ClassName: "name"}},
		{Status: reconcile.StatusMatched, WorkedMinutes: 450},
		{
			Status:        reconcile.StatusMismatched,
			WorkedMinutes: 420,
			DeltaMinutes:  30,
			Annotations:   []reconcile.Annotation{{Label: "🌛", Title: "half-day paid holiday"}},
		},
	}}
	srv, _ := newServer(t, engine, &fakeAuth{})

	// WHEN: Columns are posted in both reported formats
	resp := postJSON(t, srv.URL+"/api/reconcile", `{"columns":[
		{"date":"","col_span":2,"class_name":"name"},
		{"date":"2024-05-01","reported":"7h 30m"},
		{"date":"2024/05/02","reported_minutes":450}
	]}`)

	// THEN: Columns are parsed and results come back in order
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[api.ReconcileResponse](t, resp)

	require.Len(t, engine.columns, 3)
	assert.True(t, engine.columns[0].Date.IsZero())
	assert.Equal(t, 2, engine.columns[0].ColSpan)
	assert.Equal(t, "2024-05-01", engine.columns[1].Date.String())
	assert.Equal(t, 450, engine.columns[1].ReportedMinutes)
	assert.Equal(t, "2024-05-02", engine.columns[2].Date.String())
	assert.Equal(t, 450, engine.columns[2].ReportedMinutes)

	assert.NotEmpty(t, body.RunID)
	assert.Equal(t, body.RunID, engine.runID)
	assert.Equal(t, "Working time check (powered by freee API):", body.Message)
	require.Len(t, body.Results, 3)

	assert.Equal(t, "skipped", body.Results[0].Status)
	assert.Empty(t, body.Results[0].Lines)
	assert.NotNil(t, body.Results[0].Lines)
	assert.Equal(t, "name", body.Results[0].ClassName)

	assert.Equal(t, "matched", body.Results[1].Status)
	assert.Equal(t, []string{"✔"}, body.Results[1].Lines)

	assert.Equal(t, "mismatched", body.Results[2].Status)
	assert.Equal(t, []string{"❌", "7h 0m", "(-30m)", "🌛"}, body.Results[2].Lines)
	assert.Equal(t, []api.AnnotationDTO{{Label: "🌛", Title: "half-day paid holiday"}}, body.Results[2].Annotations)
}

func TestReconcile_FailedColumnCarriesError(t *testing.T) {
	engine := &fakeEngine{results: []reconcile.Result{
		{Status: reconcile.StatusFailed, Err: generic.NetworkError("request failed", nil)},
	}}
	srv, _ := newServer(t, engine, &fakeAuth{})

	resp := postJSON(t, srv.URL+"/api/reconcile", `{"columns":[{"date":"2024-05-01","reported":"1h"}]}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[api.ReconcileResponse](t, resp)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "failed", body.Results[0].Status)
	assert.Contains(t, body.Results[0].Error, "request failed")
	assert.True(t, body.Results[0].Retryable)
}

func TestReconcile_BadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"columns":`},
		{"unknown field", `{"rows":[]}`},
		{"bad date", `{"columns":[{"date":"May 1st"}]}`},
		{"negative minutes", `{"columns":[{"date":"2024-05-01","reported_minutes":-5}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			srv, _ := newServer(t, engine, &fakeAuth{})

			resp := postJSON(t, srv.URL+"/api/reconcile", tt.body)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decode[api.ErrorResponse](t, resp)
			assert.NotEmpty(t, body.Error)
			assert.Nil(t, engine.columns, "engine must not run on bad input")
		})
	}
}

func TestReconcile_ErrorMapping(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantCode      string
		wantRetryable bool
	}{
		{"authentication", generic.AuthenticationFailed("token rejected"), http.StatusUnauthorized, "authentication_required", false},
		{"employee not found", &reconcile.EmployeeNotFoundError{CompanyID: 42}, http.StatusUnprocessableEntity, "employee_not_found", false},
		{"network", generic.NetworkError("dial failed", nil), http.StatusServiceUnavailable, "network_error", true},
		{"provider", generic.OtherAPIError("bad request", http.StatusBadRequest), http.StatusBadGateway, "api_error", false},
		{"unexpected", context.DeadlineExceeded, http.StatusInternalServerError, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, &fakeEngine{err: tt.err}, &fakeAuth{})

			resp := postJSON(t, srv.URL+"/api/reconcile", `{"columns":[]}`)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decode[api.ErrorResponse](t, resp)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantRetryable, body.Retryable)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "https://provider.example/authorize?client_id=abc", body.AuthURL)
			} else {
				assert.Empty(t, body.AuthURL)
			}
		})
	}
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

func TestRegisterAuthorization(t *testing.T) {
	t.Run("registered", func(t *testing.T) {
		auth := &fakeAuth{}
		srv, _ := newServer(t, &fakeEngine{}, auth)

		resp := postJSON(t, srv.URL+"/api/oauth/authorization",
			`{"url":"https://provider.example/oob?client_id=abc&code=0a1b2c"}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, map[string]string{"status": "registered"}, decode[map[string]string](t, resp))
		assert.Equal(t, []string{"https://provider.example/oob?client_id=abc&code=0a1b2c"}, auth.registered)
	})

	t.Run("missing url", func(t *testing.T) {
		auth := &fakeAuth{}
		srv, _ := newServer(t, &fakeEngine{}, auth)

		resp := postJSON(t, srv.URL+"/api/oauth/authorization", `{}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, auth.registered)
	})

	t.Run("unrelated page", func(t *testing.T) {
		auth := &fakeAuth{registerErr: generic.UnrelatedAuthorizationPage("client_id does not match")}
		srv, _ := newServer(t, &fakeEngine{}, auth)

		resp := postJSON(t, srv.URL+"/api/oauth/authorization", `{"url":"https://elsewhere.example/"}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "unrelated_authorization_page", decode[api.ErrorResponse](t, resp).Code)
	})

	t.Run("code rejected", func(t *testing.T) {
		auth := &fakeAuth{registerErr: generic.AuthenticationFailed("invalid_grant")}
		srv, _ := newServer(t, &fakeEngine{}, auth)

		resp := postJSON(t, srv.URL+"/api/oauth/authorization", `{"url":"https://provider.example/oob?code=ff"}`)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAuthorizationStatusAndDelete(t *testing.T) {
	// GIVEN: Stored credentials
	auth := &fakeAuth{has: true}
	srv, _ := newServer(t, &fakeEngine{}, auth)

	// WHEN: Status is read
	resp, err := http.Get(srv.URL + "/api/oauth/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	// THEN: It reports authorized with the authorize URL
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[api.AuthorizationStatusDTO](t, resp)
	assert.True(t, status.Authorized)
	assert.Equal(t, auth.AuthorizeURL(), status.AuthorizeURL)

	// WHEN: Credentials are deleted
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/oauth/credentials", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer del.Body.Close()

	// THEN: 204 and the manager was invalidated
	assert.Equal(t, http.StatusNoContent, del.StatusCode)
	assert.Equal(t, 1, auth.invalidated)

	resp2, err := http.Get(srv.URL + "/api/oauth/status")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.False(t, decode[api.AuthorizationStatusDTO](t, resp2).Authorized)
}

// =============================================================================
// ROUTER
// =============================================================================

func TestRouter_HealthAndMetrics(t *testing.T) {
	srv, _ := newServer(t, &fakeEngine{}, &fakeAuth{})

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)

	var sb strings.Builder
	_, err = io.Copy(&sb, metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), `http_requests_total{method="GET",path="/healthz",status="200"} 1`)
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv, _ := newServer(t, &fakeEngine{}, &fakeAuth{})

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://example.atlassian.net", true},
		{"https://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/reconcile", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			req.Header.Set("Access-Control-Request-Headers", "Content-Type")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			if tt.allowed {
				assert.Equal(t, tt.origin, resp.Header.Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
			}
		})
	}
}
