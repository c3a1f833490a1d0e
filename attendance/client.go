/*
Package attendance is the client for the provider's HR attendance API.

PURPOSE:
  Resolves the signed-in user's employee id in the configured company and
  fetches one day's work record. Every call goes through one path that
  attaches the bearer token and classifies the outcome.

CALL CONTRACT:
  - Token first; a token failure is returned unchanged
  - 200 -> typed decode (malformed body -> OtherAPIError)
  - 401 -> AuthenticationFailed
  - other status -> OtherAPIError with the provider's code and message
  - transport failure -> NetworkError
  Single attempt, no retry.

RATE LIMITING:
  Outbound requests can be paced with a token bucket (x/time/rate). The
  provider's x-ratelimit-remaining header is logged on success.

SEE ALSO:
  - oauth/manager.go: TokenSource implementation
  - reconcile/engine.go: caller
*/
package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/warp/worktime-checker/generic"
	"github.com/warp/worktime-checker/obs"
)

const (
	DefaultBaseURL = "https://api.freee.co.jp/hr"

	endpointUsersMe     = "users_me"
	endpointWorkRecords = "work_records"

	maxResponseBody = 4 << 20
)

// TokenSource hands out bearer tokens.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// Config selects the API and the company whose records are read.
type Config struct {
	BaseURL   string
	CompanyID generic.CompanyID
	// RateLimit is the sustained requests per second; 0 disables pacing.
	RateLimit float64
	RateBurst int
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = obs.OrNop(l) } }

func WithMetrics(m *obs.Metrics) Option { return func(c *Client) { c.metrics = m } }

func WithHTTPClient(h generic.HTTPDoer) Option { return func(c *Client) { c.http = h } }

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	tokens  TokenSource
	http    generic.HTTPDoer
	limiter *rate.Limiter
	log     *zap.Logger
	metrics *obs.Metrics
}

func NewClient(cfg Config, tokens TokenSource, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:    cfg,
		tokens: tokens,
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// OPERATIONS
// =============================================================================

// ResolveEmployeeID returns the current user's employee id in the configured
// company. ok is false when the user has no membership there.
func (c *Client) ResolveEmployeeID(ctx context.Context) (generic.EmployeeID, bool, error) {
	var (
		me    meResponse
		id    generic.EmployeeID
		found bool
	)
	err := c.get(ctx, endpointUsersMe, "/api/v1/users/me", nil, &me, func() error {
		var err error
		id, found, err = me.employeeFor(c.cfg.CompanyID)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return id, found, nil
}

// FetchWorkRecord returns the attendance record of employee on date.
func (c *Client) FetchWorkRecord(ctx context.Context, employee generic.EmployeeID, date generic.Date) (generic.AttendanceRecord, error) {
	path := fmt.Sprintf("/api/v1/employees/%s/work_records/%s", employee, date)
	query := url.Values{"company_id": {c.cfg.CompanyID.String()}}

	var body workRecordResponse
	if err := c.get(ctx, endpointWorkRecords, path, query, &body, nil); err != nil {
		return generic.AttendanceRecord{}, err
	}
	return body.toRecord(date), nil
}

// =============================================================================
// CALL PATH
// =============================================================================

// get performs one authorized GET and decodes the body into out. check, when
// set, validates the decoded body; a failure counts as a malformed response.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any, check func() error) error {
	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return generic.NetworkError("request not sent: rate limiter wait aborted", err)
		}
	}

	target := c.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	log := c.log.With(zap.String("endpoint", endpoint), zap.String("path", path))
	log.Debug("calling attendance api")

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ProviderRequest(endpoint, generic.KindNetworkError.String())
		log.Warn("attendance api unreachable", zap.Error(err))
		return generic.NetworkError("could not reach the attendance api", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		c.metrics.ProviderRequest(endpoint, generic.KindNetworkError.String())
		return generic.NetworkError("failed to read attendance api response", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := classify(resp.StatusCode, raw)
		c.metrics.ProviderRequest(endpoint, apiErr.Kind.String())
		log.Warn("attendance api call failed",
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
			zap.String("message", apiErr.Detail),
		)
		return apiErr
	}

	err = json.Unmarshal(raw, out)
	if err == nil && check != nil {
		err = check()
	}
	if err != nil {
		c.metrics.ProviderRequest(endpoint, generic.KindOtherAPIError.String())
		return &generic.APIError{
			Kind: generic.KindOtherAPIError, Message: "malformed response from " + endpoint, Status: resp.StatusCode, Err: err,
		}
	}

	c.metrics.ProviderRequest(endpoint, "ok")
	log.Debug("attendance api returned",
		zap.String("ratelimit_remaining", resp.Header.Get("X-Ratelimit-Remaining")),
	)
	return nil
}

func classify(status int, body []byte) *generic.APIError {
	apiErr := &generic.APIError{
		Kind:    generic.KindOtherAPIError,
		Message: "attendance api call failed: " + http.StatusText(status),
		Status:  status,
	}
	if status == http.StatusUnauthorized {
		apiErr.Kind = generic.KindAuthenticationFailed
		apiErr.Message = "access token rejected"
	}
	var pe providerError
	if json.Unmarshal(body, &pe) == nil {
		apiErr.Code, apiErr.Detail = pe.Code, pe.Message
	}
	return apiErr
}
