/*
Package oauth manages the provider access token lifecycle.

PURPOSE:
  Hands out a valid bearer token to the attendance client. The access token
  lives only in memory; the refresh token is persisted through an injected
  generic.CredentialStore and rotated on every successful refresh.

TOKEN STATES:
  Fresh:    cached access token younger than the freshness window (23h)
  Stale:    no usable cache; one refresh_token exchange is performed
  Unusable: no stored refresh token, or the provider rejected it; the user
            has to run the authorization flow again

CONCURRENCY:
  The cache is guarded by a mutex. Refresh exchanges run through a
  singleflight group so N concurrent callers share one exchange. A waiting
  caller gives up when its own ctx is done; the shared exchange keeps going
  for the others.

INVARIANTS:
  - A failed exchange never overwrites the stored refresh token
  - A 200 response without both tokens persists nothing
  - An unrelated redirect URL causes no network call and no state change

SEE ALSO:
  - generic/errors.go: error kinds returned here
  - attendance/client.go: the only consumer of GetAccessToken
*/
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/warp/worktime-checker/generic"
	"github.com/warp/worktime-checker/obs"
)

const (
	DefaultTokenURL     = "https://accounts.secure.freee.co.jp/public_api/token"
	DefaultAuthorizeURL = "https://accounts.secure.freee.co.jp/public_api/authorize"

	// OOBRedirectURI is the out-of-band redirect the client is registered with.
	OOBRedirectURI = "urn:ietf:wg:oauth:2.0:oob"

	DefaultFreshnessWindow = 23 * time.Hour

	grantRefreshToken      = "refresh_token"
	grantAuthorizationCode = "authorization_code"

	maxTokenBody = 1 << 20
)

var codePattern = regexp.MustCompile(`\bcode=([0-9a-fA-F]+)\b`)

// Config identifies this client to the provider.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	// AuthorizeURL is the page users are sent to. When empty it is derived
	// from DefaultAuthorizeURL and ClientID.
	AuthorizeURL    string
	FreshnessWindow time.Duration
}

// Option customizes a Manager.
type Option func(*Manager)

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = obs.OrNop(l) } }

func WithMetrics(mt *obs.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

func WithHTTPClient(c generic.HTTPDoer) Option { return func(m *Manager) { m.http = c } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// Manager is safe for concurrent use.
type Manager struct {
	cfg     Config
	store   generic.CredentialStore
	http    generic.HTTPDoer
	log     *zap.Logger
	metrics *obs.Metrics
	now     func() time.Time

	mu          sync.Mutex
	accessToken string
	issuedAt    time.Time
	generation  uint64

	// writeMu orders refresh token writes with Invalidate and registration.
	writeMu sync.Mutex

	flights singleflight.Group
}

func NewManager(cfg Config, store generic.CredentialStore, opts ...Option) *Manager {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	m := &Manager{
		cfg:   cfg,
		store: store,
		http:  &http.Client{Timeout: 30 * time.Second},
		log:   zap.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// =============================================================================
// ACCESS TOKEN
// =============================================================================

// GetAccessToken returns a valid access token, refreshing it when the cached
// one is older than the freshness window.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	if tok, ok := m.cached(); ok {
		return tok, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := m.flights.DoChan(grantRefreshToken, func() (any, error) {
		if tok, ok := m.cached(); ok {
			return tok, nil
		}
		return m.refresh(shared)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) cached() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accessToken == "" || m.now().Sub(m.issuedAt) >= m.cfg.FreshnessWindow {
		return "", false
	}
	return m.accessToken, true
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	refreshToken, ok, err := m.store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}
	if !ok || refreshToken == "" {
		return "", generic.AuthenticationFailed("no refresh token: re-authentication required")
	}

	tok, err := m.exchange(ctx, grantRefreshToken, url.Values{
		"refresh_token": {refreshToken},
	})
	if err != nil {
		return "", err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	current := m.generation == gen
	m.mu.Unlock()
	if !current {
		m.log.Info("dropping rotated refresh token: credentials changed during refresh")
		if tok, ok := m.cached(); ok {
			return tok, nil
		}
		return "", generic.AuthenticationFailed("credentials were invalidated during refresh")
	}

	if err := m.store.Set(ctx, tok.RefreshToken); err != nil {
		return "", fmt.Errorf("failed to persist rotated refresh token: %w", err)
	}

	m.mu.Lock()
	m.accessToken = tok.AccessToken
	m.issuedAt = m.now()
	m.mu.Unlock()

	m.log.Debug("access token refreshed")
	return tok.AccessToken, nil
}

// =============================================================================
// AUTHORIZATION FLOW
// =============================================================================

// AuthorizeURL is where the user grants access. The provider then shows a
// page whose URL carries the authorization code.
func (m *Manager) AuthorizeURL() string {
	if m.cfg.AuthorizeURL != "" {
		return m.cfg.AuthorizeURL
	}
	q := url.Values{
		"client_id":     {m.cfg.ClientID},
		"redirect_uri":  {OOBRedirectURI},
		"response_type": {"code"},
	}
	return DefaultAuthorizeURL + "?" + q.Encode()
}

// RegisterAuthorizationInfo exchanges the code found in redirectURL for a
// refresh token and stores it.
func (m *Manager) RegisterAuthorizationInfo(ctx context.Context, redirectURL string) error {
	if !m.belongsToClient(redirectURL) {
		return generic.UnrelatedAuthorizationPage("url does not belong to this client")
	}

	match := codePattern.FindStringSubmatch(redirectURL)
	if match == nil {
		return generic.AuthenticationFailed("no authorization code in url")
	}

	tok, err := m.exchange(ctx, grantAuthorizationCode, url.Values{
		"code":         {match[1]},
		"redirect_uri": {OOBRedirectURI},
	})
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.Set(ctx, tok.RefreshToken); err != nil {
		return fmt.Errorf("failed to persist refresh token: %w", err)
	}

	m.mu.Lock()
	m.generation++
	m.accessToken = tok.AccessToken
	m.issuedAt = m.now()
	m.mu.Unlock()

	m.log.Info("authorization registered")
	return nil
}

func (m *Manager) belongsToClient(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	for _, id := range u.Query()["client_id"] {
		if id == m.cfg.ClientID {
			return true
		}
	}
	return false
}

// Invalidate forgets both tokens. The next GetAccessToken fails with
// AuthenticationFailed until the user authorizes again.
func (m *Manager) Invalidate(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	m.generation++
	m.accessToken = ""
	m.issuedAt = time.Time{}
	m.mu.Unlock()

	if err := m.store.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	m.log.Info("credentials invalidated")
	return nil
}

// HasCredentials reports whether a refresh token is stored.
func (m *Manager) HasCredentials(ctx context.Context) (bool, error) {
	v, ok, err := m.store.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read refresh token: %w", err)
	}
	return ok && v != "", nil
}

// =============================================================================
// TOKEN ENDPOINT
// =============================================================================

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (m *Manager) exchange(ctx context.Context, grant string, form url.Values) (tokenResponse, error) {
	form.Set("grant_type", grant)
	form.Set("client_id", m.cfg.ClientID)
	form.Set("client_secret", m.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		m.metrics.TokenExchange(grant, generic.KindNetworkError.String())
		m.log.Warn("token endpoint unreachable", zap.String("grant", grant), zap.Error(err))
		return tokenResponse{}, generic.NetworkError("could not reach the token endpoint", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	if err != nil {
		m.metrics.TokenExchange(grant, generic.KindNetworkError.String())
		return tokenResponse{}, generic.NetworkError("failed to read token response", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &generic.APIError{
			Kind:    generic.KindAuthenticationFailed,
			Message: fmt.Sprintf("token exchange rejected: %s", http.StatusText(resp.StatusCode)),
			Status:  resp.StatusCode,
		}
		var e tokenErrorResponse
		if json.Unmarshal(body, &e) == nil {
			apiErr.Code, apiErr.Detail = e.Error, e.ErrorDescription
		}
		m.metrics.TokenExchange(grant, apiErr.Kind.String())
		m.log.Warn("token exchange rejected",
			zap.String("grant", grant),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return tokenResponse{}, apiErr
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		m.metrics.TokenExchange(grant, generic.KindOtherAPIError.String())
		return tokenResponse{}, &generic.APIError{
			Kind: generic.KindOtherAPIError, Message: "malformed token response", Status: resp.StatusCode, Err: err,
		}
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		m.metrics.TokenExchange(grant, generic.KindOtherAPIError.String())
		return tokenResponse{}, &generic.APIError{
			Kind:    generic.KindOtherAPIError,
			Message: "malformed token response",
			Status:  resp.StatusCode,
			Err:     errors.New("access_token or refresh_token missing"),
		}
	}

	m.metrics.TokenExchange(grant, "ok")
	return tok, nil
}
