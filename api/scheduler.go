/*
scheduler.go - Background token keep-alive

PURPOSE:
  Periodically asks the token manager for an access token so the stored
  refresh token keeps rotating while the user is away. Refresh tokens that
  sit unused long enough expire on the provider side, which would force the
  user through the authorization page again.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Skips the check when no credentials are stored
  - An authentication failure is logged; the manager has already dropped
    the cached token and the next page load asks the user to authorize

CONFIGURATION:
  - CheckInterval: How often to check (default: 6 hours)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewTokenScheduler(manager, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - oauth/manager.go: GetAccessToken
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/worktime-checker/generic"
	"github.com/warp/worktime-checker/obs"
)

// DefaultCheckInterval is how often the scheduler touches the token.
const DefaultCheckInterval = 6 * time.Hour

// TokenKeeper is what the scheduler keeps alive.
type TokenKeeper interface {
	GetAccessToken(ctx context.Context) (string, error)
	HasCredentials(ctx context.Context) (bool, error)
}

// TokenScheduler refreshes the access token in the background.
type TokenScheduler struct {
	Tokens        TokenKeeper
	CheckInterval time.Duration
	Enabled       bool
	// Timeout bounds a single check.
	Timeout time.Duration

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewTokenScheduler creates a new scheduler.
func NewTokenScheduler(tokens TokenKeeper, log *zap.Logger) *TokenScheduler {
	return &TokenScheduler{
		Tokens:        tokens,
		CheckInterval: DefaultCheckInterval,
		Enabled:       true,
		Timeout:       30 * time.Second,
		log:           obs.OrNop(log).Named("scheduler"),
	}
}

// Start begins the scheduler. Calling it twice is a no-op.
func (ts *TokenScheduler) Start() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.Enabled || ts.CheckInterval <= 0 {
		ts.log.Info("disabled, not starting")
		return
	}
	if ts.ticker != nil {
		return
	}

	ts.ticker = time.NewTicker(ts.CheckInterval)
	ts.stop = make(chan struct{})
	ts.wg.Add(1)

	go ts.run(ts.ticker, ts.stop)

	ts.log.Info("started", zap.Duration("interval", ts.CheckInterval))
}

// Stop stops the scheduler and waits for a running check to finish.
func (ts *TokenScheduler) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.ticker != nil {
		ts.ticker.Stop()
		close(ts.stop)
		ts.wg.Wait()
		ts.ticker = nil
		ts.log.Info("stopped")
	}
}

func (ts *TokenScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ts.wg.Done()

	for {
		select {
		case <-ticker.C:
			ts.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow performs one check synchronously and reports whether a token was
// obtained.
func (ts *TokenScheduler) RunNow() bool {
	ctx, cancel := context.WithTimeout(context.Background(), ts.Timeout)
	defer cancel()

	ok, err := ts.Tokens.HasCredentials(ctx)
	if err != nil {
		ts.log.Error("failed to read credentials", zap.Error(err))
		return false
	}
	if !ok {
		ts.log.Debug("no credentials stored, skipping")
		return false
	}

	if _, err := ts.Tokens.GetAccessToken(ctx); err != nil {
		if generic.IsAuthenticationFailed(err) {
			ts.log.Warn("refresh token rejected, authorization required", zap.Error(err))
		} else {
			ts.log.Error("token refresh failed", zap.Error(err))
		}
		return false
	}
	ts.log.Debug("token is fresh")
	return true
}
