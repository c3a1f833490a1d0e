/*
store.go - Persistence and transport contracts

PURPOSE:
  Defines the two capabilities the core consumes from its environment:
  a durable home for exactly one secret (the refresh token) and a generic
  HTTP call capability. Both are injected, never reached through globals,
  so tests can swap in fakes.

KEY INTERFACES:
  CredentialStore: get/set/delete of one secret under a fixed name
  HTTPDoer:        one request in, one response (or transport error) out

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Durable SQLite store (survives restarts)
  - generic/store/memory.go: In-memory for testing
  - *http.Client satisfies HTTPDoer

SEE ALSO:
  - oauth/manager.go: Only writer of the refresh token
*/
package generic

import (
	"context"
	"net/http"
)

// =============================================================================
// CREDENTIAL STORE
// =============================================================================

// CredentialStore persists one secret.
type CredentialStore interface {
	// Get returns the stored value; ok is false when nothing is stored.
	Get(ctx context.Context) (value string, ok bool, err error)

	// Set stores value, replacing any previous one.
	Set(ctx context.Context, value string) error

	// Delete removes the value. Deleting an absent value is not an error.
	Delete(ctx context.Context) error
}

// RefreshTokenKey is the fixed name the refresh token is stored under.
const RefreshTokenKey = "RefreshToken"

// =============================================================================
// TRANSPORT
// =============================================================================

// HTTPDoer performs a single HTTP exchange. A non-nil error means no response
// was received; any status code, including 5xx, comes back as a response.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
