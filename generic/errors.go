/*
errors.go - Centralized error types for the working-time checker

PURPOSE:
  All errors crossing the provider boundary are classified into one of four
  kinds. Callers branch on the kind, never on message text.

ERROR KINDS:
  1. AuthenticationFailed - Refresh token missing/rejected, or access token
     rejected by the API. Recovered only by re-running the authorization flow.
     The only kind that invalidates stored credentials.
  2. NetworkError - The request could not be completed at the transport level.
  3. OtherAPIError - Any other non-200 answer (rate limiting, validation...).
  4. UnrelatedAuthorizationPage - A redirect that belongs to another client.

USAGE:
  if errors.Is(err, generic.ErrAuthenticationFailed) {
      // prompt for re-authorization
  }

  var apiErr *generic.APIError
  if errors.As(err, &apiErr) {
      log.Println(apiErr.Status, apiErr.Code)
  }

SEE ALSO:
  - oauth/manager.go: token endpoint classification
  - attendance/client.go: API call classification
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrAuthenticationFailed       = errors.New("authentication failed")
	ErrNetwork                    = errors.New("network error")
	ErrOtherAPI                   = errors.New("api error")
	ErrUnrelatedAuthorizationPage = errors.New("unrelated authorization page")
)

// ErrorKind tags an APIError.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuthenticationFailed
	KindNetworkError
	KindOtherAPIError
	KindUnrelatedAuthorizationPage
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindNetworkError:
		return "network_error"
	case KindOtherAPIError:
		return "api_error"
	case KindUnrelatedAuthorizationPage:
		return "unrelated_authorization_page"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAuthenticationFailed:
		return ErrAuthenticationFailed
	case KindNetworkError:
		return ErrNetwork
	case KindOtherAPIError:
		return ErrOtherAPI
	case KindUnrelatedAuthorizationPage:
		return ErrUnrelatedAuthorizationPage
	default:
		return nil
	}
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// APIError is a classified failure talking to the token endpoint or the
// attendance API.
type APIError struct {
	Kind    ErrorKind
	Message string

	// Status is the HTTP status code when a response was received.
	Status int
	// Code and Detail are the provider-supplied error code and message.
	Code   string
	Detail string

	// Err is the underlying cause (transport error, decode error...).
	Err error
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.Status)
	}
	if e.Code != "" || e.Detail != "" {
		msg = fmt.Sprintf("%s (%s: %s)", msg, dash(e.Code), dash(e.Detail))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *APIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Constructors

func AuthenticationFailed(message string) *APIError {
	return &APIError{Kind: KindAuthenticationFailed, Message: message}
}

func NetworkError(message string, cause error) *APIError {
	return &APIError{Kind: KindNetworkError, Message: message, Err: cause}
}

func OtherAPIError(message string, status int) *APIError {
	return &APIError{Kind: KindOtherAPIError, Message: message, Status: status}
}

func UnrelatedAuthorizationPage(message string) *APIError {
	return &APIError{Kind: KindUnrelatedAuthorizationPage, Message: message}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf returns the kind of the first APIError in err's chain.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsAuthenticationFailed reports whether err requires re-authorization.
func IsAuthenticationFailed(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

// IsRetryable reports whether re-running the whole operation might succeed
// without user action.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
