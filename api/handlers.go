/*
handlers.go - HTTP API handlers for the working-time checker

PURPOSE:
  Exposes reconciliation and the OAuth authorization flow to the browser
  extension that owns the time table. Handles HTTP request/response and
  JSON serialization, and delegates to the reconcile and oauth packages.

ENDPOINTS:
  Reconciliation:
    POST   /api/reconcile              Compare table columns with attendance

  Authorization:
    POST   /api/oauth/authorization    Register the provider redirect URL
    GET    /api/oauth/status           Whether credentials are stored
    DELETE /api/oauth/credentials      Forget stored credentials

  Operations:
    GET    /healthz                    Liveness
    GET    /metrics                    Prometheus metrics

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine, manager)
  4. Serialize response
  5. Map errors to statuses by kind

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unrelated authorization page
  - 401: Re-authorization required (body carries auth_url)
  - 422: No employee in the configured company
  - 502: Provider answered with an error
  - 503: Provider unreachable
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/worktime-checker/generic"
	"github.com/warp/worktime-checker/obs"
	"github.com/warp/worktime-checker/reconcile"
)

const (
	maxBodyBytes = 1 << 20

	resultMessage = "Working time check (powered by freee API):"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Reconciler runs one reconciliation.
type Reconciler interface {
	Run(ctx context.Context, columns []reconcile.Column) ([]reconcile.Result, error)
}

// Authorizer is the slice of the token manager the API exposes.
type Authorizer interface {
	RegisterAuthorizationInfo(ctx context.Context, redirectURL string) error
	Invalidate(ctx context.Context) error
	HasCredentials(ctx context.Context) (bool, error)
	AuthorizeURL() string
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine Reconciler
	Auth   Authorizer
	Log    *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(engine Reconciler, auth Authorizer, log *zap.Logger) *Handler {
	return &Handler{Engine: engine, Auth: auth, Log: obs.OrNop(log)}
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// Reconcile compares the posted columns with the attendance records.
// POST /api/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	columns := make([]reconcile.Column, len(req.Columns))
	for i, c := range req.Columns {
		col, err := c.toColumn()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid column %d", i), err)
			return
		}
		columns[i] = col
	}

	runID := uuid.NewString()
	results, err := h.Engine.Run(reconcile.WithRunID(r.Context(), runID), columns)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := ReconcileResponse{
		RunID:   runID,
		Message: resultMessage,
		Results: make([]ResultDTO, len(results)),
	}
	for i, res := range results {
		resp.Results[i] = toResultDTO(res)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// AUTHORIZATION HANDLERS
// =============================================================================

// RegisterAuthorization exchanges the code carried by the posted URL.
// POST /api/oauth/authorization
func (h *Handler) RegisterAuthorization(w http.ResponseWriter, r *http.Request) {
	var req RegisterAuthorizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required", nil)
		return
	}

	if err := h.Auth.RegisterAuthorizationInfo(r.Context(), req.URL); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

// AuthorizationStatus reports whether a refresh token is stored.
// GET /api/oauth/status
func (h *Handler) AuthorizationStatus(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Auth.HasCredentials(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read credentials", err)
		return
	}
	writeJSON(w, http.StatusOK, AuthorizationStatusDTO{
		Authorized:   ok,
		AuthorizeURL: h.Auth.AuthorizeURL(),
	})
}

// DeleteCredentials forgets the stored refresh token.
// DELETE /api/oauth/credentials
func (h *Handler) DeleteCredentials(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Invalidate(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete credentials", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health is the liveness check.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// writeDomainError maps error kinds to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var notFound *reconcile.EmployeeNotFoundError
	switch {
	case generic.IsAuthenticationFailed(err):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "Authorization with the attendance provider is missing or invalid",
			Code:    "authentication_required",
			Details: err.Error(),
			AuthURL: h.Auth.AuthorizeURL(),
		})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "No employee found in the configured company", Code: "employee_not_found", Details: err.Error(),
		})
	case errors.Is(err, generic.ErrUnrelatedAuthorizationPage):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "The page does not belong to this application", Code: generic.KindUnrelatedAuthorizationPage.String(), Details: err.Error(),
		})
	case errors.Is(err, generic.ErrNetwork):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:     "Could not reach the attendance provider",
			Code:      generic.KindNetworkError.String(),
			Details:   err.Error(),
			Retryable: generic.IsRetryable(err),
		})
	case errors.Is(err, generic.ErrOtherAPI):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error: "The attendance provider returned an error", Code: generic.KindOtherAPIError.String(), Details: err.Error(),
		})
	default:
		h.Log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
