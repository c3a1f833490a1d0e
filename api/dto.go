/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures exchanged with the browser extension. These
  types decouple the reconcile package from the wire contract, so the
  extension can evolve independently.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Reconciliation:
    ReconcileRequest, ColumnDTO, ReconcileResponse, ResultDTO, AnnotationDTO

  Authorization:
    RegisterAuthorizationRequest, AuthorizationStatusDTO

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - reconcile/result.go: Domain types
*/
package api

import (
	"errors"

	"github.com/warp/worktime-checker/generic"
	"github.com/warp/worktime-checker/reconcile"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ColumnDTO is one column scraped from the time table.
type ColumnDTO struct {
	// Date is "2006-01-02" or "2006/01/02"; empty for non-day columns.
	Date string `json:"date"`
	// ReportedMinutes wins over Reported when both are sent.
	ReportedMinutes *int   `json:"reported_minutes,omitempty"`
	Reported        string `json:"reported,omitempty"`
	ColSpan         int    `json:"col_span"`
	ClassName       string `json:"class_name"`
}

// ReconcileRequest is the body of POST /api/reconcile.
type ReconcileRequest struct {
	Columns []ColumnDTO `json:"columns"`
}

// AnnotationDTO is a marker shown in a cell.
type AnnotationDTO struct {
	Label string `json:"label"`
	Title string `json:"title"`
}

// ResultDTO is the outcome for one column, in request order.
type ResultDTO struct {
	Status        string          `json:"status"`
	WorkedMinutes int             `json:"worked_minutes"`
	DeltaMinutes  int             `json:"delta_minutes"`
	Annotations   []AnnotationDTO `json:"annotations"`
	Lines         []string        `json:"lines"`
	ColSpan       int             `json:"col_span"`
	ClassName     string          `json:"class_name"`
	Error         string          `json:"error,omitempty"`
	// Retryable is set on failed columns that may succeed on a re-run.
	Retryable bool `json:"retryable,omitempty"`
}

// ReconcileResponse wraps the results of one run.
type ReconcileResponse struct {
	RunID   string      `json:"run_id"`
	Message string      `json:"message"`
	Results []ResultDTO `json:"results"`
}

// RegisterAuthorizationRequest carries the URL of the provider page shown
// after the user granted access.
type RegisterAuthorizationRequest struct {
	URL string `json:"url"`
}

type AuthorizationStatusDTO struct {
	Authorized   bool   `json:"authorized"`
	AuthorizeURL string `json:"authorize_url"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
	// AuthURL is set when the user has to authorize again.
	AuthURL string `json:"auth_url,omitempty"`
	// Retryable tells the client that re-running the request unchanged may
	// succeed.
	Retryable bool `json:"retryable"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func (c ColumnDTO) toColumn() (reconcile.Column, error) {
	col := reconcile.Column{ColSpan: c.ColSpan, ClassName: c.ClassName}
	if c.Date != "" {
		d, err := generic.ParseDate(c.Date)
		if err != nil {
			return reconcile.Column{}, err
		}
		col.Date = d
	}
	if c.ReportedMinutes != nil {
		if *c.ReportedMinutes < 0 {
			return reconcile.Column{}, errors.New("reported_minutes must not be negative")
		}
		col.ReportedMinutes = *c.ReportedMinutes
	} else {
		col.ReportedMinutes = generic.ParseWorkingTime(c.Reported)
	}
	return col, nil
}

func toResultDTO(r reconcile.Result) ResultDTO {
	dto := ResultDTO{
		Status:        r.Status.String(),
		WorkedMinutes: r.WorkedMinutes,
		DeltaMinutes:  r.DeltaMinutes,
		Annotations:   []AnnotationDTO{},
		Lines:         r.Lines(),
		ColSpan:       r.Column.ColSpan,
		ClassName:     r.Column.ClassName,
	}
	if dto.Lines == nil {
		dto.Lines = []string{}
	}
	for _, a := range r.Annotations {
		dto.Annotations = append(dto.Annotations, AnnotationDTO{Label: a.Label, Title: a.Title})
	}
	if r.Err != nil {
		dto.Error = r.Err.Error()
		dto.Retryable = generic.IsRetryable(r.Err)
	}
	return dto
}
