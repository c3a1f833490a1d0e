package reconcile

import (
	"fmt"
	"strings"

	"github.com/warp/worktime-checker/generic"
)

// =============================================================================
// INPUT
// =============================================================================

// Column is one column of the external time table.
type Column struct {
	// Date is zero for columns that are not a day (e.g. the summary column).
	Date            generic.Date
	ReportedMinutes int
	ColSpan         int
	ClassName       string
}

// =============================================================================
// OUTPUT
// =============================================================================

type Status int

const (
	StatusSkipped Status = iota
	StatusMatched
	StatusMismatched
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusMatched:
		return "matched"
	case StatusMismatched:
		return "mismatched"
	case StatusFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Annotation is a marker attached to a day, with the text that explains it.
type Annotation struct {
	Label string
	Title string
}

// Result is the outcome for one column. Results are never mutated after Run
// returns them.
type Result struct {
	Column        Column
	Status        Status
	WorkedMinutes int
	// DeltaMinutes is reported - worked; positive means the table
	// over-reports.
	DeltaMinutes int
	Annotations  []Annotation
	// Err is set only for StatusFailed.
	Err error
}

// Lines renders the result as the rows shown in the table cell.
func (r Result) Lines() []string {
	var lines []string
	switch r.Status {
	case StatusMatched:
		lines = []string{"✔"}
	case StatusMismatched:
		sign := "+"
		if r.DeltaMinutes > 0 {
			sign = "-"
		}
		lines = []string{
			"❌",
			generic.FormatMinutes(r.WorkedMinutes),
			fmt.Sprintf("(%s%s)", sign, generic.FormatMinutes(r.DeltaMinutes)),
		}
	default:
		return nil
	}

	if len(r.Annotations) > 0 {
		var b strings.Builder
		for _, a := range r.Annotations {
			b.WriteString(a.Label)
		}
		lines = append(lines, b.String())
	}
	return lines
}

// EmployeeNotFoundError means the signed-in user has no membership in the
// configured company.
type EmployeeNotFoundError struct {
	CompanyID generic.CompanyID
}

func (e *EmployeeNotFoundError) Error() string {
	return fmt.Sprintf("no employee found for company %s", e.CompanyID)
}
