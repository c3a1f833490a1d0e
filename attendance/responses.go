package attendance

import (
	"errors"
	"time"

	"github.com/warp/worktime-checker/generic"
)

// Typed shapes of the provider responses. Only the fields this service reads
// are declared; pointers mark fields whose absence must be detected.

type meResponse struct {
	ID        *int64               `json:"id"`
	Companies *[]companyMembership `json:"companies"`
}

type companyMembership struct {
	ID         *int64 `json:"id"`
	Name       string `json:"name"`
	EmployeeID *int64 `json:"employee_id"`
}

type workRecordResponse struct {
	Date         string               `json:"date"`
	ClockInAt    *time.Time           `json:"clock_in_at"`
	ClockOutAt   *time.Time           `json:"clock_out_at"`
	BreakRecords []breakRecord        `json:"break_records"`
	Note         string               `json:"note"`
	PaidHoliday  generic.HolidayRatio `json:"paid_holiday"`
}

type breakRecord struct {
	ClockInAt  *time.Time `json:"clock_in_at"`
	ClockOutAt *time.Time `json:"clock_out_at"`
}

// providerError is the error body the API sends with non-200 answers.
type providerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errMissingField = errors.New("required field missing")

// employeeFor returns the employee id of the membership in company.
func (r meResponse) employeeFor(company generic.CompanyID) (generic.EmployeeID, bool, error) {
	if r.Companies == nil {
		return 0, false, errMissingField
	}
	for _, c := range *r.Companies {
		if c.ID == nil {
			return 0, false, errMissingField
		}
		if generic.CompanyID(*c.ID) != company {
			continue
		}
		if c.EmployeeID == nil {
			return 0, false, errMissingField
		}
		return generic.EmployeeID(*c.EmployeeID), true, nil
	}
	return 0, false, nil
}

func (r workRecordResponse) toRecord(date generic.Date) generic.AttendanceRecord {
	rec := generic.AttendanceRecord{
		Date:        date,
		ClockIn:     r.ClockInAt,
		ClockOut:    r.ClockOutAt,
		Note:        r.Note,
		PaidHoliday: r.PaidHoliday,
	}
	for _, b := range r.BreakRecords {
		rec.Breaks = append(rec.Breaks, generic.Break{ClockIn: b.ClockInAt, ClockOut: b.ClockOutAt})
	}
	return rec
}
