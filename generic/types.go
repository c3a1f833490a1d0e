/*
Package generic provides the shared vocabulary of the working-time checker.

PURPOSE:
  Types used by every other package: calendar dates, minute arithmetic and
  formatting, the paid-holiday ratio, the attendance record with its derived
  worked minutes, the API error taxonomy and the credential store contract.

KEY CONCEPTS IN THIS FILE (types.go):
  - HolidayRatio: Fraction of a day recorded as paid leave (0, 0.5, 1.0)
  - AttendanceRecord: Raw clock-in/clock-out/break data for one employee-day
  - WorkedMinutes: (clock-out - clock-in) - sum(breaks), 0 when incomplete
  - Minutes formatting: "7h 30m" both ways

DESIGN PRINCIPLES:
  1. Precision: HolidayRatio uses decimal.Decimal so 0.5 compares exactly
  2. Zero on absence: a missing clock-in/out yields 0 minutes, never an error
  3. Immutability: records are fetched fresh per run and never cached

SEE ALSO:
  - time.go: Date
  - errors.go: API error taxonomy
  - store.go: CredentialStore
*/
package generic

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID int64
type CompanyID int64

func (id EmployeeID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id CompanyID) String() string  { return strconv.FormatInt(int64(id), 10) }

// =============================================================================
// HOLIDAY RATIO - Paid leave share of a day
// =============================================================================

// HolidayRatio is the fraction of a day recorded as paid leave.
type HolidayRatio struct {
	Value decimal.Decimal
}

var (
	half = decimal.NewFromFloat(0.5)
	one  = decimal.NewFromInt(1)
)

func NewHolidayRatio(v float64) HolidayRatio {
	return HolidayRatio{Value: decimal.NewFromFloat(v)}
}

func (r HolidayRatio) IsZero() bool { return r.Value.IsZero() }
func (r HolidayRatio) IsHalf() bool { return r.Value.Equal(half) }
func (r HolidayRatio) IsFull() bool { return r.Value.Equal(one) }

func (r HolidayRatio) String() string { return r.Value.String() }

// UnmarshalJSON accepts a JSON number, a numeric string or null (zero).
func (r *HolidayRatio) UnmarshalJSON(b []byte) error {
	var nd decimal.NullDecimal
	if err := nd.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("invalid holiday ratio: %w", err)
	}
	if !nd.Valid {
		r.Value = decimal.Zero
		return nil
	}
	r.Value = nd.Decimal
	return nil
}

// =============================================================================
// ATTENDANCE RECORD - One employee, one day
// =============================================================================

// Break is one break interval inside a working day.
type Break struct {
	ClockIn  *time.Time
	ClockOut *time.Time
}

// AttendanceRecord is the raw attendance data for one employee and date.
type AttendanceRecord struct {
	Date        Date
	ClockIn     *time.Time
	ClockOut    *time.Time
	Breaks      []Break
	Note        string
	PaidHoliday HolidayRatio
}

// WorkedMinutes returns the minutes worked on the day. A record without both
// clock-in and clock-out contributes 0; so does an incomplete break.
func (r AttendanceRecord) WorkedMinutes() int {
	if r.ClockIn == nil || r.ClockOut == nil {
		return 0
	}
	worked := minutesBetween(*r.ClockIn, *r.ClockOut)
	for _, b := range r.Breaks {
		if b.ClockIn == nil || b.ClockOut == nil {
			continue
		}
		worked -= minutesBetween(*b.ClockIn, *b.ClockOut)
	}
	return worked
}

// minutesBetween truncates toward zero, like a whole-minute diff.
func minutesBetween(from, to time.Time) int {
	return int(to.Sub(from) / time.Minute)
}

// =============================================================================
// MINUTES - "7h 30m" formatting used by the time table
// =============================================================================

// FormatMinutes renders minutes as "<h>h <m>m", omitting hours when zero.
// Negative input is formatted by magnitude; callers add their own sign.
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = -minutes
	}
	hours := minutes / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes%60)
}

// ParseWorkingTime parses the time table's total cell ("1d 7h 30m" style
// tokens separated by spaces). Only h and m units count; anything else is
// ignored, matching how the table renders totals.
func ParseWorkingTime(text string) int {
	total := 0
	for _, tok := range strings.Fields(text) {
		if len(tok) < 2 {
			continue
		}
		unit := tok[len(tok)-1]
		n, err := strconv.ParseFloat(tok[:len(tok)-1], 64)
		if err != nil {
			continue
		}
		switch unit {
		case 'h':
			total += int(n * 60)
		case 'm':
			total += int(n)
		}
	}
	return total
}
