package generic

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar day used as the key of a table column
// =============================================================================

// Date is a calendar day. The zero value means "no date" (e.g. the summary
// column of the time table).
type Date struct {
	Time time.Time
}

const (
	isoLayout   = "2006-01-02"
	slashLayout = "2006/01/02"
)

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts both the provider layout (2006-01-02) and the layout used
// in the time table's column titles (2006/01/02).
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	layout := isoLayout
	if strings.Contains(s, "/") {
		layout = slashLayout
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) After(other Date) bool { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool { return d.Time.Equal(other.Time) }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }
func (d Date) IsZero() bool      { return d.Time.IsZero() }

// String formats the date the way the attendance API expects it in paths.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(isoLayout)
}
