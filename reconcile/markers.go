package reconcile

import (
	"strings"

	"github.com/warp/worktime-checker/generic"
)

// NoteRule adds Marker when the day's note contains Needle.
type NoteRule struct {
	Needle string `json:"needle"`
	Marker string `json:"marker"`
}

var holidayMarkers = []string{
	"🌷", "✨", "🍜", "🍰", "⚽️", "⛳️", "🎸", "🎲", "🎮", "🛫", "🚀", "🚢",
	"🗿", "🗽", "⛲️", "🏰", "🏯", "🎡", "⛺️", "🎈", "💤", "🎨", "🛀",
}

const (
	HalfDayMarker = "🌛"

	fullDayTitle = "paid holiday"
	halfDayTitle = "half-day paid holiday"
)

// HolidayMarker picks the full-day marker for date. The choice is stable per
// calendar date.
func HolidayMarker(date generic.Date) string {
	monthIndex := int(date.Month()) - 1
	return holidayMarkers[(monthIndex*31+date.Day())%len(holidayMarkers)]
}

// annotate lists note markers in rule order, then the holiday marker.
func annotate(rules []NoteRule, rec generic.AttendanceRecord) []Annotation {
	var out []Annotation
	for _, rule := range rules {
		if rule.Needle != "" && strings.Contains(rec.Note, rule.Needle) {
			out = append(out, Annotation{Label: rule.Marker, Title: rule.Needle})
		}
	}
	switch {
	case rec.PaidHoliday.IsFull():
		out = append(out, Annotation{Label: HolidayMarker(rec.Date), Title: fullDayTitle})
	case rec.PaidHoliday.IsHalf():
		out = append(out, Annotation{Label: HalfDayMarker, Title: halfDayTitle})
	}
	return out
}
