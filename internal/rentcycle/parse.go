package rentcycle

import (
	"errors"
	"strings"
	"time"
)

var ErrUnparseableDue = errors.New("unparseable due date")

// DateLayout is the wire format for date-only due dates.
const DateLayout = "2006-01-02"

// Fractional seconds (toISOString's ".000Z") are accepted by every layout.
var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDue reads a due date. Date-only values are placed at midnight in loc;
// full timestamps keep their own offset.
func ParseDue(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrUnparseableDue
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(DateLayout, raw, loc); err == nil {
		return t, nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparseableDue
}

// FormatDue renders the local calendar day of t.
func FormatDue(t time.Time, loc *time.Location) string {
	return Midnight(t, loc).Format(DateLayout)
}
