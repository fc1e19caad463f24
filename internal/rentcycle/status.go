// Package rentcycle computes how close a rent due date is and where it moves
// once rent is paid.
//
// All day arithmetic happens on local calendar days: both instants are
// truncated to midnight in the caller's location before they are compared, so
// a daylight-saving shift between "today" and the due date never produces an
// off-by-one.
package rentcycle

import (
	"fmt"
	"math"
	"time"
)

// Band is the urgency bucket of a due date.
type Band string

const (
	BandUnknown  Band = "unknown"
	BandActive   Band = "active"
	BandDueSoon  Band = "due_soon"
	BandDueToday Band = "due_today"
	BandOverdue  Band = "overdue"
)

const (
	// DefaultCycleDays is the length of one rent cycle.
	DefaultCycleDays = 30
	// DueSoonDays is the largest day count still reported as due soon.
	DueSoonDays = 3
)

const hoursPerDay = 24

// Status is the classification of one due date relative to "today".
type Status struct {
	Band Band `json:"band"`
	// Days is due minus today in whole local days. Negative when overdue.
	Days     int     `json:"daysUntilDue"`
	DaysLate int     `json:"daysLate"`
	Label    string  `json:"label"`
	Progress float64 `json:"progress"`
}

// Known reports whether the due date could be classified at all.
func (s Status) Known() bool {
	return s.Band != "" && s.Band != BandUnknown
}

// DueSoon is true for the due-soon window, today included.
func (s Status) DueSoon() bool {
	return s.Band == BandDueSoon || s.Band == BandDueToday
}

func (s Status) Overdue() bool {
	return s.Band == BandOverdue
}

// Neutral is returned for due dates that cannot be read.
func Neutral() Status {
	return Status{Band: BandUnknown, Label: "No due date"}
}

// Midnight returns the start of t's calendar day in loc. A nil loc means time.Local.
func Midnight(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DaysUntil returns the number of local calendar days from today to due.
func DaysUntil(today, due time.Time, loc *time.Location) int {
	diff := Midnight(due, loc).Sub(Midnight(today, loc))
	return int(math.Round(diff.Hours() / hoursPerDay))
}

// Classify places due into a band using the default cycle length for progress.
func Classify(due, now time.Time, loc *time.Location) Status {
	return ClassifyCycle(due, now, loc, DefaultCycleDays)
}

// ClassifyCycle is Classify with an explicit cycle length.
func ClassifyCycle(due, now time.Time, loc *time.Location, cycleDays int) Status {
	if due.IsZero() {
		return Neutral()
	}
	if cycleDays <= 0 {
		cycleDays = DefaultCycleDays
	}

	days := DaysUntil(now, due, loc)
	st := Status{Days: days}
	switch {
	case days < 0:
		st.Band = BandOverdue
		st.DaysLate = -days
	case days == 0:
		st.Band = BandDueToday
	case days <= DueSoonDays:
		st.Band = BandDueSoon
	default:
		st.Band = BandActive
	}
	st.Label = label(st)
	st.Progress = progress(days, cycleDays)
	return st
}

// ClassifyString parses raw and classifies it. Unreadable input yields Neutral.
func ClassifyString(raw string, now time.Time, loc *time.Location) Status {
	due, err := ParseDue(raw, loc)
	if err != nil {
		return Neutral()
	}
	return Classify(due, now, loc)
}

func label(st Status) string {
	switch st.Band {
	case BandOverdue:
		if st.DaysLate == 1 {
			return "1 day overdue"
		}
		return fmt.Sprintf("%d days overdue", st.DaysLate)
	case BandDueToday:
		return "Due today"
	}
	if st.Days == 1 {
		return "Due tomorrow"
	}
	return fmt.Sprintf("Due in %d days", st.Days)
}

func progress(days, cycleDays int) float64 {
	left := math.Max(0, float64(days))
	return 1 - math.Min(1, left/float64(cycleDays))
}
