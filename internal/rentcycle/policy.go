package rentcycle

import (
	"fmt"
	"time"
)

const (
	RolloverFixed   = "fixed"
	RolloverMonthly = "monthly"
)

// Policy decides the next due date once the current one is paid.
type Policy interface {
	Next(due time.Time) time.Time
}

// FixedDays advances by a fixed number of calendar days, ignoring month length.
type FixedDays struct {
	Days int
}

func (p FixedDays) Next(due time.Time) time.Time {
	days := p.Days
	if days <= 0 {
		days = DefaultCycleDays
	}
	return due.AddDate(0, 0, days)
}

// SameDayNextMonth keeps the day of month, clamped to the last day of shorter months.
type SameDayNextMonth struct{}

func (SameDayNextMonth) Next(due time.Time) time.Time {
	y, m, d := due.Date()
	hh, mm, ss := due.Clock()
	first := time.Date(y, m+1, 1, hh, mm, ss, due.Nanosecond(), due.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

// PolicyFor maps a configured rollover name to a Policy.
func PolicyFor(name string, cycleDays int) (Policy, error) {
	switch name {
	case "", RolloverFixed:
		return FixedDays{Days: cycleDays}, nil
	case RolloverMonthly:
		return SameDayNextMonth{}, nil
	default:
		return nil, fmt.Errorf("unknown rollover policy %q", name)
	}
}

// DefaultPolicy is the fixed 30-day cycle.
var DefaultPolicy Policy = FixedDays{Days: DefaultCycleDays}
