package services

import (
	"time"

	"github.com/bete/backend/internal/rentcycle"
)

// Cycle carries the rent-cycle settings shared by rentals, reminders and the sweeper.
type Cycle struct {
	Rollover  string
	CycleDays int
	Location  *time.Location
	// Now overrides the clock in tests.
	Now func() time.Time
}

func (c Cycle) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Cycle) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func (c Cycle) days(override int) int {
	switch {
	case override > 0:
		return override
	case c.CycleDays > 0:
		return c.CycleDays
	}
	return rentcycle.DefaultCycleDays
}

// next rolls due forward one cycle, computed on the local calendar.
func (c Cycle) next(due time.Time, cycleDays int) time.Time {
	policy, err := rentcycle.PolicyFor(c.Rollover, c.days(cycleDays))
	if err != nil {
		policy = rentcycle.DefaultPolicy
	}
	return policy.Next(due.In(c.loc())).UTC()
}

func (c Cycle) classify(due time.Time, cycleDays int) rentcycle.Status {
	return rentcycle.ClassifyCycle(due, c.now(), c.loc(), c.days(cycleDays))
}

// parseDue parses a client due date as local midnight, stored in UTC.
func (c Cycle) parseDue(raw string) (time.Time, error) {
	t, err := rentcycle.ParseDue(raw, c.loc())
	if err != nil {
		return time.Time{}, ErrInvalidDueDate
	}
	return rentcycle.Midnight(t, c.loc()).UTC(), nil
}
