package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/metrics"
	"github.com/bete/backend/internal/rentcycle"
)

// SweepResult counts what one sweep did.
type SweepResult struct {
	Checked  int
	Notified int
	Failed   int
}

// ReminderSweeper periodically pushes due-soon and overdue reminders. It
// implements suture.Service.
type ReminderSweeper struct {
	rentals   *RentalService
	reminders *ReminderService
	push      *Pusher
	cycle     Cycle
	interval  time.Duration
}

func NewReminderSweeper(rentals *RentalService, reminders *ReminderService, push *Pusher, cycle Cycle, interval time.Duration) *ReminderSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReminderSweeper{
		rentals:   rentals,
		reminders: reminders,
		push:      push,
		cycle:     cycle,
		interval:  interval,
	}
}

// Serve sweeps once on start and then on every tick until ctx is done.
func (s *ReminderSweeper) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.interval).Msg("reminder sweeper started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			logging.Error().Err(err).Msg("reminder sweep failed")
		}
		select {
		case <-ctx.Done():
			logging.Info().Msg("reminder sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *ReminderSweeper) String() string {
	return "reminder-sweeper"
}

// RunOnce checks every candidate rental and custom reminder once.
func (s *ReminderSweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	var res SweepResult
	now := s.cycle.now()
	loc := s.cycle.loc()

	rentals, err := s.rentals.DueForNotification(ctx)
	if err != nil {
		return res, fmt.Errorf("load rentals: %w", err)
	}
	for i := range rentals {
		r := &rentals[i]
		res.Checked++
		st := s.cycle.classify(r.NextDueDate, r.CycleDays)
		if r.TenantID == nil || !rentcycle.NeedsNotification(st, r.LastNotifiedAt, now, loc) {
			continue
		}
		if _, err := s.push.NotifyUser(ctx, *r.TenantID, RentalNotification(r, st)); err != nil {
			res.Failed++
			metrics.RemindersSent.WithLabelValues("rental", "error").Inc()
			logging.Warn().Err(err).Str("rental_id", r.ID).Msg("rental reminder push failed")
			continue
		}
		if err := s.rentals.MarkNotified(ctx, r.ID, now); err != nil {
			return res, err
		}
		res.Notified++
		metrics.RemindersSent.WithLabelValues("rental", "sent").Inc()
	}

	reminders, err := s.reminders.DueForNotification(ctx)
	if err != nil {
		return res, fmt.Errorf("load reminders: %w", err)
	}
	for i := range reminders {
		rem := &reminders[i]
		res.Checked++
		st := s.cycle.classify(rem.DueDate, 0)
		if !rentcycle.NeedsNotification(st, rem.LastNotifiedAt, now, loc) {
			continue
		}
		if _, err := s.push.NotifyUser(ctx, rem.UserID, ReminderNotification(rem, st)); err != nil {
			res.Failed++
			metrics.RemindersSent.WithLabelValues("reminder", "error").Inc()
			logging.Warn().Err(err).Str("reminder_id", rem.ID).Msg("reminder push failed")
			continue
		}
		if err := s.reminders.MarkNotified(ctx, rem.ID, now); err != nil {
			return res, err
		}
		res.Notified++
		metrics.RemindersSent.WithLabelValues("reminder", "sent").Inc()
	}

	logging.Info().
		Int("checked", res.Checked).
		Int("notified", res.Notified).
		Int("failed", res.Failed).
		Dur("took", time.Since(start)).
		Msg("reminder sweep done")
	return res, nil
}
