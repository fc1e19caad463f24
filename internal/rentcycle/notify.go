package rentcycle

import "time"

// NeedsNotification reports whether a reminder push is due: the date is due
// soon, due today or overdue, and nothing was sent yet on now's local day.
func NeedsNotification(st Status, lastNotified *time.Time, now time.Time, loc *time.Location) bool {
	if !st.DueSoon() && !st.Overdue() {
		return false
	}
	if lastNotified == nil || lastNotified.IsZero() {
		return true
	}
	return !Midnight(*lastNotified, loc).Equal(Midnight(now, loc))
}
