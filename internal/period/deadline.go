package period

import (
	"errors"
	"time"
)

var ErrDeadlinePassed = errors.New("challenge deadline has passed")

// DeadlineMomentUTC is the single absolute instant a deadline challenge ends:
// dueTimeLocal on deadlineDate in zone.
func DeadlineMomentUTC(zone, deadlineDate, dueTimeLocal string) (time.Time, error) {
	return DueMomentUTCForDay(zone, deadlineDate, dueTimeLocal)
}

// IsDeadlinePassed reports whether now is at or after the deadline. A missing or
// malformed deadline never passes.
func IsDeadlinePassed(zone, deadlineDate, dueTimeLocal string, now time.Time) bool {
	deadline, err := DeadlineMomentUTC(zone, deadlineDate, dueTimeLocal)
	if err != nil {
		return false
	}
	return !now.Before(deadline)
}
