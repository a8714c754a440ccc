package period

import (
	"time"

	"strikeOutAPI/internal/timezone"
	"strikeOutAPI/internal/types/challenge"
	"strikeOutAPI/internal/types/checkin"
)

// Window is the cadence period a challenge is in at a given instant.
type Window struct {
	Zone     string                `json:"zone"`
	Unit     challenge.CadenceUnit `json:"unit"`
	Key      string                `json:"key"`
	OpensAt  time.Time             `json:"opensAt"`
	ClosesAt time.Time             `json:"closesAt"`
}

// Current returns the cadence window for ch at now.
func Current(ch challenge.Challenge, now time.Time) Window {
	ch = ch.WithDefaults()
	zone := timezone.ResolveAdminTimeZone(ch)
	w := Window{Zone: zone, Unit: ch.Cadence.Unit}

	if ch.Cadence.Unit == challenge.CadenceWeekly {
		w.Key = CurrentWeekKey(zone, ch.Cadence.WeekStartsOn, now)
		w.OpensAt, _ = WeekOpenMomentUTC(zone, w.Key)
		w.ClosesAt, _ = WeekCloseMomentUTC(zone, w.Key)
		return w
	}

	w.Key = CurrentDayKey(zone, ch.Due.DueTimeLocal, now)
	w.OpensAt, _ = PeriodOpenMomentUTC(zone, w.Key, ch.Due.DueTimeLocal)
	w.ClosesAt, _ = PeriodCloseMomentUTC(zone, w.Key, ch.Due.DueTimeLocal)
	return w
}

// SubmissionPeriod returns the period a check-in written at now must be stamped
// with. It agrees with CurrentDayKey and CurrentWeekKey at the same instant.
func SubmissionPeriod(ch challenge.Challenge, now time.Time) (checkin.Period, error) {
	ch = ch.WithDefaults()
	zone := timezone.ResolveAdminTimeZone(ch)

	if ch.Type == challenge.TypeDeadline && IsDeadlinePassed(zone, ch.Due.DeadlineDate, ch.Due.DueTimeLocal, now) {
		return checkin.Period{}, ErrDeadlinePassed
	}

	p := checkin.Period{
		Unit:   ch.Cadence.Unit,
		DayKey: CurrentDayKey(zone, ch.Due.DueTimeLocal, now),
	}
	if ch.Cadence.Unit == challenge.CadenceWeekly {
		p.WeekKey = CurrentWeekKey(zone, ch.Cadence.WeekStartsOn, now)
	}
	return p, nil
}

// NextBoundary returns the next instant that matters to a member of ch: the
// deadline for deadline challenges, the interval close for progress challenges,
// and the current window close otherwise.
func NextBoundary(ch challenge.Challenge, now time.Time) time.Time {
	ch = ch.WithDefaults()
	w := Current(ch, now)

	switch ch.Type {
	case challenge.TypeDeadline:
		if deadline, err := DeadlineMomentUTC(w.Zone, ch.Due.DeadlineDate, ch.Due.DueTimeLocal); err == nil {
			return deadline
		}
	case challenge.TypeProgress:
		dayKey := CurrentDayKey(w.Zone, ch.Due.DueTimeLocal, now)
		iv, ok := IntervalFor(ch.StartDate, dayKey, ch.Progression.DurationDays, ch.Cadence.RequiredCount, ch.Progression.Increment)
		if ok {
			if closes, err := IntervalCloseMomentUTC(w.Zone, iv, ch.Due.DueTimeLocal); err == nil {
				return closes
			}
		}
	}
	return w.ClosesAt
}

// TimeRemaining is the duration until NextBoundary, never negative.
func TimeRemaining(ch challenge.Challenge, now time.Time) time.Duration {
	d := NextBoundary(ch, now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Snapshot is a period key cached together with the instant it stops being valid.
type Snapshot struct {
	Window     Window
	ValidUntil time.Time
}

// Valid reports whether the cached window still applies at now.
func (s Snapshot) Valid(now time.Time) bool {
	return s.Window.Key != "" && !now.Before(s.Window.OpensAt) && now.Before(s.ValidUntil)
}

// Take computes a fresh snapshot for ch at now.
func Take(ch challenge.Challenge, now time.Time) Snapshot {
	w := Current(ch, now)
	return Snapshot{Window: w, ValidUntil: w.ClosesAt}
}
