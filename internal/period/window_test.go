package period

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strikeOutAPI/internal/types/challenge"
)

func dailyChallenge(zone, due string) challenge.Challenge {
	return challenge.Challenge{
		ID:      uuid.New(),
		Type:    challenge.TypeElimination,
		Cadence: challenge.Cadence{Unit: challenge.CadenceDaily, RequiredCount: 1},
		Due: challenge.Due{
			DueTimeLocal: due,
			TimezoneMode: challenge.TimezoneFixed,
			Timezone:     zone,
		},
	}
}

func TestSubmissionPeriod_MatchesCurrentKey(t *testing.T) {
	daily := dailyChallenge("Asia/Tokyo", "09:00")
	weekly := dailyChallenge("Europe/Berlin", "18:30")
	weekly.Cadence = challenge.Cadence{Unit: challenge.CadenceWeekly, RequiredCount: 3, WeekStartsOn: 1}

	start := mustTime(t, "2025-10-20T00:00:00Z")
	for ts := start; ts.Before(start.Add(15 * 24 * time.Hour)); ts = ts.Add(37 * time.Minute) {
		p, err := SubmissionPeriod(daily, ts)
		require.NoError(t, err)
		assert.Equal(t, CurrentDayKey("Asia/Tokyo", "09:00", ts), p.DayKey)
		assert.Empty(t, p.WeekKey)
		assert.Equal(t, p.DayKey, p.Key())

		p, err = SubmissionPeriod(weekly, ts)
		require.NoError(t, err)
		assert.Equal(t, CurrentWeekKey("Europe/Berlin", 1, ts), p.WeekKey)
		assert.Equal(t, p.WeekKey, p.Key())
	}
}

func TestSubmissionPeriod_DeadlinePassed(t *testing.T) {
	ch := dailyChallenge("UTC", "23:59")
	ch.Type = challenge.TypeDeadline
	ch.Due.DeadlineDate = "2025-06-01"

	_, err := SubmissionPeriod(ch, mustTime(t, "2025-06-01T23:58:59Z"))
	assert.NoError(t, err)

	_, err = SubmissionPeriod(ch, mustTime(t, "2025-06-02T00:00:00Z"))
	assert.ErrorIs(t, err, ErrDeadlinePassed)
}

func TestCurrent_Window(t *testing.T) {
	ch := dailyChallenge(newYork, "21:00")
	now := mustTime(t, "2025-06-11T00:00:00Z")

	w := Current(ch, now)
	assert.Equal(t, newYork, w.Zone)
	assert.Equal(t, challenge.CadenceDaily, w.Unit)
	assert.Equal(t, "2025-06-09", w.Key)
	assert.Equal(t, mustTime(t, "2025-06-10T01:00:00Z"), w.OpensAt)
	assert.Equal(t, mustTime(t, "2025-06-11T01:00:00Z"), w.ClosesAt)
	assert.Equal(t, time.Hour, TimeRemaining(ch, now))
}

func TestNextBoundary_ByType(t *testing.T) {
	now := mustTime(t, "2025-06-03T12:00:00Z")

	deadline := dailyChallenge("UTC", "23:59")
	deadline.Type = challenge.TypeDeadline
	deadline.Due.DeadlineDate = "2025-06-20"
	assert.Equal(t, mustTime(t, "2025-06-20T23:59:00Z"), NextBoundary(deadline, now))

	progress := dailyChallenge("UTC", "23:59")
	progress.Type = challenge.TypeProgress
	progress.StartDate = "2025-06-01"
	progress.Progression = challenge.Progression{DurationDays: 7}
	assert.Equal(t, mustTime(t, "2025-06-08T23:59:00Z"), NextBoundary(progress, now))

	weekly := dailyChallenge("UTC", "23:59")
	weekly.Cadence = challenge.Cadence{Unit: challenge.CadenceWeekly, WeekStartsOn: 1}
	assert.Equal(t, mustTime(t, "2025-06-09T00:00:00Z"), NextBoundary(weekly, now))
}

func TestTimeRemaining_NeverNegative(t *testing.T) {
	ch := dailyChallenge("UTC", "23:59")
	ch.Type = challenge.TypeDeadline
	ch.Due.DeadlineDate = "2025-06-01"
	assert.Equal(t, time.Duration(0), TimeRemaining(ch, mustTime(t, "2025-07-01T00:00:00Z")))
}

func TestSnapshot_ExpiresAtClose(t *testing.T) {
	ch := dailyChallenge(newYork, "21:00")
	now := mustTime(t, "2025-06-11T00:00:00Z")

	snap := Take(ch, now)
	assert.True(t, snap.Valid(now))
	assert.True(t, snap.Valid(snap.ValidUntil.Add(-time.Nanosecond)))
	assert.False(t, snap.Valid(snap.ValidUntil))
	assert.False(t, snap.Valid(snap.Window.OpensAt.Add(-time.Second)))
	assert.False(t, Snapshot{}.Valid(now))
}
