package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const newYork = "America/New_York"

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestCurrentDayKey_RollsOverAtDueInstant(t *testing.T) {
	// 21:00 EDT on 2025-06-10 is 01:00Z on 2025-06-11
	before := mustTime(t, "2025-06-11T00:59:59Z")
	at := mustTime(t, "2025-06-11T01:00:00Z")

	assert.Equal(t, "2025-06-09", CurrentDayKey(newYork, "21:00", before))
	assert.Equal(t, "2025-06-10", CurrentDayKey(newYork, "21:00", at))
}

func TestCurrentDayKey_Monotonic(t *testing.T) {
	start := mustTime(t, "2025-03-01T00:00:00Z")
	prev := CurrentDayKey(newYork, "21:00", start)
	rollovers := 0

	for ts := start; ts.Before(start.Add(40 * 24 * time.Hour)); ts = ts.Add(7 * time.Minute) {
		key := CurrentDayKey(newYork, "21:00", ts)
		require.GreaterOrEqual(t, key, prev, "key went backwards at %s", ts)
		if key != prev {
			next, err := AddDays(prev, 1)
			require.NoError(t, err)
			require.Equal(t, next, key, "key skipped a day at %s", ts)
			rollovers++
		}
		prev = key
	}
	assert.Equal(t, 40, rollovers)
}

func TestPeriodMoments_BracketInstant(t *testing.T) {
	zones := []string{"UTC", newYork, "Asia/Kolkata", "Australia/Lord_Howe", "Pacific/Auckland"}
	dues := []string{"00:00", "09:30", "21:00", "23:59"}
	start := mustTime(t, "2025-03-25T00:00:00Z")

	for _, zone := range zones {
		for _, due := range dues {
			for ts := start; ts.Before(start.Add(14 * 24 * time.Hour)); ts = ts.Add(53 * time.Minute) {
				key := CurrentDayKey(zone, due, ts)
				opens, err := PeriodOpenMomentUTC(zone, key, due)
				require.NoError(t, err)
				closes, err := PeriodCloseMomentUTC(zone, key, due)
				require.NoError(t, err)

				require.False(t, ts.Before(opens), "%s %s: %s opens after %s", zone, due, key, ts)
				require.True(t, ts.Before(closes), "%s %s: %s closes before %s", zone, due, key, ts)
			}
		}
	}
}

func TestPeriodLength_AcrossDST(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want time.Duration
	}{
		{name: "spring forward", key: "2025-03-08", want: 23 * time.Hour},
		{name: "fall back", key: "2025-11-01", want: 25 * time.Hour},
		{name: "ordinary day", key: "2025-06-10", want: 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opens, err := PeriodOpenMomentUTC(newYork, tt.key, "21:00")
			require.NoError(t, err)
			closes, err := PeriodCloseMomentUTC(newYork, tt.key, "21:00")
			require.NoError(t, err)
			assert.Equal(t, tt.want, closes.Sub(opens))
		})
	}
}

func TestDueMomentUTCForDay(t *testing.T) {
	got, err := DueMomentUTCForDay(newYork, "2025-01-15", "21:00")
	require.NoError(t, err)
	assert.Equal(t, mustTime(t, "2025-01-16T02:00:00Z"), got)

	got, err = DueMomentUTCForDay(newYork, "2025-07-15", "21:00")
	require.NoError(t, err)
	assert.Equal(t, mustTime(t, "2025-07-16T01:00:00Z"), got)

	_, err = DueMomentUTCForDay(newYork, "2025-7-15", "21:00")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestParseDueTime(t *testing.T) {
	tests := []struct {
		in   string
		want DueTime
	}{
		{"21:00", DueTime{21, 0}},
		{"7:05", DueTime{7, 5}},
		{" 00:00 ", DueTime{0, 0}},
		{"24:00", FallbackDueTime},
		{"12:60", FallbackDueTime},
		{"noon", FallbackDueTime},
		{"", FallbackDueTime},
		{"12:5", FallbackDueTime},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDueTime(tt.in), "ParseDueTime(%q)", tt.in)
	}
	assert.True(t, ValidDueTime("23:59"))
	assert.False(t, ValidDueTime("23:5"))
}

func TestCurrentDayKey_MalformedDueTimeUsesFallback(t *testing.T) {
	now := mustTime(t, "2025-06-10T23:58:00Z")
	assert.Equal(t, CurrentDayKey("UTC", "23:59", now), CurrentDayKey("UTC", "bogus", now))
	assert.Equal(t, "2025-06-09", CurrentDayKey("UTC", "bogus", now))
}

func TestLastClosedDayKey(t *testing.T) {
	now := mustTime(t, "2025-06-11T01:00:01Z")
	assert.Equal(t, "2025-06-09", LastClosedDayKey(newYork, "21:00", now))
}

func TestCurrentDayKey_UnknownZoneFallsBack(t *testing.T) {
	now := mustTime(t, "2025-06-10T12:00:00Z")
	assert.NotEmpty(t, CurrentDayKey("Mars/Olympus_Mons", "21:00", now))
}
