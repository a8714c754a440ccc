package period

import (
	"time"

	"strikeOutAPI/internal/timezone"
)

// CurrentWeekKey returns the key of the 7-day window containing now. Windows
// start at local midnight on weekStartsOn (0 = Sunday) and the key is that
// start date.
func CurrentWeekKey(zone string, weekStartsOn int, now time.Time) string {
	if weekStartsOn < 0 || weekStartsOn > 6 {
		weekStartsOn = 0
	}
	local := now.In(timezone.Location(zone))
	back := (int(local.Weekday()) - weekStartsOn + 7) % 7
	return civilKey(time.Date(local.Year(), local.Month(), local.Day()-back, 0, 0, 0, 0, time.UTC))
}

// WeekOpenMomentUTC is local midnight at the start of week weekKey.
func WeekOpenMomentUTC(zone, weekKey string) (time.Time, error) {
	return localMidnight(zone, weekKey, 0)
}

// WeekCloseMomentUTC is local midnight seven days after the start of weekKey.
func WeekCloseMomentUTC(zone, weekKey string) (time.Time, error) {
	return localMidnight(zone, weekKey, 7)
}

// LastClosedWeekKey returns the most recent week whose close instant is <= now.
func LastClosedWeekKey(zone string, weekStartsOn int, now time.Time) string {
	key, _ := AddDays(CurrentWeekKey(zone, weekStartsOn, now), -7)
	return key
}

func localMidnight(zone, key string, plusDays int) (time.Time, error) {
	day, err := ParseDayKey(key)
	if err != nil {
		return time.Time{}, err
	}
	loc := timezone.Location(zone)
	return time.Date(day.Year(), day.Month(), day.Day()+plusDays, 0, 0, 0, 0, loc).UTC(), nil
}
