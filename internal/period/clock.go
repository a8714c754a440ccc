// Package period maps wall-clock instants to canonical period keys and due
// instants for a challenge's admin timezone.
//
// Every function is pure: "now" is always passed in, nothing is cached at package
// level except the once-only warning guard for malformed configuration.
package period

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"strikeOutAPI/internal/timezone"
)

// DueTime is a wall-clock time of day in the admin timezone.
type DueTime struct {
	Hour   int
	Minute int
}

// FallbackDueTime is used whenever a configured due time cannot be parsed.
var FallbackDueTime = DueTime{Hour: 23, Minute: 59}

var warnedDueTimes sync.Map

func (d DueTime) String() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}

// ParseDueTime parses "HH:MM". Malformed or out-of-range values clamp to 23:59.
func ParseDueTime(s string) DueTime {
	d, ok := parseDueTime(s)
	if !ok {
		if _, seen := warnedDueTimes.LoadOrStore(s, struct{}{}); !seen {
			log.Printf("Period: malformed due time %q, using %s", s, FallbackDueTime)
		}
		return FallbackDueTime
	}
	return d
}

// ValidDueTime reports whether s is a well-formed "HH:MM" due time.
func ValidDueTime(s string) bool {
	_, ok := parseDueTime(s)
	return ok
}

func parseDueTime(s string) (DueTime, bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return DueTime{}, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return DueTime{}, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return DueTime{}, false
	}
	return DueTime{Hour: h, Minute: m}, true
}

// CurrentDayKey returns the daily period key at now. A period rolls over at the
// due instant, not at midnight: before today's due instant the current period
// is still yesterday's.
func CurrentDayKey(zone, dueTimeLocal string, now time.Time) string {
	loc := timezone.Location(zone)
	due := ParseDueTime(dueTimeLocal)

	local := now.In(loc)
	todayDue := time.Date(local.Year(), local.Month(), local.Day(), due.Hour, due.Minute, 0, 0, loc)
	if now.Before(todayDue) {
		return civilKey(time.Date(local.Year(), local.Month(), local.Day()-1, 0, 0, 0, 0, time.UTC))
	}
	return civilKey(local)
}

// DueMomentUTCForDay returns the UTC instant of dueTimeLocal on the calendar date
// named by dayKey, interpreted in zone with the timezone database.
func DueMomentUTCForDay(zone, dayKey, dueTimeLocal string) (time.Time, error) {
	day, err := ParseDayKey(dayKey)
	if err != nil {
		return time.Time{}, err
	}
	loc := timezone.Location(zone)
	due := ParseDueTime(dueTimeLocal)
	return time.Date(day.Year(), day.Month(), day.Day(), due.Hour, due.Minute, 0, 0, loc).UTC(), nil
}

// PeriodOpenMomentUTC is the instant daily period dayKey starts accepting check-ins.
func PeriodOpenMomentUTC(zone, dayKey, dueTimeLocal string) (time.Time, error) {
	return DueMomentUTCForDay(zone, dayKey, dueTimeLocal)
}

// PeriodCloseMomentUTC is the instant daily period dayKey closes: the due
// instant on the following calendar date.
func PeriodCloseMomentUTC(zone, dayKey, dueTimeLocal string) (time.Time, error) {
	next, err := AddDays(dayKey, 1)
	if err != nil {
		return time.Time{}, err
	}
	return DueMomentUTCForDay(zone, next, dueTimeLocal)
}

// LastClosedDayKey returns the most recent daily period whose close instant is <= now.
func LastClosedDayKey(zone, dueTimeLocal string, now time.Time) string {
	key, _ := AddDays(CurrentDayKey(zone, dueTimeLocal, now), -1)
	return key
}
