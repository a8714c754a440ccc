package period

import (
	"errors"
	"fmt"
	"time"
)

// DayKeyLayout is the canonical shape of day and week keys.
const DayKeyLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Day keys outside [MinKeyYear, MaxKeyYear] are rejected when a challenge is configured.
const (
	MinKeyYear = 2000
	MaxKeyYear = 2999
)

var ErrInvalidKey = errors.New("invalid period key")

// ParseDayKey parses a YYYY-MM-DD key into its calendar date at UTC midnight.
func ParseDayKey(key string) (time.Time, error) {
	t, err := time.Parse(DayKeyLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidKey, key, err)
	}
	return t, nil
}

// InKeyRange reports whether key parses and falls within the supported years.
func InKeyRange(key string) bool {
	t, err := ParseDayKey(key)
	if err != nil {
		return false
	}
	return t.Year() >= MinKeyYear && t.Year() <= MaxKeyYear
}

// AddDays shifts a day key by n calendar days. Arithmetic is done on the civil
// date so it is unaffected by DST.
func AddDays(key string, n int) (string, error) {
	t, err := ParseDayKey(key)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DayKeyLayout), nil
}

// DaysBetween returns the number of calendar days from a to b (negative if b precedes a).
func DaysBetween(a, b string) (int, error) {
	ta, err := ParseDayKey(a)
	if err != nil {
		return 0, err
	}
	tb, err := ParseDayKey(b)
	if err != nil {
		return 0, err
	}
	return int((tb.Unix() - ta.Unix()) / secondsPerDay), nil
}

// KeysAfter lists the keys strictly after `after` up to and including `through`,
// stepping `step` days, capped at limit entries (the most recent are kept).
// An empty `after` starts at `from`.
func KeysAfter(after, from, through string, step, limit int) ([]string, error) {
	if step <= 0 {
		step = 1
	}
	start := from
	if after != "" {
		next, err := AddDays(after, step)
		if err != nil {
			return nil, err
		}
		if next > start {
			start = next
		}
	}
	if _, err := ParseDayKey(start); err != nil {
		return nil, err
	}
	if _, err := ParseDayKey(through); err != nil {
		return nil, err
	}

	var keys []string
	for key := start; key <= through; {
		keys = append(keys, key)
		next, err := AddDays(key, step)
		if err != nil {
			return nil, err
		}
		key = next
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}
	return keys, nil
}

func civilKey(t time.Time) string {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format(DayKeyLayout)
}
