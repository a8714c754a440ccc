package period

import "time"

// Interval is one fixed-length step of a progress challenge.
type Interval struct {
	Index     int    `json:"index"`
	StartKey  string `json:"startKey"`
	EndKey    string `json:"endKey"` // last day key inside the interval
	Threshold int    `json:"threshold"`
}

// IntervalFor returns the progress interval containing dayKey. Intervals are
// durationDays long, counted from startKey, and their required count grows by
// increment each step. ok is false before the challenge starts.
func IntervalFor(startKey, dayKey string, durationDays, baseRequired, increment int) (Interval, bool) {
	if durationDays <= 0 {
		durationDays = 1
	}
	days, err := DaysBetween(startKey, dayKey)
	if err != nil || days < 0 {
		return Interval{}, false
	}
	return intervalAt(startKey, days/durationDays, durationDays, baseRequired, increment)
}

// IntervalAt returns the index-th interval.
func IntervalAt(startKey string, index, durationDays, baseRequired, increment int) (Interval, bool) {
	if durationDays <= 0 {
		durationDays = 1
	}
	return intervalAt(startKey, index, durationDays, baseRequired, increment)
}

func intervalAt(startKey string, index, durationDays, baseRequired, increment int) (Interval, bool) {
	if index < 0 {
		return Interval{}, false
	}
	from, err := AddDays(startKey, index*durationDays)
	if err != nil {
		return Interval{}, false
	}
	to, _ := AddDays(from, durationDays-1)
	threshold := baseRequired + index*increment
	if threshold < 1 {
		threshold = 1
	}
	return Interval{Index: index, StartKey: from, EndKey: to, Threshold: threshold}, true
}

// IntervalCloseMomentUTC is the instant the interval's last daily period closes.
func IntervalCloseMomentUTC(zone string, iv Interval, dueTimeLocal string) (time.Time, error) {
	return PeriodCloseMomentUTC(zone, iv.EndKey, dueTimeLocal)
}
