// Package ledger answers "how many qualifying check-ins does this member have"
// against an already-fetched slice of the check-in ledger. Bucketing always
// uses the period stamped at write time, never CreatedAt.
package ledger

import (
	"strikeOutAPI/internal/types/challenge"
	"strikeOutAPI/internal/types/checkin"
)

// CountQualifyingCheckIns counts completed check-ins by userID whose stamped
// period matches periodKey for the given cadence unit. Duplicates count.
func CountQualifyingCheckIns(checkIns []*checkin.CheckIn, userID, periodKey string, unit challenge.CadenceUnit) int {
	count := 0
	for _, ci := range checkIns {
		if !qualifies(ci, userID) {
			continue
		}
		key := ci.Period.DayKey
		if unit == challenge.CadenceWeekly {
			key = ci.Period.WeekKey
		}
		if key != "" && key == periodKey {
			count++
		}
	}
	return count
}

// CountBefore counts completed check-ins by userID stamped with a day key
// strictly before beforeDayKey.
func CountBefore(checkIns []*checkin.CheckIn, userID, beforeDayKey string) int {
	count := 0
	for _, ci := range checkIns {
		if qualifies(ci, userID) && ci.Period.DayKey != "" && ci.Period.DayKey < beforeDayKey {
			count++
		}
	}
	return count
}

// CountInRange counts completed check-ins by userID stamped with a day key in [fromKey, toKey].
func CountInRange(checkIns []*checkin.CheckIn, userID, fromKey, toKey string) int {
	count := 0
	for _, ci := range checkIns {
		if qualifies(ci, userID) && ci.Period.DayKey >= fromKey && ci.Period.DayKey <= toKey {
			count++
		}
	}
	return count
}

// Satisfied compares a count against a required count; required below 1 means 1.
func Satisfied(count, required int) bool {
	if required < 1 {
		required = challenge.DefaultRequiredCount
	}
	return count >= required
}

func qualifies(ci *checkin.CheckIn, userID string) bool {
	return ci != nil && ci.UserID == userID && ci.Status == checkin.StatusCompleted
}
