package store_test

import (
	"strikeOutAPI/internal/types/challenge"
	"strikeOutAPI/internal/types/checkin"
)

func dayPeriod(key string) checkin.Period {
	return checkin.Period{Unit: challenge.CadenceDaily, DayKey: key}
}
