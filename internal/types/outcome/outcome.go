package outcome

import (
	"time"

	"github.com/google/uuid"

	"strikeOutAPI/internal/types/challenge"
)

// DeadlineKeyPrefix marks outcomes recorded for a fixed deadline instead of a recurring period.
const DeadlineKeyPrefix = "deadline:"

// PeriodOutcome is one closed period for one member. Rows are append-only and
// unique on (ChallengeID, UserID, PeriodKey).
type PeriodOutcome struct {
	ID           uuid.UUID             `json:"id" db:"id"`
	ChallengeID  uuid.UUID             `json:"challengeId" db:"challenge_id"`
	UserID       string                `json:"userId" db:"user_id"`
	PeriodKey    string                `json:"periodKey" db:"period_key"`
	Unit         challenge.CadenceUnit `json:"unit" db:"unit"`
	Count        int                   `json:"count" db:"count"`
	Required     int                   `json:"required" db:"required"`
	Satisfied    bool                  `json:"satisfied" db:"satisfied"`
	StrikesAfter int                   `json:"strikesAfter" db:"strikes_after"`
	StreakAfter  int                   `json:"streakAfter" db:"streak_after"`
	StateAfter   challenge.MemberState `json:"stateAfter" db:"state_after"`
	EvaluatedAt  time.Time             `json:"evaluatedAt" db:"evaluated_at"`
}

// DeadlineKey is the outcome key used for a deadline challenge's single terminal check.
func DeadlineKey(deadlineDate string) string {
	return DeadlineKeyPrefix + deadlineDate
}
