package checkin

import (
	"time"

	"github.com/google/uuid"

	"strikeOutAPI/internal/types/challenge"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusRejected  Status = "rejected"
)

// Period is stamped on a check-in when it is written and never recomputed.
// DayKey is always set; WeekKey only for weekly cadences.
type Period struct {
	Unit    challenge.CadenceUnit `json:"unit" db:"period_unit"`
	DayKey  string                `json:"dayKey,omitempty" db:"day_key"`
	WeekKey string                `json:"weekKey,omitempty" db:"week_key"`
}

// Key returns the bucket key for the period's own unit.
func (p Period) Key() string {
	if p.Unit == challenge.CadenceWeekly {
		return p.WeekKey
	}
	return p.DayKey
}

type CheckIn struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ChallengeID uuid.UUID `json:"challengeId" db:"challenge_id"`
	UserID      string    `json:"userId" db:"user_id"`
	Period      Period    `json:"period"`
	Status      Status    `json:"status" db:"status"`
	Note        string    `json:"note,omitempty" db:"note"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

type CreateCheckInRequest struct {
	Status Status `json:"status"`
	Note   string `json:"note"`
}
