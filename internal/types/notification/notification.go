package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventEliminated     EventType = "member_eliminated"
	EventDeadlinePassed EventType = "deadline_passed"
	EventChallengeEnded EventType = "challenge_ended"
)

// Event is a state transition observed by the notification collaborator.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	Type        EventType      `json:"type"`
	ChallengeID uuid.UUID      `json:"challenge_id"`
	UserID      string         `json:"user_id,omitempty"`
	PeriodKey   string         `json:"period_key"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Data        map[string]any `json:"data,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// DedupKey identifies an event for fire-once delivery. It matches the key the
// evaluation uses for closure idempotency.
func (e Event) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", e.Type, e.ChallengeID, e.UserID, e.PeriodKey)
}

type DeviceToken struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}
