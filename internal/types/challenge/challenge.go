package challenge

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeElimination Type = "elimination"
	TypeDeadline    Type = "deadline"
	TypeProgress    Type = "progress"
)

type State string

const (
	StateActive State = "active"
	StateEnded  State = "ended"
)

type CadenceUnit string

const (
	CadenceDaily  CadenceUnit = "daily"
	CadenceWeekly CadenceUnit = "weekly"
)

type TimezoneMode string

const (
	TimezoneFixed      TimezoneMode = "fixedZone"
	TimezoneGroupLocal TimezoneMode = "groupLocal"
	TimezoneUserLocal  TimezoneMode = "userLocal"
)

const (
	DefaultDueTimeLocal  = "23:59"
	DefaultRequiredCount = 1
)

type Cadence struct {
	Unit          CadenceUnit `json:"unit" db:"cadence_unit"`
	RequiredCount int         `json:"requiredCount,omitempty" db:"required_count"`
	WeekStartsOn  int         `json:"weekStartsOn,omitempty" db:"week_starts_on"` // 0 = Sunday
}

type Due struct {
	DueTimeLocal string       `json:"dueTimeLocal" db:"due_time_local"` // HH:MM
	TimezoneMode TimezoneMode `json:"timezoneMode" db:"timezone_mode"`
	Timezone     string       `json:"timezone,omitempty" db:"timezone"`
	// TimezoneOffset is the creator's UTC offset in minutes, kept for display only.
	TimezoneOffset *int   `json:"timezoneOffset,omitempty" db:"timezone_offset"`
	DeadlineDate   string `json:"deadlineDate,omitempty" db:"deadline_date"` // YYYY-MM-DD
}

type Progression struct {
	DurationDays int `json:"durationDays" db:"progression_duration"`
	Increment    int `json:"increment" db:"progression_increment"`
}

type Challenge struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	Name           string      `json:"name" db:"name"`
	Type           Type        `json:"type" db:"type"`
	Cadence        Cadence     `json:"cadence"`
	Due            Due         `json:"due"`
	StrikesAllowed int         `json:"strikesAllowed" db:"strikes_allowed"`
	StartDate      string      `json:"startDate,omitempty" db:"start_date"` // YYYY-MM-DD
	Progression    Progression `json:"progression"`
	State          State       `json:"state" db:"state"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
}

// WithDefaults returns a copy with every optional cadence and due field filled in.
func (c Challenge) WithDefaults() Challenge {
	if c.Type == "" {
		c.Type = TypeElimination
	}
	if c.Cadence.Unit == "" {
		c.Cadence.Unit = CadenceDaily
	}
	if c.Cadence.RequiredCount <= 0 {
		c.Cadence.RequiredCount = DefaultRequiredCount
	}
	if c.Cadence.WeekStartsOn < 0 || c.Cadence.WeekStartsOn > 6 {
		c.Cadence.WeekStartsOn = 0
	}
	if c.Due.DueTimeLocal == "" {
		c.Due.DueTimeLocal = DefaultDueTimeLocal
	}
	if c.Due.TimezoneMode == "" {
		c.Due.TimezoneMode = TimezoneGroupLocal
	}
	if c.StrikesAllowed < 0 {
		c.StrikesAllowed = 0
	}
	if c.Progression.DurationDays <= 0 {
		c.Progression.DurationDays = 7
	}
	if c.State == "" {
		c.State = StateActive
	}
	return c
}

type MemberState string

const (
	MemberActive     MemberState = "active"
	MemberEliminated MemberState = "eliminated"
)

type Member struct {
	ChallengeID      uuid.UUID   `json:"challengeId" db:"challenge_id"`
	UserID           string      `json:"userId" db:"user_id"`
	State            MemberState `json:"state" db:"state"`
	Strikes          int         `json:"strikes" db:"strikes"`
	CurrentStreak    int         `json:"currentStreak" db:"current_streak"`
	LongestStreak    int         `json:"longestStreak" db:"longest_streak"`
	LastEvaluatedKey string      `json:"lastEvaluatedKey,omitempty" db:"last_evaluated_key"`
	JoinedAt         time.Time   `json:"joinedAt" db:"joined_at"`
	EliminatedAt     *time.Time  `json:"eliminatedAt,omitempty" db:"eliminated_at"`
}

type CreateChallengeRequest struct {
	Name           string      `json:"name"`
	Type           Type        `json:"type"`
	Cadence        Cadence     `json:"cadence"`
	Due            Due         `json:"due"`
	StrikesAllowed int         `json:"strikesAllowed"`
	StartDate      string      `json:"startDate,omitempty"`
	Progression    Progression `json:"progression"`
}
