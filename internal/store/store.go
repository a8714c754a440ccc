package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"strikeOutAPI/internal/types/challenge"
	"strikeOutAPI/internal/types/checkin"
	"strikeOutAPI/internal/types/notification"
	"strikeOutAPI/internal/types/outcome"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrMemberNotFound    = errors.New("challenge member not found")
)

// CloseFunc derives the member's state after a closed period. Returning false
// skips the write (for example when the member is no longer active).
type CloseFunc func(m challenge.Member) (challenge.Member, outcome.PeriodOutcome, bool)

// Store is the persistence collaborator the evaluation engine reads and writes.
type Store interface {
	GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error)
	ListActiveChallenges(ctx context.Context) ([]*challenge.Challenge, error)
	ListMembers(ctx context.Context, challengeID uuid.UUID) ([]*challenge.Member, error)
	GetMember(ctx context.Context, challengeID uuid.UUID, userID string) (*challenge.Member, error)

	InsertCheckIn(ctx context.Context, ci *checkin.CheckIn) error
	ListCheckIns(ctx context.Context, challengeID uuid.UUID, since time.Time) ([]*checkin.CheckIn, error)

	// ApplyOutcome atomically records the outcome for (challenge, user, periodKey)
	// and updates the member. If an outcome for that key already exists nothing
	// is written and applied is false.
	ApplyOutcome(ctx context.Context, challengeID uuid.UUID, userID, periodKey string, fn CloseFunc) (member *challenge.Member, applied bool, err error)
	ListOutcomes(ctx context.Context, challengeID uuid.UUID, userID string) ([]*outcome.PeriodOutcome, error)

	// EndChallenge moves an active challenge to ended. ended is false if it was already ended.
	EndChallenge(ctx context.Context, challengeID uuid.UUID) (ended bool, err error)
}

// EventLog deduplicates notification events and resolves push targets.
type EventLog interface {
	MarkEventSent(ctx context.Context, dedupKey string) (first bool, err error)
	DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error)
}

// DeviceRegistry stores push targets for users.
type DeviceRegistry interface {
	RegisterDevice(ctx context.Context, userID string, token notification.DeviceToken) error
}

// ChallengeWriter creates challenges and enrolls members. AddMember is a no-op
// for an existing member.
type ChallengeWriter interface {
	PutChallenge(ctx context.Context, ch *challenge.Challenge) error
	AddMember(ctx context.Context, m *challenge.Member) error
}

// Repository is the full surface both store implementations provide.
type Repository interface {
	Store
	ChallengeWriter
	EventLog
	DeviceRegistry
}
