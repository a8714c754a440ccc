// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"strikeOutAPI/internal/store"
	"strikeOutAPI/internal/types/challenge"
	"strikeOutAPI/internal/types/checkin"
	"strikeOutAPI/internal/types/notification"
)

// At parses an RFC 3339 instant or fails the test.
func At(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

// Daily returns a daily elimination challenge in a fixed zone.
func Daily(zone, due string, strikesAllowed int) *challenge.Challenge {
	return &challenge.Challenge{
		ID:   uuid.New(),
		Name: "Daily push-ups",
		Type: challenge.TypeElimination,
		Cadence: challenge.Cadence{
			Unit:          challenge.CadenceDaily,
			RequiredCount: 1,
		},
		Due: challenge.Due{
			DueTimeLocal: due,
			TimezoneMode: challenge.TimezoneFixed,
			Timezone:     zone,
		},
		StrikesAllowed: strikesAllowed,
		State:          challenge.StateActive,
	}
}

// Weekly returns a weekly elimination challenge.
func Weekly(zone string, weekStartsOn, required, strikesAllowed int) *challenge.Challenge {
	ch := Daily(zone, challenge.DefaultDueTimeLocal, strikesAllowed)
	ch.Name = "Weekly runs"
	ch.Cadence = challenge.Cadence{
		Unit:          challenge.CadenceWeekly,
		RequiredCount: required,
		WeekStartsOn:  weekStartsOn,
	}
	return ch
}

// Deadline returns a deadline challenge that needs required check-ins before deadlineDate.
func Deadline(zone, deadlineDate, due string, required int) *challenge.Challenge {
	ch := Daily(zone, due, 0)
	ch.Name = "Read 3 books"
	ch.Type = challenge.TypeDeadline
	ch.Cadence.RequiredCount = required
	ch.Due.DeadlineDate = deadlineDate
	return ch
}

// Progress returns a progress challenge starting on startDate.
func Progress(zone, startDate string, durationDays, base, increment int) *challenge.Challenge {
	ch := Daily(zone, challenge.DefaultDueTimeLocal, 0)
	ch.Name = "Couch to 5k"
	ch.Type = challenge.TypeProgress
	ch.Cadence.RequiredCount = base
	ch.StartDate = startDate
	ch.Progression = challenge.Progression{DurationDays: durationDays, Increment: increment}
	return ch
}

// Seed stores ch and enrolls every user at joinedAt.
func Seed(t *testing.T, st *store.InMemoryStore, ch *challenge.Challenge, joinedAt time.Time, users ...string) {
	t.Helper()
	ctx := context.Background()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = joinedAt
	}
	require.NoError(t, st.PutChallenge(ctx, ch))
	for _, u := range users {
		require.NoError(t, st.AddMember(ctx, &challenge.Member{ChallengeID: ch.ID, UserID: u, JoinedAt: joinedAt}))
	}
}

// CheckIn writes a completed check-in stamped with the given period directly to the ledger.
func CheckIn(t *testing.T, st *store.InMemoryStore, challengeID uuid.UUID, userID string, p checkin.Period, at time.Time) {
	t.Helper()
	require.NoError(t, st.InsertCheckIn(context.Background(), &checkin.CheckIn{
		ID:          uuid.New(),
		ChallengeID: challengeID,
		UserID:      userID,
		Period:      p,
		Status:      checkin.StatusCompleted,
		CreatedAt:   at,
	}))
}

// Member loads a member or fails the test.
func Member(t *testing.T, st store.Store, challengeID uuid.UUID, userID string) *challenge.Member {
	t.Helper()
	m, err := st.GetMember(context.Background(), challengeID, userID)
	require.NoError(t, err)
	return m
}

// RecordingPublisher keeps every published event in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []notification.Event
}

func (p *RecordingPublisher) Publish(_ context.Context, event notification.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// Events returns the events of the given type, or all events when types is empty.
func (p *RecordingPublisher) Events(types ...notification.EventType) []notification.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(types) == 0 {
		return append([]notification.Event(nil), p.events...)
	}
	var out []notification.Event
	for _, e := range p.events {
		for _, typ := range types {
			if e.Type == typ {
				out = append(out, e)
			}
		}
	}
	return out
}

// MockClerkJWT signs a token shaped like a Clerk session token with a test
// secret. Clerk verification rejects it, which is what auth tests rely on.
func MockClerkJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": "https://clerk.test",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"azp": "test-app-id",
		"sid": "sess_test123",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret-key-for-testing-only"))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
