package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"strikeOutAPI/internal/types/challenge"
	"strikeOutAPI/internal/types/checkin"
	"strikeOutAPI/internal/types/notification"
	"strikeOutAPI/internal/types/outcome"
)

type memberKey struct {
	challengeID uuid.UUID
	userID      string
}

type outcomeKey struct {
	challengeID uuid.UUID
	userID      string
	periodKey   string
}

// InMemoryStore backs tests and local runs without a database.
type InMemoryStore struct {
	mu         sync.Mutex
	challenges map[uuid.UUID]challenge.Challenge
	members    map[memberKey]challenge.Member
	checkIns   []checkin.CheckIn
	outcomes   map[outcomeKey]outcome.PeriodOutcome
	sentEvents map[string]struct{}
	tokens     map[string][]notification.DeviceToken
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		challenges: make(map[uuid.UUID]challenge.Challenge),
		members:    make(map[memberKey]challenge.Member),
		outcomes:   make(map[outcomeKey]outcome.PeriodOutcome),
		sentEvents: make(map[string]struct{}),
		tokens:     make(map[string][]notification.DeviceToken),
	}
}

func (s *InMemoryStore) PutChallenge(_ context.Context, ch *challenge.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[ch.ID] = ch.WithDefaults()
	return nil
}

func (s *InMemoryStore) AddMember(_ context.Context, m *challenge.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[m.ChallengeID]; !ok {
		return ErrChallengeNotFound
	}
	if _, exists := s.members[memberKey{m.ChallengeID, m.UserID}]; exists {
		return nil
	}
	member := *m
	if member.State == "" {
		member.State = challenge.MemberActive
	}
	s.members[memberKey{m.ChallengeID, m.UserID}] = member
	return nil
}

func (s *InMemoryStore) DeleteChallenge(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, id)
	for k := range s.members {
		if k.challengeID == id {
			delete(s.members, k)
		}
	}
	return nil
}

func (s *InMemoryStore) RegisterDevice(_ context.Context, userID string, token notification.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tokens[userID] {
		if t.Token == token.Token {
			s.tokens[userID][i].Platform = token.Platform
			return nil
		}
	}
	s.tokens[userID] = append(s.tokens[userID], token)
	return nil
}

func (s *InMemoryStore) GetChallenge(_ context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[id]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	return &ch, nil
}

func (s *InMemoryStore) ListActiveChallenges(_ context.Context) ([]*challenge.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*challenge.Challenge
	for _, ch := range s.challenges {
		if ch.State == challenge.StateActive {
			ch := ch
			out = append(out, &ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemoryStore) ListMembers(_ context.Context, challengeID uuid.UUID) ([]*challenge.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*challenge.Member
	for k, m := range s.members {
		if k.challengeID == challengeID {
			m := m
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *InMemoryStore) GetMember(_ context.Context, challengeID uuid.UUID, userID string) (*challenge.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberKey{challengeID, userID}]
	if !ok {
		return nil, ErrMemberNotFound
	}
	return &m, nil
}

func (s *InMemoryStore) InsertCheckIn(_ context.Context, ci *checkin.CheckIn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[ci.ChallengeID]; !ok {
		return ErrChallengeNotFound
	}
	row := *ci
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
		ci.ID = row.ID
	}
	s.checkIns = append(s.checkIns, row)
	return nil
}

func (s *InMemoryStore) ListCheckIns(_ context.Context, challengeID uuid.UUID, since time.Time) ([]*checkin.CheckIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*checkin.CheckIn
	for _, ci := range s.checkIns {
		if ci.ChallengeID == challengeID && !ci.CreatedAt.Before(since) {
			ci := ci
			out = append(out, &ci)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ApplyOutcome(_ context.Context, challengeID uuid.UUID, userID, periodKey string, fn CloseFunc) (*challenge.Member, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mk := memberKey{challengeID, userID}
	current, ok := s.members[mk]
	if !ok {
		return nil, false, ErrMemberNotFound
	}
	okey := outcomeKey{challengeID, userID, periodKey}
	if _, exists := s.outcomes[okey]; exists {
		return &current, false, nil
	}

	next, out, write := fn(current)
	if !write {
		return &current, false, nil
	}
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	out.ChallengeID, out.UserID, out.PeriodKey = challengeID, userID, periodKey
	s.outcomes[okey] = out
	s.members[mk] = next
	return &next, true, nil
}

func (s *InMemoryStore) ListOutcomes(_ context.Context, challengeID uuid.UUID, userID string) ([]*outcome.PeriodOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*outcome.PeriodOutcome
	for k, o := range s.outcomes {
		if k.challengeID == challengeID && k.userID == userID {
			o := o
			out = append(out, &o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodKey < out[j].PeriodKey })
	return out, nil
}

func (s *InMemoryStore) EndChallenge(_ context.Context, challengeID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[challengeID]
	if !ok {
		return false, ErrChallengeNotFound
	}
	if ch.State == challenge.StateEnded {
		return false, nil
	}
	ch.State = challenge.StateEnded
	s.challenges[challengeID] = ch
	return true, nil
}

func (s *InMemoryStore) MarkEventSent(_ context.Context, dedupKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.sentEvents[dedupKey]; seen {
		return false, nil
	}
	s.sentEvents[dedupKey] = struct{}{}
	return true, nil
}

func (s *InMemoryStore) DeviceTokens(_ context.Context, userID string) ([]notification.DeviceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := make([]notification.DeviceToken, len(s.tokens[userID]))
	copy(tokens, s.tokens[userID])
	return tokens, nil
}
