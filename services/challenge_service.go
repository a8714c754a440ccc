package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"strikeOutAPI/internal/clock"
	"strikeOutAPI/internal/ledger"
	"strikeOutAPI/internal/period"
	"strikeOutAPI/internal/store"
	"strikeOutAPI/internal/timezone"
	"strikeOutAPI/internal/types/challenge"
	"strikeOutAPI/internal/types/checkin"
	"strikeOutAPI/internal/types/outcome"
)

var (
	ErrChallengeEnded   = errors.New("challenge has ended")
	ErrMemberEliminated = errors.New("member has been eliminated")
	ErrInvalidChallenge = errors.New("invalid challenge")
)

type DisplayStatus string

const (
	DisplayPending        DisplayStatus = "pending"
	DisplaySatisfied      DisplayStatus = "satisfied"
	DisplayEliminated     DisplayStatus = "eliminated"
	DisplayEnded          DisplayStatus = "ended"
	DisplayDeadlinePassed DisplayStatus = "deadline_passed"
)

// MemberStatus is the tuple a client renders for "due in Xh Ym".
type MemberStatus struct {
	ChallengeID      uuid.UUID             `json:"challenge_id"`
	UserID           string                `json:"user_id"`
	PeriodKey        string                `json:"period_key"`
	Unit             challenge.CadenceUnit `json:"unit"`
	Timezone         string                `json:"timezone"`
	DueAt            time.Time             `json:"due_at"`
	RemainingSeconds int64                 `json:"remaining_seconds"`
	Count            int                   `json:"count"`
	Required         int                   `json:"required"`
	Satisfied        bool                  `json:"satisfied"`
	Status           DisplayStatus         `json:"status"`
	Strikes          int                   `json:"strikes"`
	StrikesAllowed   int                   `json:"strikes_allowed"`
	CurrentStreak    int                   `json:"current_streak"`
	LongestStreak    int                   `json:"longest_streak"`
}

type ChallengeService struct {
	store      store.Repository
	evaluator  *EvaluationService
	clock      clock.Clock
	windowDays int

	mu        sync.Mutex
	snapshots map[uuid.UUID]cachedWindow
}

// cachedWindow remembers the window for one challenge and the due configuration it was taken under.
type cachedWindow struct {
	config string
	snap   period.Snapshot
}

func NewChallengeService(st store.Repository, evaluator *EvaluationService, clk clock.Clock, windowDays int) *ChallengeService {
	if clk == nil {
		clk = clock.NewReal()
	}
	if windowDays <= 0 {
		windowDays = DefaultLedgerWindowDays
	}
	return &ChallengeService{
		store:      st,
		evaluator:  evaluator,
		clock:      clk,
		windowDays: windowDays,
		snapshots:  make(map[uuid.UUID]cachedWindow),
	}
}

// GetMemberStatus returns the display tuple for one member at the current instant.
func (s *ChallengeService) GetMemberStatus(ctx context.Context, challengeID uuid.UUID, userID string) (*MemberStatus, error) {
	now := s.clock.Now()

	stored, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	ch := stored.WithDefaults()

	member, err := s.store.GetMember(ctx, challengeID, userID)
	if err != nil {
		return nil, err
	}

	checkIns, err := s.store.ListCheckIns(ctx, challengeID, ledgerSince(ch, s.windowDays, now))
	if err != nil {
		return nil, fmt.Errorf("failed to load check-ins: %w", err)
	}

	w := s.window(ch, now)
	status := &MemberStatus{
		ChallengeID:    ch.ID,
		UserID:         userID,
		PeriodKey:      w.Key,
		Unit:           w.Unit,
		Timezone:       w.Zone,
		DueAt:          period.NextBoundary(ch, now),
		Required:       ch.Cadence.RequiredCount,
		Strikes:        member.Strikes,
		StrikesAllowed: ch.StrikesAllowed,
		CurrentStreak:  member.CurrentStreak,
		LongestStreak:  member.LongestStreak,
	}
	status.RemainingSeconds = int64(period.TimeRemaining(ch, now) / time.Second)

	switch ch.Type {
	case challenge.TypeDeadline:
		status.Count = ledger.CountBefore(checkIns, userID, ch.Due.DeadlineDate)
	case challenge.TypeProgress:
		dayKey := period.CurrentDayKey(w.Zone, ch.Due.DueTimeLocal, now)
		iv, ok := period.IntervalFor(progressStartKey(ch, w.Zone), dayKey, ch.Progression.DurationDays, ch.Cadence.RequiredCount, ch.Progression.Increment)
		if ok {
			status.PeriodKey = iv.StartKey
			status.Required = iv.Threshold
			status.Count = ledger.CountInRange(checkIns, userID, iv.StartKey, iv.EndKey)
		}
	default:
		status.Count = ledger.CountQualifyingCheckIns(checkIns, userID, w.Key, w.Unit)
	}
	status.Satisfied = ledger.Satisfied(status.Count, status.Required)
	status.Status = displayStatus(ch, member, status.Satisfied, now)

	return status, nil
}

// SubmitCheckIn stamps a new check-in with the current period and appends it
// to the ledger, then sweeps the challenge.
func (s *ChallengeService) SubmitCheckIn(ctx context.Context, challengeID uuid.UUID, userID string, req *checkin.CreateCheckInRequest) (*checkin.CheckIn, error) {
	now := s.clock.Now()

	stored, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	ch := stored.WithDefaults()
	if ch.State == challenge.StateEnded {
		return nil, ErrChallengeEnded
	}

	member, err := s.store.GetMember(ctx, challengeID, userID)
	if err != nil {
		return nil, err
	}
	if member.State == challenge.MemberEliminated {
		return nil, ErrMemberEliminated
	}

	p, err := period.SubmissionPeriod(ch, now)
	if err != nil {
		return nil, err
	}

	status := checkin.StatusCompleted
	if req != nil && req.Status != "" {
		status = req.Status
	}
	ci := &checkin.CheckIn{
		ID:          uuid.New(),
		ChallengeID: challengeID,
		UserID:      userID,
		Period:      p,
		Status:      status,
		CreatedAt:   now,
	}
	if req != nil {
		ci.Note = req.Note
	}

	if err := s.store.InsertCheckIn(ctx, ci); err != nil {
		return nil, fmt.Errorf("failed to save check-in: %w", err)
	}

	if s.evaluator != nil {
		if _, err := s.evaluator.SweepChallenge(ctx, challengeID); err != nil {
			log.Printf("Check-in: sweep after check-in failed for %s: %v", challengeID, err)
		}
	}
	return ci, nil
}

// window returns the cadence window at now, reusing a cached snapshot until it
// expires. Expired snapshots are dropped whenever a new one is stored.
func (s *ChallengeService) window(ch challenge.Challenge, now time.Time) period.Window {
	config := fmt.Sprintf("%s|%s|%s|%s|%d", ch.Due.Timezone, ch.Due.TimezoneMode, ch.Due.DueTimeLocal, ch.Cadence.Unit, ch.Cadence.WeekStartsOn)

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.snapshots[ch.ID]; ok && cached.config == config && cached.snap.Valid(now) {
		return cached.snap.Window
	}

	for id, cached := range s.snapshots {
		if !cached.snap.Valid(now) {
			delete(s.snapshots, id)
		}
	}
	snap := period.Take(ch, now)
	s.snapshots[ch.ID] = cachedWindow{config: config, snap: snap}
	return snap.Window
}

func displayStatus(ch challenge.Challenge, m *challenge.Member, satisfied bool, now time.Time) DisplayStatus {
	if m.State == challenge.MemberEliminated {
		return DisplayEliminated
	}
	if ch.Type == challenge.TypeDeadline {
		zone := period.Current(ch, now).Zone
		if ch.State == challenge.StateEnded || period.IsDeadlinePassed(zone, ch.Due.DeadlineDate, ch.Due.DueTimeLocal, now) {
			return DisplayDeadlinePassed
		}
	}
	if ch.State == challenge.StateEnded {
		return DisplayEnded
	}
	if satisfied {
		return DisplaySatisfied
	}
	return DisplayPending
}

// SweepForMember runs a sweep of the challenge on behalf of one of its members.
func (s *ChallengeService) SweepForMember(ctx context.Context, challengeID uuid.UUID, userID string) (*SweepReport, error) {
	if _, err := s.store.GetChallenge(ctx, challengeID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetMember(ctx, challengeID, userID); err != nil {
		return nil, err
	}
	if s.evaluator == nil {
		return &SweepReport{ChallengeID: challengeID}, nil
	}
	return s.evaluator.SweepChallenge(ctx, challengeID)
}

// ListOutcomes returns the member's closed-period history, oldest first.
func (s *ChallengeService) ListOutcomes(ctx context.Context, challengeID uuid.UUID, userID string) ([]*outcome.PeriodOutcome, error) {
	if _, err := s.store.GetMember(ctx, challengeID, userID); err != nil {
		return nil, err
	}
	outcomes, err := s.store.ListOutcomes(ctx, challengeID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	return outcomes, nil
}

// CreateChallenge validates req, stores the challenge and enrolls the creator.
func (s *ChallengeService) CreateChallenge(ctx context.Context, creatorID string, req *challenge.CreateChallengeRequest) (*challenge.Challenge, error) {
	now := s.clock.Now()

	ch := challenge.Challenge{
		ID:             uuid.New(),
		Name:           req.Name,
		Type:           req.Type,
		Cadence:        req.Cadence,
		Due:            req.Due,
		StrikesAllowed: req.StrikesAllowed,
		StartDate:      req.StartDate,
		Progression:    req.Progression,
		State:          challenge.StateActive,
		CreatedAt:      now,
	}.WithDefaults()

	if err := validateChallenge(ch); err != nil {
		return nil, err
	}

	zone := timezone.ResolveAdminTimeZone(ch)
	if ch.Due.TimezoneMode == challenge.TimezoneFixed && ch.Due.Timezone == "" {
		// fixedZone without a zone pins the server default at creation
		ch.Due.Timezone = zone
	}
	if ch.Type == challenge.TypeProgress && ch.StartDate == "" {
		ch.StartDate = period.CurrentDayKey(zone, ch.Due.DueTimeLocal, now)
	}
	if ch.Type == challenge.TypeDeadline && period.IsDeadlinePassed(zone, ch.Due.DeadlineDate, ch.Due.DueTimeLocal, now) {
		return nil, period.ErrDeadlinePassed
	}

	if err := s.store.PutChallenge(ctx, &ch); err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}
	if err := s.store.AddMember(ctx, &challenge.Member{ChallengeID: ch.ID, UserID: creatorID, JoinedAt: now}); err != nil {
		return nil, fmt.Errorf("failed to enroll creator: %w", err)
	}

	log.Printf("Challenge: %s created %s challenge %s (%s)", creatorID, ch.Type, ch.ID, zone)
	return &ch, nil
}

// JoinChallenge enrolls userID. Joining twice is a no-op.
func (s *ChallengeService) JoinChallenge(ctx context.Context, challengeID uuid.UUID, userID string) (*challenge.Member, error) {
	now := s.clock.Now()

	stored, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	ch := stored.WithDefaults()
	if ch.State == challenge.StateEnded {
		return nil, ErrChallengeEnded
	}
	if ch.Type == challenge.TypeDeadline {
		zone := timezone.ResolveAdminTimeZone(ch)
		if period.IsDeadlinePassed(zone, ch.Due.DeadlineDate, ch.Due.DueTimeLocal, now) {
			return nil, period.ErrDeadlinePassed
		}
	}

	if err := s.store.AddMember(ctx, &challenge.Member{ChallengeID: challengeID, UserID: userID, JoinedAt: now}); err != nil {
		return nil, err
	}
	return s.store.GetMember(ctx, challengeID, userID)
}

func validateChallenge(ch challenge.Challenge) error {
	switch ch.Type {
	case challenge.TypeElimination, challenge.TypeDeadline, challenge.TypeProgress:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidChallenge, ch.Type)
	}
	switch ch.Cadence.Unit {
	case challenge.CadenceDaily, challenge.CadenceWeekly:
	default:
		return fmt.Errorf("%w: unknown cadence unit %q", ErrInvalidChallenge, ch.Cadence.Unit)
	}
	switch ch.Due.TimezoneMode {
	case challenge.TimezoneFixed, challenge.TimezoneGroupLocal, challenge.TimezoneUserLocal:
	default:
		return fmt.Errorf("%w: unknown timezone mode %q", ErrInvalidChallenge, ch.Due.TimezoneMode)
	}
	if ch.Due.Timezone != "" && !timezone.IsValid(ch.Due.Timezone) {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidChallenge, ch.Due.Timezone)
	}
	if !period.ValidDueTime(ch.Due.DueTimeLocal) {
		return fmt.Errorf("%w: due time must be HH:MM", ErrInvalidChallenge)
	}
	if ch.Type == challenge.TypeDeadline {
		if !period.InKeyRange(ch.Due.DeadlineDate) {
			return fmt.Errorf("%w: deadline date must be YYYY-MM-DD between %d and %d", ErrInvalidChallenge, period.MinKeyYear, period.MaxKeyYear)
		}
	}
	if ch.Type == challenge.TypeProgress && ch.StartDate != "" {
		if !period.InKeyRange(ch.StartDate) {
			return fmt.Errorf("%w: start date must be YYYY-MM-DD between %d and %d", ErrInvalidChallenge, period.MinKeyYear, period.MaxKeyYear)
		}
	}
	return nil
}
