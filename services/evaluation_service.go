package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"strikeOutAPI/internal/clock"
	"strikeOutAPI/internal/ledger"
	"strikeOutAPI/internal/period"
	"strikeOutAPI/internal/store"
	"strikeOutAPI/internal/timezone"
	"strikeOutAPI/internal/types/challenge"
	"strikeOutAPI/internal/types/checkin"
	"strikeOutAPI/internal/types/notification"
	"strikeOutAPI/internal/types/outcome"
)

const DefaultLedgerWindowDays = 30

// EventPublisher receives elimination and deadline events. Implementations must
// not block the sweep.
type EventPublisher interface {
	Publish(ctx context.Context, event notification.Event)
}

// EvaluationService closes periods whose due instant has passed and applies
// strikes, streaks and elimination exactly once per member per period.
type EvaluationService struct {
	store      store.Store
	publisher  EventPublisher
	clock      clock.Clock
	windowDays int
}

type SweepReport struct {
	ChallengeID   uuid.UUID `json:"challenge_id"`
	NotFound      bool      `json:"not_found,omitempty"`
	PeriodsClosed int       `json:"periods_closed"`
	Duplicates    int       `json:"duplicates"`
	Strikes       int       `json:"strikes"`
	Eliminated    []string  `json:"eliminated,omitempty"`
	Missed        []string  `json:"missed,omitempty"`
	Ended         bool      `json:"ended"`
}

func NewEvaluationService(st store.Store, publisher EventPublisher, clk clock.Clock, windowDays int) *EvaluationService {
	if clk == nil {
		clk = clock.NewReal()
	}
	if windowDays <= 0 {
		windowDays = DefaultLedgerWindowDays
	}
	return &EvaluationService{
		store:      st,
		publisher:  publisher,
		clock:      clk,
		windowDays: windowDays,
	}
}

// SweepAll sweeps every active challenge. A failing challenge does not stop the others.
func (s *EvaluationService) SweepAll(ctx context.Context) ([]*SweepReport, error) {
	challenges, err := s.store.ListActiveChallenges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active challenges: %w", err)
	}

	var reports []*SweepReport
	var errs []error
	for _, ch := range challenges {
		report, err := s.SweepChallenge(ctx, ch.ID)
		if err != nil {
			log.Printf("Sweep: challenge %s failed: %v", ch.ID, err)
			errs = append(errs, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

// SweepChallenge closes every period of the challenge that has ended by now.
// A missing challenge is reported through SweepReport.NotFound, not as an error.
func (s *EvaluationService) SweepChallenge(ctx context.Context, challengeID uuid.UUID) (*SweepReport, error) {
	started := time.Now()
	defer func() { sweepDuration.Observe(time.Since(started).Seconds()) }()

	now := s.clock.Now()
	report := &SweepReport{ChallengeID: challengeID}

	stored, err := s.store.GetChallenge(ctx, challengeID)
	if errors.Is(err, store.ErrChallengeNotFound) {
		report.NotFound = true
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	ch := stored.WithDefaults()
	if ch.State == challenge.StateEnded {
		return report, nil
	}

	members, err := s.store.ListMembers(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	checkIns, err := s.store.ListCheckIns(ctx, ch.ID, ledgerSince(ch, s.windowDays, now))
	if err != nil {
		return nil, fmt.Errorf("failed to load check-ins: %w", err)
	}

	switch ch.Type {
	case challenge.TypeDeadline:
		err = s.closeDeadline(ctx, ch, members, checkIns, now, report)
	case challenge.TypeProgress:
		err = s.closeProgress(ctx, ch, members, checkIns, now, report)
	default:
		err = s.closeElimination(ctx, ch, members, checkIns, now, report)
	}
	if err != nil {
		return nil, err
	}

	if report.PeriodsClosed > 0 || report.Ended {
		log.Printf("Sweep: challenge %s closed %d periods, %d strikes, %d eliminated, ended=%v",
			ch.ID, report.PeriodsClosed, report.Strikes, len(report.Eliminated), report.Ended)
	}
	return report, nil
}

func (s *EvaluationService) closeElimination(ctx context.Context, ch challenge.Challenge, members []*challenge.Member, checkIns []*checkin.CheckIn, now time.Time, report *SweepReport) error {
	zone := timezone.ResolveAdminTimeZone(ch)
	required := ch.Cadence.RequiredCount

	active := 0
	for _, m := range members {
		state, err := s.closeMemberPeriods(ctx, ch, zone, m, checkIns, required, now, report)
		if err != nil {
			return err
		}
		if state == challenge.MemberActive {
			active++
		}
	}

	if shouldEndElimination(len(members), active) {
		return s.endChallenge(ctx, ch, now, report)
	}
	return nil
}

func (s *EvaluationService) closeMemberPeriods(ctx context.Context, ch challenge.Challenge, zone string, m *challenge.Member, checkIns []*checkin.CheckIn, required int, now time.Time, report *SweepReport) (challenge.MemberState, error) {
	if m.State != challenge.MemberActive {
		return m.State, nil
	}

	keys, err := s.closedKeys(ch, zone, m, now)
	if err != nil {
		log.Printf("Sweep: cannot list periods for %s in %s: %v", m.UserID, ch.ID, err)
		return m.State, nil
	}

	prev := *m
	for _, key := range keys {
		count := ledger.CountQualifyingCheckIns(checkIns, m.UserID, key, ch.Cadence.Unit)

		updated, applied, err := s.store.ApplyOutcome(ctx, ch.ID, m.UserID, key, func(cur challenge.Member) (challenge.Member, outcome.PeriodOutcome, bool) {
			if cur.State != challenge.MemberActive || alreadyEvaluated(cur, key) {
				return cur, outcome.PeriodOutcome{}, false
			}
			next, out := closePeriod(cur, ch, key, count, required, true, now)
			return next, out, true
		})
		if errors.Is(err, store.ErrMemberNotFound) {
			return challenge.MemberEliminated, nil
		}
		if err != nil {
			return prev.State, fmt.Errorf("failed to close period %s for %s: %w", key, m.UserID, err)
		}

		if !applied {
			report.Duplicates++
			duplicateClosuresTotal.Inc()
			if updated != nil {
				prev = *updated
				if updated.State != challenge.MemberActive {
					break
				}
			}
			continue
		}

		report.PeriodsClosed++
		satisfied := ledger.Satisfied(count, required)
		periodsClosedTotal.WithLabelValues(string(ch.Type), strconv.FormatBool(satisfied)).Inc()
		if !satisfied {
			report.Strikes++
		}

		if updated.State == challenge.MemberEliminated {
			report.Eliminated = append(report.Eliminated, m.UserID)
			eliminationsTotal.Inc()
			s.publish(ctx, notification.Event{
				Type:        notification.EventEliminated,
				ChallengeID: ch.ID,
				UserID:      m.UserID,
				PeriodKey:   key,
				Title:       "You're out",
				Body:        fmt.Sprintf("You missed the check-in for %s in %s.", key, displayName(ch)),
				Data:        map[string]any{"strikes": updated.Strikes},
				OccurredAt:  now,
			})
			return updated.State, nil
		}
		prev = *updated
	}
	return prev.State, nil
}

func (s *EvaluationService) closeDeadline(ctx context.Context, ch challenge.Challenge, members []*challenge.Member, checkIns []*checkin.CheckIn, now time.Time, report *SweepReport) error {
	zone := timezone.ResolveAdminTimeZone(ch)
	deadline, err := period.DeadlineMomentUTC(zone, ch.Due.DeadlineDate, ch.Due.DueTimeLocal)
	if err != nil {
		log.Printf("Sweep: deadline challenge %s has no usable deadline: %v", ch.ID, err)
		return nil
	}
	if now.Before(deadline) {
		return nil
	}

	key := outcome.DeadlineKey(ch.Due.DeadlineDate)
	required := ch.Cadence.RequiredCount

	for _, m := range members {
		count := ledger.CountBefore(checkIns, m.UserID, ch.Due.DeadlineDate)
		satisfied := ledger.Satisfied(count, required)

		_, applied, err := s.store.ApplyOutcome(ctx, ch.ID, m.UserID, key, func(cur challenge.Member) (challenge.Member, outcome.PeriodOutcome, bool) {
			next := cur
			next.LastEvaluatedKey = key
			return next, outcome.PeriodOutcome{
				Unit:         ch.Cadence.Unit,
				Count:        count,
				Required:     required,
				Satisfied:    satisfied,
				StrikesAfter: cur.Strikes,
				StreakAfter:  cur.CurrentStreak,
				StateAfter:   cur.State,
				EvaluatedAt:  now,
			}, true
		})
		if errors.Is(err, store.ErrMemberNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to close deadline for %s: %w", m.UserID, err)
		}
		if !applied {
			report.Duplicates++
			duplicateClosuresTotal.Inc()
			continue
		}

		report.PeriodsClosed++
		periodsClosedTotal.WithLabelValues(string(ch.Type), strconv.FormatBool(satisfied)).Inc()
		if !satisfied {
			report.Missed = append(report.Missed, m.UserID)
		}
		s.publish(ctx, notification.Event{
			Type:        notification.EventDeadlinePassed,
			ChallengeID: ch.ID,
			UserID:      m.UserID,
			PeriodKey:   key,
			Title:       "Deadline reached",
			Body:        deadlineBody(ch, satisfied, count, required),
			Data:        map[string]any{"count": count, "required": required, "passed": satisfied},
			OccurredAt:  now,
		})
	}

	return s.endChallenge(ctx, ch, now, report)
}

func (s *EvaluationService) closeProgress(ctx context.Context, ch challenge.Challenge, members []*challenge.Member, checkIns []*checkin.CheckIn, now time.Time, report *SweepReport) error {
	zone := timezone.ResolveAdminTimeZone(ch)
	due := ch.Due.DueTimeLocal
	startKey := progressStartKey(ch, zone)
	lastClosed := period.LastClosedDayKey(zone, due, now)
	limit, _ := lookback(ch, s.windowDays)

	for _, m := range members {
		if m.State != challenge.MemberActive {
			continue
		}

		for _, iv := range closedIntervals(ch, zone, startKey, lastClosed, m, limit) {
			count := ledger.CountInRange(checkIns, m.UserID, iv.StartKey, iv.EndKey)
			key := iv.StartKey

			_, applied, err := s.store.ApplyOutcome(ctx, ch.ID, m.UserID, key, func(cur challenge.Member) (challenge.Member, outcome.PeriodOutcome, bool) {
				if cur.State != challenge.MemberActive || alreadyEvaluated(cur, key) {
					return cur, outcome.PeriodOutcome{}, false
				}
				next, out := closePeriod(cur, ch, key, count, iv.Threshold, false, now)
				return next, out, true
			})
			if errors.Is(err, store.ErrMemberNotFound) {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to close interval %s for %s: %w", key, m.UserID, err)
			}
			if !applied {
				report.Duplicates++
				duplicateClosuresTotal.Inc()
				continue
			}

			satisfied := ledger.Satisfied(count, iv.Threshold)
			report.PeriodsClosed++
			periodsClosedTotal.WithLabelValues(string(ch.Type), strconv.FormatBool(satisfied)).Inc()
			if !satisfied {
				report.Missed = append(report.Missed, m.UserID+"@"+key)
			}
		}
	}
	return nil
}

func (s *EvaluationService) endChallenge(ctx context.Context, ch challenge.Challenge, now time.Time, report *SweepReport) error {
	ended, err := s.store.EndChallenge(ctx, ch.ID)
	if errors.Is(err, store.ErrChallengeNotFound) {
		report.NotFound = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to end challenge: %w", err)
	}
	if !ended {
		return nil
	}

	report.Ended = true
	challengesEndedTotal.WithLabelValues(string(ch.Type)).Inc()

	key := "ended"
	if ch.Type == challenge.TypeDeadline {
		key = outcome.DeadlineKey(ch.Due.DeadlineDate)
	}
	s.publish(ctx, notification.Event{
		Type:        notification.EventChallengeEnded,
		ChallengeID: ch.ID,
		PeriodKey:   key,
		Title:       "Challenge over",
		Body:        fmt.Sprintf("%s has ended.", displayName(ch)),
		OccurredAt:  now,
	})
	return nil
}

// closedKeys lists the recurring periods of m that have closed by now and have
// not been evaluated, oldest first, bounded by the ledger window.
func (s *EvaluationService) closedKeys(ch challenge.Challenge, zone string, m *challenge.Member, now time.Time) ([]string, error) {
	limit, step := lookback(ch, s.windowDays)

	var from, through string
	if ch.Cadence.Unit == challenge.CadenceWeekly {
		from = period.CurrentWeekKey(zone, ch.Cadence.WeekStartsOn, m.JoinedAt)
		through = period.LastClosedWeekKey(zone, ch.Cadence.WeekStartsOn, now)
	} else {
		from = period.CurrentDayKey(zone, ch.Due.DueTimeLocal, m.JoinedAt)
		through = period.LastClosedDayKey(zone, ch.Due.DueTimeLocal, now)
	}
	if through < from {
		return nil, nil
	}
	return period.KeysAfter(m.LastEvaluatedKey, from, through, step, limit)
}

// lookback returns how many periods one sweep may close per member and the
// period length in days.
func lookback(ch challenge.Challenge, windowDays int) (limit, stepDays int) {
	switch {
	case ch.Type == challenge.TypeProgress:
		stepDays = ch.Progression.DurationDays
	case ch.Cadence.Unit == challenge.CadenceWeekly:
		stepDays = 7
	default:
		stepDays = 1
	}
	if stepDays < 1 {
		stepDays = 1
	}
	limit = windowDays / stepDays
	if limit < 1 {
		limit = 1
	}
	return limit, stepDays
}

// ledgerSince bounds the check-in query so every period a sweep can close, and
// the one still open, is covered.
func ledgerSince(ch challenge.Challenge, windowDays int, now time.Time) time.Time {
	if ch.Type == challenge.TypeDeadline {
		return ch.CreatedAt
	}
	limit, step := lookback(ch, windowDays)
	return now.AddDate(0, 0, -((limit+1)*step + 1))
}

func (s *EvaluationService) publish(ctx context.Context, event notification.Event) {
	if s.publisher == nil {
		return
	}
	event.ID = uuid.New()
	s.publisher.Publish(ctx, event)
}

// closePeriod folds one closed period into the member.
func closePeriod(m challenge.Member, ch challenge.Challenge, key string, count, required int, countStrikes bool, now time.Time) (challenge.Member, outcome.PeriodOutcome) {
	satisfied := ledger.Satisfied(count, required)
	next := m

	if satisfied {
		next.CurrentStreak++
		if next.CurrentStreak > next.LongestStreak {
			next.LongestStreak = next.CurrentStreak
		}
	} else {
		next.CurrentStreak = 0
		if countStrikes {
			next.Strikes++
			if next.Strikes > ch.StrikesAllowed {
				eliminatedAt := now
				next.State = challenge.MemberEliminated
				next.EliminatedAt = &eliminatedAt
			}
		}
	}
	next.LastEvaluatedKey = key

	return next, outcome.PeriodOutcome{
		Unit:         ch.Cadence.Unit,
		Count:        count,
		Required:     required,
		Satisfied:    satisfied,
		StrikesAfter: next.Strikes,
		StreakAfter:  next.CurrentStreak,
		StateAfter:   next.State,
		EvaluatedAt:  now,
	}
}

// alreadyEvaluated guards against closing an older period after a newer one.
func alreadyEvaluated(m challenge.Member, key string) bool {
	return m.LastEvaluatedKey != "" && key <= m.LastEvaluatedKey
}

// shouldEndElimination ends a challenge once nobody is left, or once a group
// challenge is down to its last member standing.
func shouldEndElimination(total, active int) bool {
	if total == 0 {
		return false
	}
	return active == 0 || (total >= 2 && active <= 1)
}

func progressStartKey(ch challenge.Challenge, zone string) string {
	if _, err := period.ParseDayKey(ch.StartDate); err == nil {
		return ch.StartDate
	}
	return period.CurrentDayKey(zone, ch.Due.DueTimeLocal, ch.CreatedAt)
}

func closedIntervals(ch challenge.Challenge, zone, startKey, lastClosed string, m *challenge.Member, limit int) []period.Interval {
	duration, base, inc := ch.Progression.DurationDays, ch.Cadence.RequiredCount, ch.Progression.Increment

	index := 0
	if m.LastEvaluatedKey != "" {
		if iv, ok := period.IntervalFor(startKey, m.LastEvaluatedKey, duration, base, inc); ok {
			index = iv.Index + 1
		}
	} else {
		joinKey := period.CurrentDayKey(zone, ch.Due.DueTimeLocal, m.JoinedAt)
		if iv, ok := period.IntervalFor(startKey, joinKey, duration, base, inc); ok {
			index = iv.Index
		}
	}

	var intervals []period.Interval
	for {
		iv, ok := period.IntervalAt(startKey, index, duration, base, inc)
		if !ok || iv.EndKey > lastClosed {
			break
		}
		intervals = append(intervals, iv)
		index++
	}
	if len(intervals) > limit {
		intervals = intervals[len(intervals)-limit:]
	}
	return intervals
}

func displayName(ch challenge.Challenge) string {
	if ch.Name != "" {
		return ch.Name
	}
	return "your challenge"
}

func deadlineBody(ch challenge.Challenge, passed bool, count, required int) string {
	if passed {
		return fmt.Sprintf("%s is over. You made it with %d of %d check-ins.", displayName(ch), count, required)
	}
	return fmt.Sprintf("%s is over. You finished with %d of %d check-ins.", displayName(ch), count, required)
}
