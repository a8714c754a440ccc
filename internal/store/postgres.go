package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"strikeOutAPI/internal/types/challenge"
	"strikeOutAPI/internal/types/checkin"
	"strikeOutAPI/internal/types/notification"
	"strikeOutAPI/internal/types/outcome"
)

const maxTxAttempts = 3

const schema = `
CREATE TABLE IF NOT EXISTS challenges (
	id                    UUID PRIMARY KEY,
	name                  TEXT NOT NULL DEFAULT '',
	type                  TEXT NOT NULL,
	cadence_unit          TEXT NOT NULL DEFAULT 'daily',
	required_count        INT  NOT NULL DEFAULT 1,
	week_starts_on        INT  NOT NULL DEFAULT 0,
	due_time_local        TEXT NOT NULL DEFAULT '23:59',
	timezone_mode         TEXT NOT NULL DEFAULT 'groupLocal',
	timezone              TEXT NOT NULL DEFAULT '',
	timezone_offset       INT,
	deadline_date         TEXT NOT NULL DEFAULT '',
	strikes_allowed       INT  NOT NULL DEFAULT 0,
	start_date            TEXT NOT NULL DEFAULT '',
	progression_duration  INT  NOT NULL DEFAULT 7,
	progression_increment INT  NOT NULL DEFAULT 0,
	state                 TEXT NOT NULL DEFAULT 'active',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS challenge_members (
	challenge_id       UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
	user_id            TEXT NOT NULL,
	state              TEXT NOT NULL DEFAULT 'active',
	strikes            INT  NOT NULL DEFAULT 0 CHECK (strikes >= 0),
	current_streak     INT  NOT NULL DEFAULT 0 CHECK (current_streak >= 0),
	longest_streak     INT  NOT NULL DEFAULT 0,
	last_evaluated_key TEXT NOT NULL DEFAULT '',
	joined_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	eliminated_at      TIMESTAMPTZ,
	PRIMARY KEY (challenge_id, user_id)
);

CREATE TABLE IF NOT EXISTS check_ins (
	id           UUID PRIMARY KEY,
	challenge_id UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL,
	period_unit  TEXT NOT NULL,
	day_key      TEXT NOT NULL DEFAULT '',
	week_key     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	note         TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_check_ins_challenge_created ON check_ins (challenge_id, created_at);

CREATE TABLE IF NOT EXISTS period_outcomes (
	id            UUID PRIMARY KEY,
	challenge_id  UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
	user_id       TEXT NOT NULL,
	period_key    TEXT NOT NULL,
	unit          TEXT NOT NULL,
	count         INT  NOT NULL,
	required      INT  NOT NULL,
	satisfied     BOOLEAN NOT NULL,
	strikes_after INT  NOT NULL,
	streak_after  INT  NOT NULL,
	state_after   TEXT NOT NULL,
	evaluated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (challenge_id, user_id, period_key)
);

CREATE TABLE IF NOT EXISTS device_tokens (
	user_id  TEXT NOT NULL,
	token    TEXT NOT NULL,
	platform TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (user_id, token)
);

CREATE TABLE IF NOT EXISTS notification_log (
	dedup_key TEXT PRIMARY KEY,
	sent_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const challengeColumns = `id, name, type, cadence_unit, required_count, week_starts_on, due_time_local,
	timezone_mode, timezone, timezone_offset, deadline_date, strikes_allowed, start_date,
	progression_duration, progression_increment, state, created_at`

const memberColumns = `challenge_id, user_id, state, strikes, current_streak, longest_streak,
	last_evaluated_key, joined_at, eliminated_at`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables the engine reads and writes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) PutChallenge(ctx context.Context, ch *challenge.Challenge) error {
	c := ch.WithDefaults()
	query := `
	INSERT INTO challenges (` + challengeColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		cadence_unit = EXCLUDED.cadence_unit,
		required_count = EXCLUDED.required_count,
		week_starts_on = EXCLUDED.week_starts_on,
		due_time_local = EXCLUDED.due_time_local,
		timezone_mode = EXCLUDED.timezone_mode,
		timezone = EXCLUDED.timezone,
		timezone_offset = EXCLUDED.timezone_offset,
		deadline_date = EXCLUDED.deadline_date,
		strikes_allowed = EXCLUDED.strikes_allowed,
		start_date = EXCLUDED.start_date,
		progression_duration = EXCLUDED.progression_duration,
		progression_increment = EXCLUDED.progression_increment
	`
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, query,
		c.ID, c.Name, c.Type, c.Cadence.Unit, c.Cadence.RequiredCount, c.Cadence.WeekStartsOn,
		c.Due.DueTimeLocal, c.Due.TimezoneMode, c.Due.Timezone, c.Due.TimezoneOffset, c.Due.DeadlineDate,
		c.StrikesAllowed, c.StartDate, c.Progression.DurationDays, c.Progression.Increment, c.State, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddMember(ctx context.Context, m *challenge.Member) error {
	query := `
	INSERT INTO challenge_members (challenge_id, user_id, state, joined_at)
	VALUES ($1, $2, 'active', $3)
	ON CONFLICT (challenge_id, user_id) DO NOTHING
	`
	joined := m.JoinedAt
	if joined.IsZero() {
		joined = time.Now()
	}
	if _, err := s.db.Exec(ctx, query, m.ChallengeID, m.UserID, joined); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrChallengeNotFound
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RegisterDevice(ctx context.Context, userID string, token notification.DeviceToken) error {
	query := `
	INSERT INTO device_tokens (user_id, token, platform)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id, token) DO UPDATE SET platform = EXCLUDED.platform
	`
	if _, err := s.db.Exec(ctx, query, userID, token.Token, token.Platform); err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	row := s.db.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id)
	ch, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return ch, nil
}

func (s *PostgresStore) ListActiveChallenges(ctx context.Context) ([]*challenge.Challenge, error) {
	rows, err := s.db.Query(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE state = 'active' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*challenge.Challenge
	for rows.Next() {
		ch, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, ch)
	}
	return challenges, rows.Err()
}

func (s *PostgresStore) ListMembers(ctx context.Context, challengeID uuid.UUID) ([]*challenge.Member, error) {
	rows, err := s.db.Query(ctx, `SELECT `+memberColumns+` FROM challenge_members WHERE challenge_id = $1 ORDER BY user_id`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*challenge.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PostgresStore) GetMember(ctx context.Context, challengeID uuid.UUID, userID string) (*challenge.Member, error) {
	row := s.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM challenge_members WHERE challenge_id = $1 AND user_id = $2`, challengeID, userID)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) InsertCheckIn(ctx context.Context, ci *checkin.CheckIn) error {
	if ci.ID == uuid.Nil {
		ci.ID = uuid.New()
	}
	query := `
	INSERT INTO check_ins (id, challenge_id, user_id, period_unit, day_key, week_key, status, note, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.Exec(ctx, query, ci.ID, ci.ChallengeID, ci.UserID, ci.Period.Unit,
		ci.Period.DayKey, ci.Period.WeekKey, ci.Status, ci.Note, ci.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrChallengeNotFound
		}
		return fmt.Errorf("failed to insert check-in: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCheckIns(ctx context.Context, challengeID uuid.UUID, since time.Time) ([]*checkin.CheckIn, error) {
	query := `
	SELECT id, challenge_id, user_id, period_unit, day_key, week_key, status, note, created_at
	FROM check_ins
	WHERE challenge_id = $1 AND created_at >= $2
	ORDER BY created_at
	`
	rows, err := s.db.Query(ctx, query, challengeID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	defer rows.Close()

	var checkIns []*checkin.CheckIn
	for rows.Next() {
		ci := &checkin.CheckIn{}
		if err := rows.Scan(&ci.ID, &ci.ChallengeID, &ci.UserID, &ci.Period.Unit, &ci.Period.DayKey,
			&ci.Period.WeekKey, &ci.Status, &ci.Note, &ci.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		checkIns = append(checkIns, ci)
	}
	return checkIns, rows.Err()
}

func (s *PostgresStore) ApplyOutcome(ctx context.Context, challengeID uuid.UUID, userID, periodKey string, fn CloseFunc) (*challenge.Member, bool, error) {
	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		member, applied, err := s.applyOutcome(ctx, challengeID, userID, periodKey, fn)
		if err == nil || !isRetryable(err) {
			return member, applied, err
		}
		lastErr = err
		log.Printf("Store: retrying outcome %s/%s/%s after conflict (attempt %d): %v", challengeID, userID, periodKey, attempt, err)
	}
	return nil, false, fmt.Errorf("failed to apply outcome after %d attempts: %w", maxTxAttempts, lastErr)
}

func (s *PostgresStore) applyOutcome(ctx context.Context, challengeID uuid.UUID, userID, periodKey string, fn CloseFunc) (*challenge.Member, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+memberColumns+` FROM challenge_members WHERE challenge_id = $1 AND user_id = $2 FOR UPDATE`, challengeID, userID)
	current, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrMemberNotFound
		}
		return nil, false, fmt.Errorf("failed to lock member: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM period_outcomes WHERE challenge_id = $1 AND user_id = $2 AND period_key = $3)`,
		challengeID, userID, periodKey).Scan(&exists)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check outcome: %w", err)
	}
	if exists {
		return current, false, nil
	}

	next, out, write := fn(*current)
	if !write {
		return current, false, nil
	}
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}

	insert := `
	INSERT INTO period_outcomes (id, challenge_id, user_id, period_key, unit, count, required, satisfied,
		strikes_after, streak_after, state_after, evaluated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (challenge_id, user_id, period_key) DO NOTHING
	`
	tag, err := tx.Exec(ctx, insert, out.ID, challengeID, userID, periodKey, out.Unit, out.Count, out.Required,
		out.Satisfied, out.StrikesAfter, out.StreakAfter, out.StateAfter, out.EvaluatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return current, false, nil
	}

	update := `
	UPDATE challenge_members
	SET state = $3, strikes = $4, current_streak = $5, longest_streak = $6,
		last_evaluated_key = $7, eliminated_at = $8
	WHERE challenge_id = $1 AND user_id = $2
	`
	_, err = tx.Exec(ctx, update, challengeID, userID, next.State, next.Strikes, next.CurrentStreak,
		next.LongestStreak, next.LastEvaluatedKey, next.EliminatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update member: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit outcome: %w", err)
	}
	return &next, true, nil
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, challengeID uuid.UUID, userID string) ([]*outcome.PeriodOutcome, error) {
	query := `
	SELECT id, challenge_id, user_id, period_key, unit, count, required, satisfied,
		strikes_after, streak_after, state_after, evaluated_at
	FROM period_outcomes
	WHERE challenge_id = $1 AND user_id = $2
	ORDER BY period_key
	`
	rows, err := s.db.Query(ctx, query, challengeID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*outcome.PeriodOutcome
	for rows.Next() {
		o := &outcome.PeriodOutcome{}
		if err := rows.Scan(&o.ID, &o.ChallengeID, &o.UserID, &o.PeriodKey, &o.Unit, &o.Count, &o.Required,
			&o.Satisfied, &o.StrikesAfter, &o.StreakAfter, &o.StateAfter, &o.EvaluatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *PostgresStore) EndChallenge(ctx context.Context, challengeID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE challenges SET state = 'ended' WHERE id = $1 AND state = 'active'`, challengeID)
	if err != nil {
		return false, fmt.Errorf("failed to end challenge: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.GetChallenge(ctx, challengeID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) MarkEventSent(ctx context.Context, dedupKey string) (bool, error) {
	tag, err := s.db.Exec(ctx, `INSERT INTO notification_log (dedup_key) VALUES ($1) ON CONFLICT (dedup_key) DO NOTHING`, dedupKey)
	if err != nil {
		return false, fmt.Errorf("failed to record notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `SELECT token, platform FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	ch := &challenge.Challenge{}
	err := row.Scan(
		&ch.ID, &ch.Name, &ch.Type, &ch.Cadence.Unit, &ch.Cadence.RequiredCount, &ch.Cadence.WeekStartsOn,
		&ch.Due.DueTimeLocal, &ch.Due.TimezoneMode, &ch.Due.Timezone, &ch.Due.TimezoneOffset, &ch.Due.DeadlineDate,
		&ch.StrikesAllowed, &ch.StartDate, &ch.Progression.DurationDays, &ch.Progression.Increment,
		&ch.State, &ch.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func scanMember(row pgx.Row) (*challenge.Member, error) {
	m := &challenge.Member{}
	err := row.Scan(&m.ChallengeID, &m.UserID, &m.State, &m.Strikes, &m.CurrentStreak, &m.LongestStreak,
		&m.LastEvaluatedKey, &m.JoinedAt, &m.EliminatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// isRetryable reports serialization failures and deadlocks.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
