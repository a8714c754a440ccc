package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"strikeOutAPI/internal/store"
	"strikeOutAPI/internal/testutil"
	"strikeOutAPI/internal/types/challenge"
	"strikeOutAPI/internal/types/checkin"
	"strikeOutAPI/internal/types/notification"
)

// setupPostgres starts a throwaway Postgres and returns a migrated store.
// The test is skipped when Docker is not available.
func setupPostgres(t *testing.T) (*store.PostgresStore, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres store test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "user",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://user:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	var pool *pgxpool.Pool
	for i := 0; i < 5; i++ {
		pool, err = pgxpool.New(ctx, dsn)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		time.Sleep(2 * time.Second)
	}
	require.NoError(t, err, "failed to connect to database after multiple attempts")
	t.Cleanup(pool.Close)

	st := store.NewPostgresStore(pool)
	require.NoError(t, st.Migrate(ctx))
	return st, pool
}

func TestPostgresStore(t *testing.T) {
	st, pool := setupPostgres(t)
	ctx := context.Background()

	offset := -240
	ch := testutil.Weekly("America/New_York", 1, 3, 1)
	ch.Due.TimezoneOffset = &offset
	ch.CreatedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.PutChallenge(ctx, ch))

	t.Run("challenge round trip", func(t *testing.T) {
		got, err := st.GetChallenge(ctx, ch.ID)
		require.NoError(t, err)
		assert.Equal(t, ch.Cadence, got.Cadence)
		assert.Equal(t, ch.Due.Timezone, got.Due.Timezone)
		require.NotNil(t, got.Due.TimezoneOffset)
		assert.Equal(t, -240, *got.Due.TimezoneOffset)
		assert.Equal(t, challenge.StateActive, got.State)

		_, err = st.GetChallenge(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrChallengeNotFound)
	})

	t.Run("members", func(t *testing.T) {
		joined := ch.CreatedAt
		require.NoError(t, st.AddMember(ctx, &challenge.Member{ChallengeID: ch.ID, UserID: "alice", JoinedAt: joined}))
		require.NoError(t, st.AddMember(ctx, &challenge.Member{ChallengeID: ch.ID, UserID: "alice", JoinedAt: joined.Add(time.Hour)}))
		require.NoError(t, st.AddMember(ctx, &challenge.Member{ChallengeID: ch.ID, UserID: "bob", JoinedAt: joined}))

		members, err := st.ListMembers(ctx, ch.ID)
		require.NoError(t, err)
		assert.Len(t, members, 2)

		alice, err := st.GetMember(ctx, ch.ID, "alice")
		require.NoError(t, err)
		assert.True(t, joined.Equal(alice.JoinedAt))

		err = st.AddMember(ctx, &challenge.Member{ChallengeID: uuid.New(), UserID: "alice"})
		assert.ErrorIs(t, err, store.ErrChallengeNotFound)
	})

	t.Run("check-ins", func(t *testing.T) {
		ci := &checkin.CheckIn{
			ID:          uuid.New(),
			ChallengeID: ch.ID,
			UserID:      "alice",
			Period:      checkin.Period{Unit: challenge.CadenceWeekly, DayKey: "2025-06-03", WeekKey: "2025-06-02"},
			Status:      checkin.StatusCompleted,
			CreatedAt:   ch.CreatedAt.Add(48 * time.Hour),
		}
		require.NoError(t, st.InsertCheckIn(ctx, ci))

		got, err := st.ListCheckIns(ctx, ch.ID, ch.CreatedAt)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, ci.Period, got[0].Period)

		ci.ID = uuid.New()
		ci.ChallengeID = uuid.New()
		assert.ErrorIs(t, st.InsertCheckIn(ctx, ci), store.ErrChallengeNotFound)
	})

	t.Run("outcome applied once under contention", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		applied := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := st.ApplyOutcome(ctx, ch.ID, "bob", "2025-06-02", strike)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					applied++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, applied)
		bob, err := st.GetMember(ctx, ch.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, 1, bob.Strikes)

		outcomes, err := st.ListOutcomes(ctx, ch.ID, "bob")
		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		assert.Equal(t, 1, outcomes[0].StrikesAfter)
	})

	t.Run("events and devices", func(t *testing.T) {
		first, err := st.MarkEventSent(ctx, "challenge_ended|"+ch.ID.String()+"||ended")
		require.NoError(t, err)
		assert.True(t, first)
		first, err = st.MarkEventSent(ctx, "challenge_ended|"+ch.ID.String()+"||ended")
		require.NoError(t, err)
		assert.False(t, first)

		require.NoError(t, st.RegisterDevice(ctx, "alice", notification.DeviceToken{Token: "tok-1", Platform: "android"}))
		require.NoError(t, st.RegisterDevice(ctx, "alice", notification.DeviceToken{Token: "tok-1", Platform: "ios"}))
		tokens, err := st.DeviceTokens(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []notification.DeviceToken{{Token: "tok-1", Platform: "ios"}}, tokens)
	})

	t.Run("unreadable device token row is an error", func(t *testing.T) {
		_, err := pool.Exec(ctx, `ALTER TABLE device_tokens ALTER COLUMN platform DROP NOT NULL`)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `INSERT INTO device_tokens (user_id, token, platform) VALUES ('carol', 'tok-null', NULL)`)
		require.NoError(t, err)

		tokens, err := st.DeviceTokens(ctx, "carol")
		assert.ErrorContains(t, err, "failed to scan device token")
		assert.Nil(t, tokens)
	})

	t.Run("end challenge", func(t *testing.T) {
		ended, err := st.EndChallenge(ctx, ch.ID)
		require.NoError(t, err)
		assert.True(t, ended)

		ended, err = st.EndChallenge(ctx, ch.ID)
		require.NoError(t, err)
		assert.False(t, ended)

		_, err = st.EndChallenge(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrChallengeNotFound)
	})
}
