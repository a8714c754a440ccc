package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strikeOutAPI/internal/store"
	"strikeOutAPI/internal/testutil"
	"strikeOutAPI/internal/types/challenge"
	"strikeOutAPI/internal/types/notification"
	"strikeOutAPI/internal/types/outcome"
)

func strike(m challenge.Member) (challenge.Member, outcome.PeriodOutcome, bool) {
	m.Strikes++
	return m, outcome.PeriodOutcome{StrikesAfter: m.Strikes}, true
}

func TestInMemoryStore_ApplyOutcomeOncePerKey(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	ch := testutil.Daily("UTC", "23:59", 5)
	testutil.Seed(t, st, ch, time.Now(), "alice")

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := st.ApplyOutcome(ctx, ch.ID, "alice", "2025-06-10", strike)
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
	assert.Equal(t, 1, testutil.Member(t, st, ch.ID, "alice").Strikes)

	outcomes, err := st.ListOutcomes(ctx, ch.ID, "alice")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "2025-06-10", outcomes[0].PeriodKey)
	assert.Equal(t, ch.ID, outcomes[0].ChallengeID)
}

func TestInMemoryStore_ApplyOutcomeSkipsWhenFuncDeclines(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	ch := testutil.Daily("UTC", "23:59", 0)
	testutil.Seed(t, st, ch, time.Now(), "alice")

	_, applied, err := st.ApplyOutcome(ctx, ch.ID, "alice", "2025-06-10", func(m challenge.Member) (challenge.Member, outcome.PeriodOutcome, bool) {
		return m, outcome.PeriodOutcome{}, false
	})
	require.NoError(t, err)
	assert.False(t, applied)

	outcomes, err := st.ListOutcomes(ctx, ch.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	_, _, err = st.ApplyOutcome(ctx, ch.ID, "nobody", "2025-06-10", strike)
	assert.ErrorIs(t, err, store.ErrMemberNotFound)
}

func TestInMemoryStore_MembersAndChallenges(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	ch := testutil.Daily("UTC", "23:59", 0)
	joined := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	testutil.Seed(t, st, ch, joined, "alice")

	// joining again keeps the original row
	require.NoError(t, st.AddMember(ctx, &challenge.Member{ChallengeID: ch.ID, UserID: "alice", JoinedAt: joined.Add(time.Hour)}))
	assert.Equal(t, joined, testutil.Member(t, st, ch.ID, "alice").JoinedAt)

	err := st.AddMember(ctx, &challenge.Member{ChallengeID: uuid.New(), UserID: "alice"})
	assert.ErrorIs(t, err, store.ErrChallengeNotFound)

	active, err := st.ListActiveChallenges(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	ended, err := st.EndChallenge(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, ended)

	ended, err = st.EndChallenge(ctx, ch.ID)
	require.NoError(t, err)
	assert.False(t, ended)

	active, err = st.ListActiveChallenges(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, st.DeleteChallenge(ctx, ch.ID))
	_, err = st.GetChallenge(ctx, ch.ID)
	assert.ErrorIs(t, err, store.ErrChallengeNotFound)
	_, err = st.GetMember(ctx, ch.ID, "alice")
	assert.ErrorIs(t, err, store.ErrMemberNotFound)
}

func TestInMemoryStore_EventLogAndDevices(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()

	first, err := st.MarkEventSent(ctx, "member_eliminated|x|alice|2025-06-10")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = st.MarkEventSent(ctx, "member_eliminated|x|alice|2025-06-10")
	require.NoError(t, err)
	assert.False(t, first)

	require.NoError(t, st.RegisterDevice(ctx, "alice", notification.DeviceToken{Token: "tok-1", Platform: "android"}))
	require.NoError(t, st.RegisterDevice(ctx, "alice", notification.DeviceToken{Token: "tok-1", Platform: "ios"}))
	require.NoError(t, st.RegisterDevice(ctx, "alice", notification.DeviceToken{Token: "tok-2", Platform: "ios"}))

	tokens, err := st.DeviceTokens(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []notification.DeviceToken{
		{Token: "tok-1", Platform: "ios"},
		{Token: "tok-2", Platform: "ios"},
	}, tokens)
}

func TestInMemoryStore_ListCheckInsSince(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	ch := testutil.Daily("UTC", "23:59", 0)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	testutil.Seed(t, st, ch, base, "alice")

	testutil.CheckIn(t, st, ch.ID, "alice", dayPeriod("2025-05-31"), base)
	testutil.CheckIn(t, st, ch.ID, "alice", dayPeriod("2025-06-04"), base.Add(72*time.Hour))

	all, err := st.ListCheckIns(ctx, ch.ID, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	recent, err := st.ListCheckIns(ctx, ch.ID, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "2025-06-04", recent[0].Period.DayKey)
}
