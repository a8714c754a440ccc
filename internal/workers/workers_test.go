package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"strikeOutAPI/services"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepAll(ctx context.Context) ([]*services.SweepReport, error) {
	s.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("sweep context has no deadline")
	}
	return []*services.SweepReport{
		{ChallengeID: uuid.New(), PeriodsClosed: 2, Eliminated: []string{"alice"}, Ended: true},
	}, s.err
}

func TestSweepWorker_RunsImmediatelyAndOnTick(t *testing.T) {
	sweeper := &countingSweeper{}
	w := NewSweepWorker(sweeper, 20*time.Millisecond)
	w.Start()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	w.Stop()
	stopped := sweeper.calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, sweeper.calls.Load(), "no sweeps after Stop")

	w.Stop()
}

func TestSweepWorker_KeepsRunningAfterErrors(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("db down")}
	w := NewSweepWorker(sweeper, 10*time.Millisecond)
	w.Start()
	defer w.Stop()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestNewSweepWorker_DefaultInterval(t *testing.T) {
	w := NewSweepWorker(&countingSweeper{}, 0)
	assert.Equal(t, time.Minute, w.interval)
}
