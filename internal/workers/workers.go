package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"strikeOutAPI/services"
)

// Sweeper is satisfied by *services.EvaluationService.
type Sweeper interface {
	SweepAll(ctx context.Context) ([]*services.SweepReport, error)
}

// SweepWorker closes due periods for every active challenge on a fixed interval.
type SweepWorker struct {
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSweepWorker(sweeper Sweeper, interval time.Duration) *SweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweepWorker{
		sweeper:  sweeper,
		interval: interval,
		timeout:  5 * time.Minute,
		stopChan: make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per tick until Stop.
func (w *SweepWorker) Start() {
	ticker := time.NewTicker(w.interval)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ticker.Stop()

		w.runOnce()
		for {
			select {
			case <-ticker.C:
				w.runOnce()
			case <-w.stopChan:
				return
			}
		}
	}()
}

func (w *SweepWorker) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	reports, err := w.sweeper.SweepAll(ctx)
	if err != nil {
		log.Printf("Sweep worker: completed with errors: %v", err)
	}

	closed, eliminated, ended := 0, 0, 0
	for _, r := range reports {
		closed += r.PeriodsClosed
		eliminated += len(r.Eliminated)
		if r.Ended {
			ended++
		}
	}
	if closed > 0 || ended > 0 {
		log.Printf("Sweep worker: %d challenges, %d periods closed, %d eliminated, %d ended", len(reports), closed, eliminated, ended)
	}
}

func (w *SweepWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
		log.Println("Sweep worker stopped")
	})
}
