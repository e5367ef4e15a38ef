package cache

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/facetrace-ai/facetrace/pkg/metrics"
)

// Sweeper periodically deletes expired and reclaimable entries from a Store.
type Sweeper struct {
	store    Store
	interval time.Duration
	recorder *metrics.Recorder
	logger   *log.Logger
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewSweeper creates a Sweeper. Call Start to launch the background loop.
func NewSweeper(store Store, interval time.Duration, recorder *metrics.Recorder) *Sweeper {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		recorder: recorder,
		logger:   log.With("component", "sweeper"),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	close(s.done)
	s.wg.Wait()
}

// SweepNow runs a single sweep immediately and returns the removed count.
func (s *Sweeper) SweepNow(ctx context.Context) (int64, error) {
	removed, err := s.store.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	s.recorder.Swept(ctx, removed)
	return removed, nil
}

func (s *Sweeper) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			removed, err := s.SweepNow(context.Background())
			if err != nil {
				s.logger.Error("Cache sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Info("Cache sweep removed entries", "count", removed)
			}
		}
	}
}
