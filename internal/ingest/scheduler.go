package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Listener is the streaming activity: it blocks until the context is
// cancelled, reconnecting internally as needed.
type Listener interface {
	Listen(ctx context.Context) error
}

// Scheduler drives the two long-running activities side by side:
//
//   - Activity A: the streaming feed listener, which owns its own
//     reconnect loop.
//   - Activity B: an infinite loop of ticker refresh, then sequential
//     backfill reconciliation across all instruments, then a fixed
//     sleep.
//
// Neither activity blocks the other; they share nothing but the
// store. There is no supervisory restart of the activities themselves.
// Only message-level and instrument-level errors are absorbed inside
// them; anything that escapes those boundaries is a structural bug
// and takes the process down.
type Scheduler struct {
	listener   Listener
	reconciler *Reconciler
	tickers    *TickerRefresher
	pairs      []string
	interval   time.Duration
}

// NewScheduler wires the activities together. interval is the sleep
// between periodic passes.
func NewScheduler(listener Listener, rec *Reconciler, tick *TickerRefresher, pairs []string, interval time.Duration) *Scheduler {
	return &Scheduler{
		listener:   listener,
		reconciler: rec,
		tickers:    tick,
		pairs:      pairs,
		interval:   interval,
	}
}

// Run starts both activities and blocks until the context is
// cancelled and both have stopped.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Strs("pairs", s.pairs).
		Dur("interval", s.interval).
		Msg("scheduler starting")

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := s.listener.Listen(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("stream listener exited")
		}
	}()

	go func() {
		defer wg.Done()
		s.periodicLoop(ctx)
	}()

	wg.Wait()
	log.Info().Msg("scheduler stopped")
	return ctx.Err()
}

// RunPass executes one full periodic pass: ticker refresh, then
// reconciliation for every instrument. Partial failures inside the
// pass are absorbed per instrument; the pass itself always completes.
func (s *Scheduler) RunPass(ctx context.Context) {
	started := time.Now()
	s.tickers.RefreshAll(ctx, s.pairs)
	s.reconciler.ReconcileAll(ctx, s.pairs)
	log.Info().Dur("took", time.Since(started)).Msg("periodic pass complete")
}

// periodicLoop runs passes separated by the configured interval until
// the context ends.
func (s *Scheduler) periodicLoop(ctx context.Context) {
	for {
		s.RunPass(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}
