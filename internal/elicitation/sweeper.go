package elicitation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/stepup/internal/metrics"
)

const defaultSweepInterval = 30 * time.Second

// Sweeper periodically expires pending elicitations nobody answered.
type Sweeper struct {
	manager  *Manager
	reaper   Reaper
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper. If interval is <= 0, it defaults to 30s.
// Stores that implement Reaper are reaped after every cycle.
func NewSweeper(m *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	s := &Sweeper{
		manager:  m,
		interval: interval,
		logger:   m.logger,
	}
	if r, ok := m.store.(Reaper); ok {
		s.reaper = r
	}
	return s
}

// Run sweeps until ctx is cancelled. Cancellation interrupts the wait between
// cycles; a cycle that has started runs to completion.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("elicitation sweeper started", "interval", s.interval.String())
	defer s.logger.Info("elicitation sweeper stopped")
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := s.RunOnce(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("sweep cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

// RunOnce performs a single sweep and returns how many records it expired.
// Errors on individual records are logged and do not stop the sweep; only a
// failure to list candidates is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ids, err := s.manager.FindExpired(ctx)
	if err != nil {
		metrics.RecordSweep(0, 1)
		return 0, fmt.Errorf("finding expired elicitations: %w", err)
	}

	expired, failures := 0, 0
	for _, id := range ids {
		// Re-read: a response may have claimed the record since the scan.
		st, found, err := s.manager.Get(ctx, id)
		if err != nil {
			failures++
			s.logger.Error("failed to load expired elicitation", "elicitation_id", id, "error", err)
			continue
		}
		if !found || st.Status != StatusPending {
			continue
		}
		ok, err := s.manager.expire(ctx, st)
		if err != nil {
			failures++
			s.logger.Error("failed to expire elicitation", "elicitation_id", id, "error", err)
			continue
		}
		if ok {
			expired++
		}
	}

	if s.reaper != nil {
		n, err := s.reaper.Reap(ctx, s.manager.clock.Now().UTC())
		if err != nil {
			failures++
			s.logger.Error("failed to reap stale records", "error", err)
		} else if n > 0 {
			s.logger.Debug("reaped stale records", "count", n)
		}
	}

	metrics.RecordSweep(expired, failures)
	if expired > 0 {
		s.logger.Info("sweep expired elicitations", "count", expired)
	}
	return expired, nil
}
