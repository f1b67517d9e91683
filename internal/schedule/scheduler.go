// Package schedule runs sweeps repeatedly on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers a sweep whenever its cron schedule fires, until
// the context is cancelled. A tick that arrives while the previous
// sweep is still running is skipped rather than queued.
type Scheduler struct {
	spec   string
	sweep  func(context.Context) error
	cron   *cron.Cron
	logger *slog.Logger

	busy sync.Mutex
}

// New validates the cron expression and builds a scheduler around the
// given sweep function. Standard five-field cron syntax plus
// descriptors like "@daily" and "@every 12h" are accepted.
func New(spec string, sweep func(context.Context) error, logger *slog.Logger) (*Scheduler, error) {
	if sweep == nil {
		return nil, fmt.Errorf("sweep function is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return &Scheduler{
		spec:   spec,
		sweep:  sweep,
		cron:   cron.New(),
		logger: logger,
	}, nil
}

// Run blocks until ctx is cancelled, firing sweeps on schedule. A
// sweep already in flight when cancellation arrives is allowed to
// finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.execute(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.cron.Start()
	if next := s.NextRun(); next != nil {
		s.logger.Info("scheduler started", "schedule", s.spec, "next_run", next.UTC())
	}

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()

	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// NextRun reports when the next sweep fires, nil before Run starts.
func (s *Scheduler) NextRun() *time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

func (s *Scheduler) execute(ctx context.Context) {
	if !s.busy.TryLock() {
		s.logger.Warn("previous sweep still running, skipping this tick")
		return
	}
	defer s.busy.Unlock()

	s.logger.Info("starting scheduled sweep")
	if err := s.sweep(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("scheduled sweep failed", "error", err)
		return
	}
	s.logger.Info("scheduled sweep finished")
}
