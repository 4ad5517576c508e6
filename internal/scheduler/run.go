package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealflow/internal/logging"
)

// Recover marks records stuck in dispatching by an earlier process as
// errored. They are never re-sent since the platform may have received them.
func (s *Scheduler) Recover(ctx context.Context) (int64, error) {
	recovered, err := s.store.RecoverDispatching(ctx, s.Now())
	if err != nil {
		return 0, fmt.Errorf("recover dispatching deliveries: %w", err)
	}
	if recovered > 0 {
		logging.WarnWithContext(s.logger, "recovered interrupted deliveries", "dispatch_recovered",
			logging.Int64("count", recovered),
			logging.String(logging.FieldImpact, "interrupted posts recorded as errors and not re-sent"),
			logging.String(logging.FieldErrorHint, "check the platforms for duplicate or missing posts"),
		)
	}
	return recovered, nil
}

// Run recovers interrupted deliveries, ticks immediately, then ticks every
// tick interval until ctx is cancelled. Tick errors are logged and the loop
// keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.Recover(ctx); err != nil {
		return err
	}

	interval := s.cfg.TickInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		logging.Duration("tick_interval", interval),
		logging.Any("platforms", s.registry.Names()),
	)
	for {
		s.runTick(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logging.ErrorWithContext(s.logger, "scheduler tick failed", "tick_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
	}
}
