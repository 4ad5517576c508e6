package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dealflow/internal/logging"
	"dealflow/internal/platform"
	"dealflow/internal/store"
)

// Outcome is the recorded result of one dispatch.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeError     Outcome = "error"
	OutcomeRetrying  Outcome = "retrying"
	// OutcomeSkipped means the record was no longer claimable.
	OutcomeSkipped Outcome = "skipped"
)

const noAdapterReason = "no adapter"

// TickResult summarizes one tick.
type TickResult struct {
	TickID    string `json:"tick_id"`
	Due       int    `json:"due"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Errored   int    `json:"errored"`
	Retried   int    `json:"retried"`
	Skipped   int    `json:"skipped"`
}

func (r *TickResult) add(outcome Outcome) {
	switch outcome {
	case OutcomeCompleted:
		r.Completed++
	case OutcomeFailed:
		r.Failed++
	case OutcomeError:
		r.Errored++
	case OutcomeRetrying:
		r.Retried++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// Tick dispatches every record due at the current time. A concurrent call
// waits for the running tick to finish.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	result := TickResult{TickID: uuid.NewString()}
	ctx = logging.WithTickID(ctx, result.TickID)
	logger := logging.WithContext(ctx, s.logger)

	due, err := s.store.DueDeliveries(ctx, s.Now())
	if err != nil {
		s.metrics.ObserveTick("error")
		return result, fmt.Errorf("select due deliveries: %w", err)
	}
	result.Due = len(due)

	for _, d := range due {
		if err := ctx.Err(); err != nil {
			s.metrics.ObserveTick("error")
			return result, err
		}
		outcome, err := s.dispatch(ctx, logger, d)
		if err != nil {
			s.metrics.ObserveTick("error")
			logging.ErrorWithContext(logger, "tick aborted by store failure", "tick_aborted",
				logging.Int64(logging.FieldDeliveryID, d.ID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check database access; remaining records run next tick"),
			)
			return result, err
		}
		result.add(outcome)
	}

	s.metrics.ObserveTick("ok")
	s.refreshQueueDepth(ctx, logger)
	if result.Due > 0 {
		logger.Info("tick complete",
			logging.Int("due", result.Due),
			logging.Int("completed", result.Completed),
			logging.Int("failed", result.Failed),
			logging.Int("errored", result.Errored),
			logging.Int("retried", result.Retried),
			logging.Int("skipped", result.Skipped),
		)
	} else {
		logger.Debug("tick complete; nothing due")
	}
	return result, nil
}

// dispatch claims one record, calls its adapter, and records the outcome.
// A non-nil error is a store failure.
func (s *Scheduler) dispatch(ctx context.Context, logger *slog.Logger, d *store.Delivery) (Outcome, error) {
	logger = logger.With(
		logging.Int64(logging.FieldDeliveryID, d.ID),
		logging.Int64(logging.FieldProductID, d.ProductID),
		logging.String(logging.FieldPlatform, d.Platform),
	)

	// The product is read before the claim so a store failure here leaves
	// the record pending for the next tick.
	product, err := s.store.GetProduct(ctx, d.ProductID)
	missing := errors.Is(err, store.ErrNotFound)
	if err != nil && !missing {
		return "", fmt.Errorf("load product %d: %w", d.ProductID, err)
	}

	claimed, err := s.store.ClaimDelivery(ctx, d.ID, s.Now())
	if err != nil {
		return "", fmt.Errorf("claim delivery %d: %w", d.ID, err)
	}
	if !claimed {
		logger.Debug("delivery no longer claimable; skipping")
		return OutcomeSkipped, nil
	}
	attempts := d.Attempts + 1

	// Outcome writes must land even when shutdown cancels ctx mid-dispatch.
	writeCtx := context.WithoutCancel(ctx)

	if missing {
		return s.recordFault(writeCtx, logger, d, attempts, "product not found")
	}

	adapter, ok := s.registry.Get(d.Platform)
	if !ok {
		return s.recordFault(writeCtx, logger, d, attempts, noAdapterReason)
	}

	started := time.Now()
	deliverErr := s.deliver(ctx, adapter, platform.ContentFor(product, d.Template))
	elapsed := time.Since(started)

	switch {
	case deliverErr == nil:
		if err := s.store.CompleteDelivery(writeCtx, d.ID, s.Now()); err != nil {
			return "", fmt.Errorf("complete delivery %d: %w", d.ID, err)
		}
		s.metrics.ObserveDelivery(d.Platform, string(OutcomeCompleted), elapsed)
		logger.Info("delivery completed", logging.Duration("elapsed", elapsed))
		return OutcomeCompleted, nil
	case platform.IsRejected(deliverErr):
		if err := s.store.FailDelivery(writeCtx, d.ID, deliverErr.Error(), s.Now()); err != nil {
			return "", fmt.Errorf("fail delivery %d: %w", d.ID, err)
		}
		s.metrics.ObserveDelivery(d.Platform, string(OutcomeFailed), elapsed)
		logging.WarnWithContext(logger, "platform rejected delivery", "delivery_rejected",
			logging.Error(deliverErr),
			logging.String(logging.FieldImpact, "post will not be retried"),
			logging.String(logging.FieldErrorHint, "review product content or platform account"),
		)
		return OutcomeFailed, nil
	default:
		outcome, err := s.recordFault(writeCtx, logger, d, attempts, deliverErr.Error())
		if err == nil {
			s.metrics.ObserveDelivery(d.Platform, string(outcome), elapsed)
		}
		return outcome, err
	}
}

// recordFault stores a transport-level failure as retrying while attempts
// remain, otherwise as error.
func (s *Scheduler) recordFault(ctx context.Context, logger *slog.Logger, d *store.Delivery, attempts int, reason string) (Outcome, error) {
	now := s.Now()
	if attempts < s.cfg.Scheduler.MaxAttempts {
		next := now.Add(s.cfg.RetryBackoff() * time.Duration(attempts))
		if err := s.store.RetryDelivery(ctx, d.ID, next, reason, now); err != nil {
			return "", fmt.Errorf("reschedule delivery %d: %w", d.ID, err)
		}
		logging.WarnWithContext(logger, "delivery failed; retry scheduled", "delivery_retry",
			logging.String("reason", reason),
			logging.Int("attempt", attempts),
			logging.Time("next_attempt", next),
			logging.String(logging.FieldImpact, "post delayed"),
		)
		return OutcomeRetrying, nil
	}
	if err := s.store.ErrorDelivery(ctx, d.ID, reason, now); err != nil {
		return "", fmt.Errorf("error delivery %d: %w", d.ID, err)
	}
	logging.WarnWithContext(logger, "delivery errored", "delivery_error",
		logging.String("reason", reason),
		logging.Int("attempt", attempts),
		logging.String(logging.FieldImpact, "post not sent"),
		logging.String(logging.FieldErrorHint, "check platform credentials and connectivity"),
	)
	return OutcomeError, nil
}

// deliver runs one adapter call under the adapter timeout. Panics are
// converted to errors. An adapter that ignores its context is abandoned
// once the deadline passes.
func (s *Scheduler) deliver(ctx context.Context, adapter platform.Adapter, content platform.Content) error {
	timeout := s.cfg.AdapterTimeout()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("adapter panic: %v", r)
			}
		}()
		done <- adapter.Deliver(callCtx, content)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !platform.IsRejected(err) {
			return fmt.Errorf("adapter timed out after %s: %w", timeout, err)
		}
		return err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("adapter timed out after %s", timeout)
		}
		return fmt.Errorf("adapter call cancelled: %w", callCtx.Err())
	}
}

func (s *Scheduler) refreshQueueDepth(ctx context.Context, logger *slog.Logger) {
	if s.metrics == nil {
		return
	}
	counts, err := s.store.DeliveryStats(ctx)
	if err != nil {
		logger.Debug("queue depth refresh failed", logging.Error(err))
		return
	}
	depth := make(map[string]int, len(store.AllStatuses()))
	for _, status := range store.AllStatuses() {
		depth[string(status)] = counts[status]
	}
	s.metrics.SetQueueDepth(depth)
}
