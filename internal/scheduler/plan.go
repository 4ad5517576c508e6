package scheduler

import (
	"context"
	"fmt"
	"time"

	"dealflow/internal/logging"
	"dealflow/internal/store"
)

// Plan computes the delivery records for a product enqueued at now. It only
// reads configuration: one record per cadence slot per enabled platform,
// with times truncated to the second.
func (s *Scheduler) Plan(productID int64, now time.Time) []store.Delivery {
	base := now.UTC().Truncate(time.Second)
	var planned []store.Delivery
	for _, name := range s.cfg.EnabledPlatforms() {
		cadence, ok := s.cfg.Cadence[name]
		if !ok {
			continue
		}
		for slot := 0; slot < cadence.Slots; slot++ {
			planned = append(planned, store.Delivery{
				ProductID:     productID,
				Platform:      name,
				ScheduledTime: base.Add(cadence.FirstDelay() + time.Duration(slot)*cadence.Interval()),
				Template:      cadence.Template,
				Status:        store.StatusPending,
			})
		}
	}
	return planned
}

// Enqueue inserts the planned records for productID. Records that already
// exist for the same platform and time are left alone, so enqueueing twice
// is harmless. It returns the number of new records.
func (s *Scheduler) Enqueue(ctx context.Context, productID int64) (int, error) {
	planned := s.Plan(productID, s.Now())
	inserted, err := s.store.InsertDeliveries(ctx, planned)
	if err != nil {
		return 0, fmt.Errorf("enqueue product %d: %w", productID, err)
	}
	s.logger.Info("deliveries enqueued",
		logging.Int64(logging.FieldProductID, productID),
		logging.Int("planned", len(planned)),
		logging.Int("inserted", inserted),
	)
	return inserted, nil
}
