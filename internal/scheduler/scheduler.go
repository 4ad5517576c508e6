package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dealflow/internal/config"
	"dealflow/internal/logging"
	"dealflow/internal/metrics"
	"dealflow/internal/platform"
	"dealflow/internal/store"
)

// DeliveryStore is the queue persistence the scheduler drives. Product reads
// supply post content at dispatch time.
type DeliveryStore interface {
	InsertDeliveries(ctx context.Context, deliveries []store.Delivery) (int, error)
	DueDeliveries(ctx context.Context, now time.Time) ([]*store.Delivery, error)
	ClaimDelivery(ctx context.Context, id int64, now time.Time) (bool, error)
	CompleteDelivery(ctx context.Context, id int64, now time.Time) error
	FailDelivery(ctx context.Context, id int64, message string, now time.Time) error
	ErrorDelivery(ctx context.Context, id int64, message string, now time.Time) error
	RetryDelivery(ctx context.Context, id int64, next time.Time, message string, now time.Time) error
	RecoverDispatching(ctx context.Context, now time.Time) (int64, error)
	DeliveryStats(ctx context.Context) (map[store.Status]int, error)
	GetProduct(ctx context.Context, id int64) (*store.Product, error)
}

// Scheduler owns the posting queue loop.
type Scheduler struct {
	cfg      *config.Config
	store    DeliveryStore
	registry *platform.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	tickMu sync.Mutex
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used for planning and dispatch.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// New constructs a scheduler.
func New(cfg *config.Config, st DeliveryStore, registry *platform.Registry, logger *slog.Logger, opts ...Option) *Scheduler {
	if registry == nil {
		registry = platform.NewRegistry()
	}
	s := &Scheduler{
		cfg:      cfg,
		store:    st,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the scheduler's current time in UTC.
func (s *Scheduler) Now() time.Time {
	return s.now().UTC()
}
