package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dealflow/internal/affiliate"
	"dealflow/internal/config"
	"dealflow/internal/logging"
	"dealflow/internal/metrics"
	"dealflow/internal/store"
)

var (
	// ErrLinkNotFound reports an unknown link id or short code.
	ErrLinkNotFound = errors.New("affiliate link not found")
	// ErrInvalidSale reports a conversion with a non-positive sale amount.
	ErrInvalidSale = errors.New("sale amount must be positive")
)

// LinkStore persists link counters and redirect events.
type LinkStore interface {
	GetLink(ctx context.Context, id string) (*store.AffiliateLink, error)
	LinkByShortCode(ctx context.Context, code string) (*store.AffiliateLink, error)
	IncrementClicks(ctx context.Context, id string) error
	AddConversion(ctx context.Context, id string, earned float64) error
	RecordClickEvent(ctx context.Context, event store.ClickEvent) error
}

// ReportStore answers the aggregate queries behind reports and snapshots.
type ReportStore interface {
	PlatformRollup(ctx context.Context, since time.Time) ([]store.PlatformRollup, error)
	TopLinks(ctx context.Context, since time.Time, limit int) ([]*store.AffiliateLink, error)
	CountProducts(ctx context.Context) (int, error)
	PostedCounts(ctx context.Context) (map[string]int, error)
	ListProducts(ctx context.Context, limit int) ([]*store.Product, error)
	DeliveryStats(ctx context.Context) (map[store.Status]int, error)
	CollectDailyStats(ctx context.Context, dayStart time.Time) (store.DailyStats, error)
	UpsertDailyStats(ctx context.Context, stats store.DailyStats, now time.Time) error
}

// Store is everything the analytics service reads and writes.
type Store interface {
	LinkStore
	ReportStore
}

// Service records link activity and builds reports.
type Service struct {
	cfg     *config.Config
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService constructs an analytics service.
func NewService(cfg *config.Config, st Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		store:  st,
		logger: logging.NewComponentLogger(logger, "analytics"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordClick adds one click to a link.
func (s *Service) RecordClick(ctx context.Context, linkID string) error {
	if err := s.store.IncrementClicks(ctx, linkID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrLinkNotFound, linkID)
		}
		return err
	}
	s.metrics.ObserveClick(false)
	return nil
}

// RecordConversion credits a sale to a link at its frozen commission rate
// and returns the commission earned.
func (s *Service) RecordConversion(ctx context.Context, linkID string, saleAmount float64) (float64, error) {
	if saleAmount <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSale, saleAmount)
	}
	link, err := s.store.GetLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrLinkNotFound, linkID)
		}
		return 0, err
	}
	earned := affiliate.Round2(saleAmount * link.CommissionRate)
	if err := s.store.AddConversion(ctx, linkID, earned); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrLinkNotFound, linkID)
		}
		return 0, err
	}
	s.metrics.ObserveConversion()
	s.logger.Info("conversion recorded",
		logging.String(logging.FieldLinkID, linkID),
		logging.Float64("sale_amount", saleAmount),
		logging.Float64("earned", earned),
	)
	return earned, nil
}

// Visit describes one redirect through a short link.
type Visit struct {
	IP        string
	UserAgent string
	Referer   string
	Bot       bool
}

// RecordRedirect resolves a short code, appends a click event, and counts the
// click unless the visitor was classified as a bot. It returns the link so the
// caller can redirect to its affiliate URL.
func (s *Service) RecordRedirect(ctx context.Context, code string, visit Visit) (*store.AffiliateLink, error) {
	link, err := s.store.LinkByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrLinkNotFound, code)
		}
		return nil, err
	}
	event := store.ClickEvent{
		LinkID:        link.ID,
		OccurredAt:    s.now().UTC(),
		IPHash:        hashValue(visit.IP),
		UserAgentHash: hashValue(visit.UserAgent),
		Referer:       visit.Referer,
		IsBot:         visit.Bot,
	}
	if err := s.store.RecordClickEvent(ctx, event); err != nil {
		return nil, err
	}
	if !visit.Bot {
		if err := s.store.IncrementClicks(ctx, link.ID); err != nil {
			return nil, err
		}
	}
	s.metrics.ObserveClick(visit.Bot)
	return link, nil
}

// hashValue keeps visitor identifiers out of the database. The first 16 hex
// characters are enough to group repeat visits.
func hashValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}
