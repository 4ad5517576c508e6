package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"dealflow/internal/affiliate"
	"dealflow/internal/config"
	"dealflow/internal/logging"
	"dealflow/internal/metrics"
	"dealflow/internal/scheduler"
	"dealflow/internal/store"
)

var (
	// ErrInvalidProduct wraps validation failures for submitted products.
	ErrInvalidProduct = errors.New("invalid product")
	// ErrBelowThreshold reports a deal under the configured minimum discount.
	ErrBelowThreshold = errors.New("discount below threshold")
)

// NewProduct is a deal submitted for ingestion.
type NewProduct struct {
	Title           string            `json:"title" validate:"required"`
	Price           float64           `json:"price" validate:"gt=0"`
	OriginalPrice   float64           `json:"original_price" validate:"gtefield=Price"`
	DiscountPercent float64           `json:"discount_percent,omitempty" validate:"gte=0,lte=100"`
	Category        string            `json:"category,omitempty"`
	ImageURL        string            `json:"image_url,omitempty" validate:"omitempty,url"`
	Features        []string          `json:"features,omitempty"`
	SourceURLs      map[string]string `json:"source_urls" validate:"required,min=1,dive,keys,required,endkeys,required,url"`
}

// Ingested is the outcome of a successful ingestion.
type Ingested struct {
	Product  *store.Product         `json:"product"`
	Links    []*store.AffiliateLink `json:"links"`
	Enqueued int                    `json:"enqueued"`
}

// ProductStore persists products along with the links and deliveries
// created for them.
type ProductStore interface {
	CreateProductWith(ctx context.Context, p store.Product, fn func(tx *store.Tx, product *store.Product) error) (*store.Product, error)
	GetProduct(ctx context.Context, id int64) (*store.Product, error)
	UpdateProduct(ctx context.Context, id int64, patch store.ProductPatch) (*store.Product, error)
	WithdrawProduct(ctx context.Context, id int64, now time.Time) (int64, error)
}

// Service ingests and maintains products.
type Service struct {
	cfg       *config.Config
	store     ProductStore
	generator *affiliate.Generator
	scheduler *scheduler.Scheduler
	validate  *validator.Validate
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option customizes a Service.
type Option func(*Service)

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithGenerator overrides the link generator, chiefly to share a clock in tests.
func WithGenerator(g *affiliate.Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.generator = g
		}
	}
}

// NewService constructs a catalog service. Planning and timestamps follow
// the scheduler's clock.
func NewService(cfg *config.Config, st ProductStore, sched *scheduler.Scheduler, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		store:     st,
		scheduler: sched,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logging.NewComponentLogger(logger, "catalog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.generator == nil {
		s.generator = affiliate.NewGenerator(cfg, nil, logger, affiliate.WithClock(sched.Now))
	}
	return s
}

// Validate checks a submission without touching the store.
func (s *Service) Validate(np NewProduct) error {
	if err := s.validate.Struct(np); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", ErrInvalidProduct, describe(verrs))
		}
		return fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	return nil
}

// Ingest validates np, generates its affiliate links, and stores the product
// together with its links and delivery records.
func (s *Service) Ingest(ctx context.Context, np NewProduct) (Ingested, error) {
	var out Ingested
	if err := s.Validate(np); err != nil {
		s.metrics.ObserveIngest("invalid")
		return out, err
	}
	np.Title = strings.TrimSpace(np.Title)
	if np.DiscountPercent == 0 {
		np.DiscountPercent = Discount(np.Price, np.OriginalPrice)
	}
	if np.DiscountPercent < s.cfg.Catalog.MinDiscountPercent {
		s.metrics.ObserveIngest("below_threshold")
		s.logger.Info("product skipped below discount threshold",
			logging.String("title", np.Title),
			logging.Float64("discount_percent", np.DiscountPercent),
			logging.Float64("threshold", s.cfg.Catalog.MinDiscountPercent),
		)
		return out, fmt.Errorf("%w: %.0f%% < %.0f%%", ErrBelowThreshold, np.DiscountPercent, s.cfg.Catalog.MinDiscountPercent)
	}

	now := s.scheduler.Now()
	keys := sortedKeys(np.SourceURLs)
	affiliateURLs := make(map[string]string, len(keys))
	type pending struct {
		key     string
		raw     string
		url     string
		network affiliate.Network
	}
	var generated []pending
	for _, key := range keys {
		raw := strings.TrimSpace(np.SourceURLs[key])
		url, network, ok := s.generator.Build(raw)
		affiliateURLs[key] = url
		if ok {
			generated = append(generated, pending{key: key, raw: raw, url: url, network: network})
		} else {
			s.logger.Info("affiliate link generation skipped",
				logging.String("source", key),
				logging.String("network", string(network)),
			)
		}
	}

	product := store.Product{
		Title:           np.Title,
		Price:           np.Price,
		OriginalPrice:   np.OriginalPrice,
		DiscountPercent: np.DiscountPercent,
		Category:        strings.TrimSpace(np.Category),
		ImageURL:        strings.TrimSpace(np.ImageURL),
		Features:        joinFeatures(np.Features),
		SourceURLs:      np.SourceURLs,
		AffiliateURLs:   affiliateURLs,
		CreatedAt:       now,
	}

	created, err := s.store.CreateProductWith(ctx, product, func(tx *store.Tx, p *store.Product) error {
		for _, g := range generated {
			link := s.generator.NewLink(g.raw, g.url, g.network, affiliate.Metadata{
				ProductID: p.ID,
				Platform:  string(g.network),
				Title:     p.Title,
				Price:     p.Price,
			})
			link.ShortCode = affiliate.LocalCode(link.ID)
			link.ShortURL = strings.TrimRight(s.cfg.Shortener.ShortBaseURL, "/") + "/" + link.ShortCode
			if err := tx.CreateLink(ctx, link); err != nil {
				return err
			}
			out.Links = append(out.Links, &link)
		}
		inserted, err := tx.InsertDeliveries(ctx, s.scheduler.Plan(p.ID, now))
		if err != nil {
			return err
		}
		out.Enqueued = inserted
		return nil
	})
	if err != nil {
		s.metrics.ObserveIngest("error")
		return Ingested{}, fmt.Errorf("ingest product: %w", err)
	}
	out.Product = created
	s.metrics.ObserveIngest("ok")
	s.logger.Info("product ingested",
		logging.Int64(logging.FieldProductID, created.ID),
		logging.String("title", created.Title),
		logging.Float64("discount_percent", created.DiscountPercent),
		logging.Int("links", len(out.Links)),
		logging.Int("enqueued", out.Enqueued),
	)
	return out, nil
}

// Withdraw marks a product withdrawn and cancels its outstanding deliveries.
func (s *Service) Withdraw(ctx context.Context, id int64) (int64, error) {
	cancelled, err := s.store.WithdrawProduct(ctx, id, s.scheduler.Now())
	if err != nil {
		return 0, err
	}
	s.logger.Info("product withdrawn",
		logging.Int64(logging.FieldProductID, id),
		logging.Int64("cancelled", cancelled),
	)
	return cancelled, nil
}

// Update applies patch to a product. A price change without an explicit
// discount recomputes the discount.
func (s *Service) Update(ctx context.Context, id int64, patch store.ProductPatch) (*store.Product, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, fmt.Errorf("%w: title must not be empty", ErrInvalidProduct)
	}
	if patch.Price != nil && *patch.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidProduct)
	}
	if (patch.Price != nil || patch.OriginalPrice != nil) && patch.DiscountPercent == nil {
		current, err := s.store.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		price, original := current.Price, current.OriginalPrice
		if patch.Price != nil {
			price = *patch.Price
		}
		if patch.OriginalPrice != nil {
			original = *patch.OriginalPrice
		}
		if original < price {
			return nil, fmt.Errorf("%w: original price below price", ErrInvalidProduct)
		}
		discount := Discount(price, original)
		patch.DiscountPercent = &discount
	}
	updated, err := s.store.UpdateProduct(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Info("product updated", logging.Int64(logging.FieldProductID, id))
	return updated, nil
}

// Discount returns the whole-percent saving of price against original.
func Discount(price, original float64) float64 {
	if original <= 0 || price >= original {
		return 0
	}
	return math.Round((original - price) / original * 100)
}

func joinFeatures(features []string) string {
	kept := make([]string, 0, len(features))
	for _, f := range features {
		if f = strings.TrimSpace(f); f != "" {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, "\n• ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "url":
			parts = append(parts, field+" must be a valid URL")
		case "gtefield":
			parts = append(parts, field+" must be at least "+fe.Param())
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s%s", field, fe.Tag(), paramSuffix(fe.Param())))
		}
	}
	return strings.Join(parts, "; ")
}

func paramSuffix(param string) string {
	if param == "" {
		return ""
	}
	return "=" + param
}
