package affiliate

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"dealflow/internal/config"
	"dealflow/internal/logging"
	"dealflow/internal/store"
)

// Network identifies the affiliate program a URL belongs to.
type Network string

const (
	NetworkAmazon     Network = "amazon"
	NetworkFlipkart   Network = "flipkart"
	NetworkCJ         Network = "cj"
	NetworkShareASale Network = "shareasale"
	NetworkClickBank  Network = "clickbank"
	// NetworkTracking marks URLs that only receive tracking parameters.
	NetworkTracking Network = "tracking"
)

var (
	amazonDPPattern      = regexp.MustCompile(`/dp/([A-Z0-9]{10})`)
	amazonProductPattern = regexp.MustCompile(`/gp/product/([A-Z0-9]{10})`)
)

// Metadata describes the product a link is generated for.
type Metadata struct {
	ProductID int64
	Title     string
	Price     float64
	// Platform is the distribution platform the link is attributed to.
	// Empty means the link's network.
	Platform string
}

// Result is the outcome of one generation.
type Result struct {
	URL       string
	Network   Network
	Generated bool
	Link      *store.AffiliateLink
}

// LinkWriter persists generated links.
type LinkWriter interface {
	CreateLink(ctx context.Context, link store.AffiliateLink) error
}

// Generator builds affiliate URLs from the configured network identifiers.
type Generator struct {
	cfg    config.Affiliate
	writer LinkWriter
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Generator.
type Option func(*Generator)

// WithClock overrides the time source used for link IDs and timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator constructs a generator. writer may be nil when only Build is used.
func NewGenerator(cfg *config.Config, writer LinkWriter, logger *slog.Logger, opts ...Option) *Generator {
	g := &Generator{
		cfg:    cfg.Affiliate,
		writer: writer,
		logger: logging.NewComponentLogger(logger, "affiliate"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Detect returns the network for rawURL using the fixed detection order.
func Detect(rawURL string) Network {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "amazon."):
		return NetworkAmazon
	case strings.Contains(lower, "flipkart."):
		return NetworkFlipkart
	case strings.Contains(lower, "cj.com"), strings.Contains(lower, "commission-junction"):
		return NetworkCJ
	case strings.Contains(lower, "shareasale"):
		return NetworkShareASale
	case strings.Contains(lower, "clickbank"):
		return NetworkClickBank
	default:
		return NetworkTracking
	}
}

// Build computes the affiliate URL without side effects. generated is false
// when the network identifier could not be found (the input is returned
// unchanged) and for the tracking-only fallback.
func (g *Generator) Build(rawURL string) (affiliateURL string, network Network, generated bool) {
	network = Detect(rawURL)
	switch network {
	case NetworkAmazon:
		affiliateURL, generated = g.amazon(rawURL)
	case NetworkFlipkart:
		affiliateURL, generated = g.flipkart(rawURL)
	case NetworkCJ:
		affiliateURL, generated = g.cj(rawURL)
	case NetworkShareASale:
		affiliateURL, generated = g.shareASale(rawURL)
	case NetworkClickBank:
		affiliateURL, generated = g.clickBank(rawURL)
	default:
		return g.withTracking(rawURL), NetworkTracking, false
	}
	if !generated {
		return rawURL, network, false
	}
	return affiliateURL, network, true
}

// NewLink builds the durable record for a generated URL with the commission
// frozen at creation. Links without an explicit platform are attributed to
// their network.
func (g *Generator) NewLink(rawURL, affiliateURL string, network Network, meta Metadata) store.AffiliateLink {
	created := g.now().UTC()
	rate := g.cfg.CommissionRate(string(network))
	platform := meta.Platform
	if platform == "" {
		platform = string(network)
	}
	return store.AffiliateLink{
		ID:                  linkID(affiliateURL, created),
		OriginalURL:         rawURL,
		AffiliateURL:        affiliateURL,
		Network:             string(network),
		Platform:            platform,
		ProductID:           meta.ProductID,
		ProductTitle:        meta.Title,
		Price:               meta.Price,
		CommissionRate:      rate,
		EstimatedCommission: Round2(meta.Price * rate),
		CreatedAt:           created,
	}
}

// Generate builds the affiliate URL for rawURL and records it as an
// AffiliateLink when a network rule applied. Skips and tracking-only URLs
// are not recorded.
func (g *Generator) Generate(ctx context.Context, rawURL string, meta Metadata) (Result, error) {
	affiliateURL, network, generated := g.Build(rawURL)
	result := Result{URL: affiliateURL, Network: network, Generated: generated}
	if !generated {
		g.logger.Info("affiliate link generation skipped",
			logging.String("network", string(network)),
			logging.String("url", rawURL),
		)
		return result, nil
	}

	link := g.NewLink(rawURL, affiliateURL, network, meta)
	if g.writer != nil {
		if err := g.writer.CreateLink(ctx, link); err != nil {
			return result, fmt.Errorf("record affiliate link: %w", err)
		}
	}
	result.Link = &link
	g.logger.Debug("affiliate link generated",
		logging.String(logging.FieldLinkID, link.ID),
		logging.String("network", string(network)),
		logging.Float64("estimated_commission", link.EstimatedCommission),
	)
	return result, nil
}

func (g *Generator) trackingValues() url.Values {
	values := url.Values{}
	values.Set("utm_source", g.cfg.TrackingSource)
	values.Set("utm_medium", g.cfg.TrackingMedium)
	values.Set("utm_campaign", g.cfg.TrackingCampaign)
	return values
}

func (g *Generator) amazon(rawURL string) (string, bool) {
	match := amazonDPPattern.FindStringSubmatch(rawURL)
	if match == nil {
		match = amazonProductPattern.FindStringSubmatch(rawURL)
	}
	if match == nil {
		return "", false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	params := g.trackingValues()
	params.Set("ref_", g.cfg.AmazonRef)
	params.Set("psc", "1")
	return fmt.Sprintf("%s://%s/dp/%s?tag=%s&%s",
		parsed.Scheme, parsed.Host, match[1], url.QueryEscape(g.cfg.AmazonTag), params.Encode()), true
}

func (g *Generator) flipkart(rawURL string) (string, bool) {
	if g.cfg.FlipkartID == "" {
		return "", false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	params := g.trackingValues()
	params.Set("affExtParam1", g.cfg.TrackingSource)
	params.Set("affExtParam2", g.cfg.TrackingCampaign)
	return fmt.Sprintf("%s://%s%s?affid=%s&%s",
		parsed.Scheme, parsed.Host, parsed.EscapedPath(), url.QueryEscape(g.cfg.FlipkartID), params.Encode()), true
}

func (g *Generator) cj(rawURL string) (string, bool) {
	if g.cfg.CJID == "" {
		return "", false
	}
	return fmt.Sprintf("https://www.anrdoezrs.net/links/%s/type/dlg/sid/%s/url/%s",
		url.PathEscape(g.cfg.CJID), url.PathEscape(g.cfg.TrackingSource), url.QueryEscape(rawURL)), true
}

func (g *Generator) shareASale(rawURL string) (string, bool) {
	if g.cfg.ShareASaleID == "" {
		return "", false
	}
	return fmt.Sprintf("https://shareasale.com/r.cfm?b=1&u=%s&m=%s&afftrack=%s&urllink=%s",
		url.QueryEscape(g.cfg.ShareASaleID),
		url.QueryEscape(g.cfg.ShareASaleMerchant),
		url.QueryEscape(g.cfg.TrackingSource),
		url.QueryEscape(rawURL)), true
}

func (g *Generator) clickBank(rawURL string) (string, bool) {
	if g.cfg.ClickBankNickname == "" {
		return "", false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	var productID string
	segments := strings.Split(parsed.Path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segment := strings.TrimSpace(segments[i]); segment != "" {
			productID = segment
			break
		}
	}
	if productID == "" {
		return "", false
	}
	return fmt.Sprintf("https://%s.%s.hop.clickbank.net/?tid=%s",
		g.cfg.ClickBankNickname, productID, url.QueryEscape(g.cfg.TrackingSource)), true
}

func (g *Generator) withTracking(rawURL string) string {
	separator := "?"
	if strings.Contains(rawURL, "?") {
		separator = "&"
	}
	return rawURL + separator + g.trackingValues().Encode()
}

func linkID(affiliateURL string, created time.Time) string {
	sum := md5.Sum([]byte(affiliateURL + created.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}

// Round2 rounds a currency amount to two decimal places.
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}
