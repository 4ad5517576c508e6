package store

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a delivery record.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDispatching Status = "dispatching"
	StatusRetrying    Status = "retrying"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// InterruptedReason is recorded on deliveries found mid-dispatch at startup.
const InterruptedReason = "interrupted during dispatch"

var allStatuses = []Status{
	StatusPending,
	StatusDispatching,
	StatusRetrying,
	StatusCompleted,
	StatusFailed,
	StatusError,
	StatusCancelled,
}

// AllStatuses returns every delivery status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus normalizes a status string, reporting whether it is known.
func ParseStatus(value string) (Status, bool) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no automatic transition leaves the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// ProductStatus marks whether a product is still eligible for delivery.
type ProductStatus string

const (
	ProductActive    ProductStatus = "active"
	ProductWithdrawn ProductStatus = "withdrawn"
)

// Product is a deal ingested into the catalog.
type Product struct {
	ID              int64             `json:"id"`
	Title           string            `json:"title"`
	Price           float64           `json:"price"`
	OriginalPrice   float64           `json:"original_price"`
	DiscountPercent float64           `json:"discount_percent"`
	Category        string            `json:"category,omitempty"`
	ImageURL        string            `json:"image_url,omitempty"`
	Features        string            `json:"features,omitempty"`
	SourceURLs      map[string]string `json:"source_urls"`
	AffiliateURLs   map[string]string `json:"affiliate_urls"`
	Status          ProductStatus     `json:"status"`
	Posted          map[string]bool   `json:"posted"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// IsPosted reports whether a delivery to platform has completed.
func (p *Product) IsPosted(platform string) bool {
	if p == nil {
		return false
	}
	return p.Posted[platform]
}

// ProductPatch lists mutable product fields; nil fields are left unchanged.
type ProductPatch struct {
	Title           *string  `json:"title,omitempty"`
	Price           *float64 `json:"price,omitempty"`
	OriginalPrice   *float64 `json:"original_price,omitempty"`
	DiscountPercent *float64 `json:"discount_percent,omitempty"`
	Category        *string  `json:"category,omitempty"`
	ImageURL        *string  `json:"image_url,omitempty"`
	Features        *string  `json:"features,omitempty"`
}

// Delivery is one scheduled post of a product to one platform.
type Delivery struct {
	ID            int64      `json:"id"`
	ProductID     int64      `json:"product_id"`
	Platform      string     `json:"platform"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	Template      string     `json:"template"`
	Status        Status     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	DispatchedAt  *time.Time `json:"dispatched_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DeliveryFilter narrows ListDeliveries results. Zero values match everything.
type DeliveryFilter struct {
	Statuses  []Status
	ProductID int64
	Platform  string
	Limit     int
}

// AffiliateLink is a generated tracking URL with its frozen commission terms.
type AffiliateLink struct {
	ID                  string    `json:"id"`
	OriginalURL         string    `json:"original_url"`
	AffiliateURL        string    `json:"affiliate_url"`
	Network             string    `json:"network"`
	Platform            string    `json:"platform"`
	ProductID           int64     `json:"product_id,omitempty"`
	ProductTitle        string    `json:"product_title,omitempty"`
	Price               float64   `json:"price"`
	CommissionRate      float64   `json:"commission_rate"`
	EstimatedCommission float64   `json:"estimated_commission"`
	Clicks              int64     `json:"clicks"`
	Conversions         int64     `json:"conversions"`
	Earnings            float64   `json:"earnings"`
	ShortCode           string    `json:"short_code,omitempty"`
	ShortURL            string    `json:"short_url,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// ClickEvent is one redirect through a short link.
type ClickEvent struct {
	LinkID        string
	OccurredAt    time.Time
	IPHash        string
	UserAgentHash string
	Referer       string
	IsBot         bool
}

// PlatformRollup aggregates affiliate link performance for one platform.
type PlatformRollup struct {
	Platform          string  `json:"platform"`
	Links             int     `json:"links"`
	Clicks            int64   `json:"clicks"`
	Conversions       int64   `json:"conversions"`
	Earnings          float64 `json:"earnings"`
	AvgCommissionRate float64 `json:"avg_commission_rate"`
}

// DailyStats is a per-day activity snapshot.
type DailyStats struct {
	Date              string    `json:"date"`
	ProductsProcessed int       `json:"products_processed"`
	PostsCreated      int       `json:"posts_created"`
	TotalClicks       int64     `json:"total_clicks"`
	TotalEarnings     float64   `json:"total_earnings"`
	UpdatedAt         time.Time `json:"updated_at"`
}
