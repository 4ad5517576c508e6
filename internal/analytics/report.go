package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"dealflow/internal/affiliate"
	"dealflow/internal/store"
)

const recentProductLimit = 10

// PlatformReport is one platform's performance within a report window.
type PlatformReport struct {
	store.PlatformRollup
	// ConversionRate is conversions per hundred clicks; 0 without clicks.
	ConversionRate float64 `json:"conversion_rate"`
}

// Totals sums a report across platforms.
type Totals struct {
	Links       int     `json:"links"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Earnings    float64 `json:"earnings"`
}

// Report aggregates links created within a window.
type Report struct {
	WindowDays  int                    `json:"window_days"`
	Since       time.Time              `json:"since"`
	GeneratedAt time.Time              `json:"generated_at"`
	Platforms   []PlatformReport       `json:"platforms"`
	TopLinks    []*store.AffiliateLink `json:"top_links"`
	Totals      Totals                 `json:"totals"`
}

// Dashboard is the operator overview.
type Dashboard struct {
	TotalProducts  int                  `json:"total_products"`
	Posted         map[string]int       `json:"posted"`
	RecentProducts []*store.Product     `json:"recent_products"`
	Queue          map[store.Status]int `json:"queue"`
	Report         Report               `json:"report"`
}

// ConversionRate returns conversions per hundred clicks rounded to two
// decimals, or 0 when there were no clicks.
func ConversionRate(clicks, conversions int64) float64 {
	if clicks <= 0 {
		return 0
	}
	return affiliate.Round2(float64(conversions) / float64(clicks) * 100)
}

// Rollup reports links created in the last windowDays days, grouped by
// platform, with the topN links by earnings. Zero or negative arguments use
// the configured defaults. It only reads.
func (s *Service) Rollup(ctx context.Context, windowDays, topN int) (Report, error) {
	if windowDays <= 0 {
		windowDays = s.cfg.Analytics.ReportWindowDays
	}
	if topN <= 0 {
		topN = s.cfg.Analytics.TopLinks
	}
	now := s.now().UTC()
	report := Report{
		WindowDays:  windowDays,
		Since:       now.AddDate(0, 0, -windowDays),
		GeneratedAt: now,
	}

	rollups, err := s.store.PlatformRollup(ctx, report.Since)
	if err != nil {
		return report, fmt.Errorf("rollup: %w", err)
	}
	report.Platforms = make([]PlatformReport, 0, len(rollups))
	for _, r := range rollups {
		r.Earnings = affiliate.Round2(r.Earnings)
		r.AvgCommissionRate = roundRate(r.AvgCommissionRate)
		report.Platforms = append(report.Platforms, PlatformReport{
			PlatformRollup: r,
			ConversionRate: ConversionRate(r.Clicks, r.Conversions),
		})
		report.Totals.Links += r.Links
		report.Totals.Clicks += r.Clicks
		report.Totals.Conversions += r.Conversions
		report.Totals.Earnings += r.Earnings
	}
	report.Totals.Earnings = affiliate.Round2(report.Totals.Earnings)

	report.TopLinks, err = s.store.TopLinks(ctx, report.Since, topN)
	if err != nil {
		return report, fmt.Errorf("top links: %w", err)
	}
	return report, nil
}

// Dashboard gathers the operator overview with a seven day report.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var (
		dash Dashboard
		err  error
	)
	if dash.TotalProducts, err = s.store.CountProducts(ctx); err != nil {
		return dash, fmt.Errorf("count products: %w", err)
	}
	if dash.Posted, err = s.store.PostedCounts(ctx); err != nil {
		return dash, fmt.Errorf("posted counts: %w", err)
	}
	if dash.RecentProducts, err = s.store.ListProducts(ctx, recentProductLimit); err != nil {
		return dash, fmt.Errorf("recent products: %w", err)
	}
	if dash.Queue, err = s.store.DeliveryStats(ctx); err != nil {
		return dash, fmt.Errorf("queue stats: %w", err)
	}
	if dash.Report, err = s.Rollup(ctx, 7, s.cfg.Analytics.TopLinks); err != nil {
		return dash, err
	}
	return dash, nil
}

// Snapshot writes the daily_stats row for the UTC day containing day.
// Re-running it for the same day replaces the row.
func (s *Service) Snapshot(ctx context.Context, day time.Time) (store.DailyStats, error) {
	day = day.UTC()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	stats, err := s.store.CollectDailyStats(ctx, dayStart)
	if err != nil {
		return stats, fmt.Errorf("collect daily stats: %w", err)
	}
	stats.TotalEarnings = affiliate.Round2(stats.TotalEarnings)
	now := s.now().UTC()
	if err := s.store.UpsertDailyStats(ctx, stats, now); err != nil {
		return stats, err
	}
	stats.UpdatedAt = now
	return stats, nil
}

func roundRate(rate float64) float64 {
	return math.Round(rate*10000) / 10000
}
