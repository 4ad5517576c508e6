package store

import (
	"context"
	"fmt"
	"time"
)

// CollectDailyStats computes the activity counters for the day starting at
// dayStart. Click and earnings totals are running totals across all links.
func (s *Store) CollectDailyStats(ctx context.Context, dayStart time.Time) (DailyStats, error) {
	ctx = ensureContext(ctx)
	start := dayStart.UTC()
	end := start.Add(24 * time.Hour)
	stats := DailyStats{Date: start.Format("2006-01-02")}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM products WHERE created_at >= ? AND created_at < ?`,
		formatTime(start), formatTime(end),
	).Scan(&stats.ProductsProcessed); err != nil {
		return stats, fmt.Errorf("count products for day: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM delivery_queue WHERE status = ? AND updated_at >= ? AND updated_at < ?`,
		StatusCompleted, formatTime(start), formatTime(end),
	).Scan(&stats.PostsCreated); err != nil {
		return stats, fmt.Errorf("count posts for day: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(clicks), 0), COALESCE(SUM(earnings), 0) FROM affiliate_links`,
	).Scan(&stats.TotalClicks, &stats.TotalEarnings); err != nil {
		return stats, fmt.Errorf("sum link totals: %w", err)
	}
	return stats, nil
}

// UpsertDailyStats writes or replaces the snapshot for stats.Date.
func (s *Store) UpsertDailyStats(ctx context.Context, stats DailyStats, now time.Time) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO daily_stats (date, products_processed, posts_created, total_clicks, total_earnings, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (date) DO UPDATE SET
             products_processed = excluded.products_processed,
             posts_created = excluded.posts_created,
             total_clicks = excluded.total_clicks,
             total_earnings = excluded.total_earnings,
             updated_at = excluded.updated_at`,
		stats.Date,
		stats.ProductsProcessed,
		stats.PostsCreated,
		stats.TotalClicks,
		stats.TotalEarnings,
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("upsert daily stats: %w", err)
	}
	return nil
}

// ListDailyStats returns the most recent snapshots first.
func (s *Store) ListDailyStats(ctx context.Context, limit int) ([]DailyStats, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT date, products_processed, posts_created, total_clicks, total_earnings, updated_at
         FROM daily_stats ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list daily stats: %w", err)
	}
	defer rows.Close()

	var out []DailyStats
	for rows.Next() {
		var (
			stats      DailyStats
			updatedRaw string
		)
		if err := rows.Scan(&stats.Date, &stats.ProductsProcessed, &stats.PostsCreated,
			&stats.TotalClicks, &stats.TotalEarnings, &updatedRaw); err != nil {
			return nil, err
		}
		if updated, err := parseTimeString(updatedRaw); err == nil {
			stats.UpdatedAt = updated
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}
