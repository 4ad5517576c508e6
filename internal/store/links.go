package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const linkColumns = "id, original_url, affiliate_url, network, platform, product_id, product_title, price, commission_rate, estimated_commission, clicks, conversions, earnings, short_code, short_url, created_at"

func scanLink(scanner rowScanner) (*AffiliateLink, error) {
	var (
		l          AffiliateLink
		productID  sql.NullInt64
		title      sql.NullString
		shortCode  sql.NullString
		shortURL   sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&l.ID,
		&l.OriginalURL,
		&l.AffiliateURL,
		&l.Network,
		&l.Platform,
		&productID,
		&title,
		&l.Price,
		&l.CommissionRate,
		&l.EstimatedCommission,
		&l.Clicks,
		&l.Conversions,
		&l.Earnings,
		&shortCode,
		&shortURL,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	l.ProductID = productID.Int64
	l.ProductTitle = title.String
	l.ShortCode = shortCode.String
	l.ShortURL = shortURL.String
	if created, err := parseTimeString(createdRaw); err == nil {
		l.CreatedAt = created
	}
	return &l, nil
}

// CreateLink persists a generated affiliate link.
func (s *Store) CreateLink(ctx context.Context, link AffiliateLink) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		return createLink(ctx, s.db, link)
	})
}

func createLink(ctx context.Context, db execer, l AffiliateLink) error {
	if l.ID == "" {
		return errors.New("link id is required")
	}
	created := l.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	platform := l.Platform
	if platform == "" {
		platform = "general"
	}
	_, err := db.ExecContext(
		ctx,
		`INSERT INTO affiliate_links (
            id, original_url, affiliate_url, network, platform, product_id, product_title,
            price, commission_rate, estimated_commission, short_code, short_url, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID,
		l.OriginalURL,
		l.AffiliateURL,
		l.Network,
		platform,
		nullableInt64(l.ProductID),
		nullableString(l.ProductTitle),
		l.Price,
		l.CommissionRate,
		l.EstimatedCommission,
		nullableString(l.ShortCode),
		nullableString(l.ShortURL),
		formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("insert affiliate link: %w", err)
	}
	return nil
}

// GetLink fetches an affiliate link by identifier.
func (s *Store) GetLink(ctx context.Context, id string) (*AffiliateLink, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+linkColumns+` FROM affiliate_links WHERE id = ?`, id)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("link %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return l, nil
}

// LinkByShortCode resolves a local short code to its affiliate link.
func (s *Store) LinkByShortCode(ctx context.Context, code string) (*AffiliateLink, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+linkColumns+` FROM affiliate_links WHERE short_code = ?`, code)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("short code %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup short code: %w", err)
	}
	return l, nil
}

// LinksForProduct returns the links generated for a product.
func (s *Store) LinksForProduct(ctx context.Context, productID int64) ([]*AffiliateLink, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+linkColumns+` FROM affiliate_links WHERE product_id = ? ORDER BY created_at`, productID)
	if err != nil {
		return nil, fmt.Errorf("links for product: %w", err)
	}
	defer rows.Close()
	return collectLinks(rows)
}

// SetShortURL attaches a short code and URL to an existing link.
func (s *Store) SetShortURL(ctx context.Context, id, code, shortURL string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE affiliate_links SET short_code = ?, short_url = ? WHERE id = ?`,
		nullableString(code), nullableString(shortURL), id)
	if err != nil {
		return fmt.Errorf("set short url: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("link %s: %w", id, ErrNotFound)
	}
	return nil
}

// IncrementClicks adds one click to a link.
func (s *Store) IncrementClicks(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `UPDATE affiliate_links SET clicks = clicks + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment clicks: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("link %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddConversion records one conversion and adds earned to the link's
// cumulative earnings. commission_rate is left untouched.
func (s *Store) AddConversion(ctx context.Context, id string, earned float64) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE affiliate_links SET conversions = conversions + 1, earnings = earnings + ? WHERE id = ?`,
		earned, id)
	if err != nil {
		return fmt.Errorf("record conversion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("link %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordClickEvent appends a redirect event.
func (s *Store) RecordClickEvent(ctx context.Context, event ClickEvent) error {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO click_events (link_id, occurred_at, ip_hash, user_agent_hash, referer, is_bot)
         VALUES (?, ?, ?, ?, ?, ?)`,
		event.LinkID,
		formatTime(occurred),
		nullableString(event.IPHash),
		nullableString(event.UserAgentHash),
		nullableString(event.Referer),
		boolToInt(event.IsBot),
	)
	if err != nil {
		return fmt.Errorf("insert click event: %w", err)
	}
	return nil
}

// PlatformRollup aggregates links created at or after since, grouped by
// platform and ordered by earnings.
func (s *Store) PlatformRollup(ctx context.Context, since time.Time) ([]PlatformRollup, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT platform, COUNT(*), COALESCE(SUM(clicks), 0), COALESCE(SUM(conversions), 0),
                COALESCE(SUM(earnings), 0), COALESCE(AVG(commission_rate), 0)
         FROM affiliate_links
         WHERE created_at >= ?
         GROUP BY platform
         ORDER BY SUM(earnings) DESC, platform ASC`,
		formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("platform rollup: %w", err)
	}
	defer rows.Close()

	var out []PlatformRollup
	for rows.Next() {
		var r PlatformRollup
		if err := rows.Scan(&r.Platform, &r.Links, &r.Clicks, &r.Conversions, &r.Earnings, &r.AvgCommissionRate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TopLinks returns up to limit links created at or after since, highest earnings first.
func (s *Store) TopLinks(ctx context.Context, since time.Time, limit int) ([]*AffiliateLink, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+linkColumns+` FROM affiliate_links
         WHERE created_at >= ?
         ORDER BY earnings DESC, clicks DESC, created_at ASC
         LIMIT ?`,
		formatTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("top links: %w", err)
	}
	defer rows.Close()
	return collectLinks(rows)
}

func collectLinks(rows *sql.Rows) ([]*AffiliateLink, error) {
	var out []*AffiliateLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
