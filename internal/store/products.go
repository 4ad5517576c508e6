package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealflow/internal/config"
)

const productColumns = "id, title, price, original_price, discount_percent, category, image_url, features, source_urls_json, affiliate_urls_json, status, posted_telegram, posted_discord, posted_instagram, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(scanner rowScanner) (*Product, error) {
	var (
		p               Product
		category        sql.NullString
		imageURL        sql.NullString
		features        sql.NullString
		sourceRaw       string
		affiliateRaw    string
		status          string
		postedTelegram  int
		postedDiscord   int
		postedInstagram int
		createdRaw      string
		updatedRaw      string
	)
	if err := scanner.Scan(
		&p.ID,
		&p.Title,
		&p.Price,
		&p.OriginalPrice,
		&p.DiscountPercent,
		&category,
		&imageURL,
		&features,
		&sourceRaw,
		&affiliateRaw,
		&status,
		&postedTelegram,
		&postedDiscord,
		&postedInstagram,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	p.Category = category.String
	p.ImageURL = imageURL.String
	p.Features = features.String
	p.SourceURLs = decodeURLMap(sourceRaw)
	p.AffiliateURLs = decodeURLMap(affiliateRaw)
	p.Status = ProductStatus(status)
	p.Posted = map[string]bool{
		config.PlatformTelegram:  postedTelegram != 0,
		config.PlatformDiscord:   postedDiscord != 0,
		config.PlatformInstagram: postedInstagram != 0,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		p.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		p.UpdatedAt = updated
	}
	return &p, nil
}

// CreateProduct inserts an active product and returns it with its assigned ID.
func (s *Store) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	var created *Product
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = s.createProductTx(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateProductWith inserts a product and runs fn with the stored row inside
// the same transaction, so follow-on rows (deliveries, links) commit or roll
// back together with the product.
func (s *Store) CreateProductWith(ctx context.Context, p Product, fn func(tx *Tx, product *Product) error) (*Product, error) {
	var created *Product
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = s.createProductTx(ctx, tx, p)
		if err != nil {
			return err
		}
		if fn == nil {
			return nil
		}
		return fn(&Tx{tx: tx}, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) createProductTx(ctx context.Context, tx *sql.Tx, p Product) (*Product, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, errors.New("product title is required")
	}
	now := p.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	timestamp := formatTime(now)
	sources, err := encodeURLMap(p.SourceURLs)
	if err != nil {
		return nil, err
	}
	affiliates, err := encodeURLMap(p.AffiliateURLs)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO products (
            title, price, original_price, discount_percent, category, image_url, features,
            source_urls_json, affiliate_urls_json, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Title,
		p.Price,
		p.OriginalPrice,
		p.DiscountPercent,
		nullableString(p.Category),
		nullableString(p.ImageURL),
		nullableString(p.Features),
		sources,
		affiliates,
		ProductActive,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	created, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("reload product: %w", err)
	}
	return created, nil
}

// GetProduct fetches a product by identifier, returning ErrNotFound when absent.
func (s *Store) GetProduct(ctx context.Context, id int64) (*Product, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// ListProducts returns the most recently created products first.
func (s *Store) ListProducts(ctx context.Context, limit int) ([]*Product, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpdateProduct applies a patch to the mutable product fields. Changes are
// visible to every delivery dispatched afterwards.
func (s *Store) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (*Product, error) {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Price != nil {
		add("price", *patch.Price)
	}
	if patch.OriginalPrice != nil {
		add("original_price", *patch.OriginalPrice)
	}
	if patch.DiscountPercent != nil {
		add("discount_percent", *patch.DiscountPercent)
	}
	if patch.Category != nil {
		add("category", nullableString(*patch.Category))
	}
	if patch.ImageURL != nil {
		add("image_url", nullableString(*patch.ImageURL))
	}
	if patch.Features != nil {
		add("features", nullableString(*patch.Features))
	}
	if len(sets) == 0 {
		return s.GetProduct(ctx, id)
	}
	add("updated_at", formatTime(time.Now()))
	args = append(args, id)

	res, err := s.execWithRetry(ctx, `UPDATE products SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return s.GetProduct(ctx, id)
}

// WithdrawProduct marks a product withdrawn and cancels its outstanding
// deliveries in one transaction. It returns the number of cancelled records.
func (s *Store) WithdrawProduct(ctx context.Context, id int64, now time.Time) (int64, error) {
	var cancelled int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		timestamp := formatTime(now)
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET status = ?, updated_at = ? WHERE id = ?`,
			ProductWithdrawn, timestamp, id)
		if err != nil {
			return fmt.Errorf("withdraw product: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE delivery_queue SET status = ?, updated_at = ?
             WHERE product_id = ? AND status IN (?, ?)`,
			StatusCancelled, timestamp, id, StatusPending, StatusRetrying)
		if err != nil {
			return fmt.Errorf("cancel deliveries: %w", err)
		}
		cancelled, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return cancelled, nil
}

// CountProducts returns the total number of products ever ingested.
func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM products`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return count, nil
}

// PostedCounts returns, per platform, how many products have been posted there.
func (s *Store) PostedCounts(ctx context.Context) (map[string]int, error) {
	var telegram, discord, instagram sql.NullInt64
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT SUM(posted_telegram), SUM(posted_discord), SUM(posted_instagram) FROM products`,
	).Scan(&telegram, &discord, &instagram)
	if err != nil {
		return nil, fmt.Errorf("posted counts: %w", err)
	}
	return map[string]int{
		config.PlatformTelegram:  int(telegram.Int64),
		config.PlatformDiscord:   int(discord.Int64),
		config.PlatformInstagram: int(instagram.Int64),
	}, nil
}
