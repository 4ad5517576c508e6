package store

import (
	"context"
	"database/sql"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx exposes the writes that may join a product insert transaction.
type Tx struct {
	tx *sql.Tx
}

// InsertDeliveries inserts delivery records inside the transaction.
func (t *Tx) InsertDeliveries(ctx context.Context, deliveries []Delivery) (int, error) {
	return insertDeliveries(ctx, t.tx, deliveries)
}

// CreateLink inserts an affiliate link inside the transaction.
func (t *Tx) CreateLink(ctx context.Context, link AffiliateLink) error {
	return createLink(ctx, t.tx, link)
}
