package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const deliveryColumns = "id, product_id, platform, scheduled_time, template, status, attempts, last_error, dispatched_at, created_at, updated_at"

func scanDelivery(scanner rowScanner) (*Delivery, error) {
	var (
		d             Delivery
		scheduledRaw  string
		status        string
		lastError     sql.NullString
		dispatchedRaw sql.NullString
		createdRaw    string
		updatedRaw    string
	)
	if err := scanner.Scan(
		&d.ID,
		&d.ProductID,
		&d.Platform,
		&scheduledRaw,
		&d.Template,
		&status,
		&d.Attempts,
		&lastError,
		&dispatchedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	d.Status = Status(status)
	d.LastError = lastError.String
	if scheduled, err := parseTimeString(scheduledRaw); err == nil {
		d.ScheduledTime = scheduled
	}
	if dispatchedRaw.Valid {
		if dispatched, err := parseTimeString(dispatchedRaw.String); err == nil {
			d.DispatchedAt = &dispatched
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		d.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		d.UpdatedAt = updated
	}
	return &d, nil
}

// InsertDeliveries inserts pending delivery records. Slots that already exist
// for the same (product, platform, scheduled_time) are skipped; the return
// value counts only newly inserted rows.
func (s *Store) InsertDeliveries(ctx context.Context, deliveries []Delivery) (int, error) {
	var inserted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		inserted, err = insertDeliveries(ctx, tx, deliveries)
		return err
	})
	return inserted, err
}

func insertDeliveries(ctx context.Context, db execer, deliveries []Delivery) (int, error) {
	inserted := 0
	for _, d := range deliveries {
		created := d.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		res, err := db.ExecContext(
			ctx,
			`INSERT INTO delivery_queue (
                product_id, platform, scheduled_time, template, status, attempts, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, 0, ?, ?)
            ON CONFLICT (product_id, platform, scheduled_time) DO NOTHING`,
			d.ProductID,
			d.Platform,
			formatTime(d.ScheduledTime),
			d.Template,
			StatusPending,
			formatTime(created),
			formatTime(created),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert delivery: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// GetDelivery fetches a delivery record by identifier.
func (s *Store) GetDelivery(ctx context.Context, id int64) (*Delivery, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+deliveryColumns+` FROM delivery_queue WHERE id = ?`, id)
	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("delivery %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

// DueDeliveries returns pending or retrying records scheduled at or before
// now whose product is still active, earliest first. Ties on scheduled_time
// are broken by id so the order is deterministic.
func (s *Store) DueDeliveries(ctx context.Context, now time.Time) ([]*Delivery, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT d.id, d.product_id, d.platform, d.scheduled_time, d.template, d.status, d.attempts,
                d.last_error, d.dispatched_at, d.created_at, d.updated_at
         FROM delivery_queue d
         JOIN products p ON p.id = d.product_id
         WHERE d.status IN (?, ?) AND d.scheduled_time <= ? AND p.status = ?
         ORDER BY d.scheduled_time ASC, d.id ASC`,
		StatusPending,
		StatusRetrying,
		formatTime(now),
		ProductActive,
	)
	if err != nil {
		return nil, fmt.Errorf("query due deliveries: %w", err)
	}
	defer rows.Close()

	var due []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due delivery: %w", err)
		}
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due deliveries: %w", err)
	}
	return due, nil
}

// ClaimDelivery moves a due record to dispatching and counts the attempt.
// It returns false when the record is no longer claimable, which happens if
// another writer cancelled or already claimed it.
func (s *Store) ClaimDelivery(ctx context.Context, id int64, now time.Time) (bool, error) {
	timestamp := formatTime(now)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE delivery_queue
         SET status = ?, attempts = attempts + 1, dispatched_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?) AND scheduled_time <= ?`,
		StatusDispatching,
		timestamp,
		timestamp,
		id,
		StatusPending,
		StatusRetrying,
		timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("claim delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim delivery rows: %w", err)
	}
	return n == 1, nil
}

// CompleteDelivery marks a dispatching record completed and sets the
// product's posted flag for the record's platform in the same transaction.
func (s *Store) CompleteDelivery(ctx context.Context, id int64, now time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			productID int64
			platform  string
		)
		err := tx.QueryRowContext(ctx,
			`SELECT product_id, platform FROM delivery_queue WHERE id = ? AND status = ?`,
			id, StatusDispatching,
		).Scan(&productID, &platform)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("delivery %d not dispatching: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load delivery: %w", err)
		}

		timestamp := formatTime(now)
		if _, err := tx.ExecContext(ctx,
			`UPDATE delivery_queue SET status = ?, last_error = NULL, updated_at = ? WHERE id = ?`,
			StatusCompleted, timestamp, id,
		); err != nil {
			return fmt.Errorf("complete delivery: %w", err)
		}

		column, ok := postedColumn(platform)
		if !ok {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET `+column+` = 1, updated_at = ? WHERE id = ?`,
			timestamp, productID,
		); err != nil {
			return fmt.Errorf("set posted flag: %w", err)
		}
		return nil
	})
}

// FailDelivery records a platform rejection.
func (s *Store) FailDelivery(ctx context.Context, id int64, message string, now time.Time) error {
	return s.finishDelivery(ctx, id, StatusFailed, message, now)
}

// ErrorDelivery records a transport fault, timeout, or panic.
func (s *Store) ErrorDelivery(ctx context.Context, id int64, message string, now time.Time) error {
	return s.finishDelivery(ctx, id, StatusError, message, now)
}

func (s *Store) finishDelivery(ctx context.Context, id int64, status Status, message string, now time.Time) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE delivery_queue SET status = ?, last_error = ?, updated_at = ? WHERE id = ? AND status = ?`,
		status,
		nullableString(message),
		formatTime(now),
		id,
		StatusDispatching,
	)
	if err != nil {
		return fmt.Errorf("mark delivery %s: %w", status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delivery %d not dispatching: %w", id, ErrNotFound)
	}
	return nil
}

// RetryDelivery reschedules a dispatching record for another attempt.
func (s *Store) RetryDelivery(ctx context.Context, id int64, next time.Time, message string, now time.Time) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE delivery_queue
         SET status = ?, scheduled_time = ?, last_error = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusRetrying,
		formatTime(next),
		nullableString(message),
		formatTime(now),
		id,
		StatusDispatching,
	)
	if err != nil {
		return fmt.Errorf("reschedule delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delivery %d not dispatching: %w", id, ErrNotFound)
	}
	return nil
}

// RecoverDispatching marks records left in dispatching by a previous process
// as errored. The adapter call may or may not have reached the platform, so
// they are never re-sent automatically.
func (s *Store) RecoverDispatching(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE delivery_queue SET status = ?, last_error = ?, updated_at = ? WHERE status = ?`,
		StatusError,
		InterruptedReason,
		formatTime(now),
		StatusDispatching,
	)
	if err != nil {
		return 0, fmt.Errorf("recover dispatching: %w", err)
	}
	return res.RowsAffected()
}

// ListDeliveries returns records matching filter ordered by scheduled time.
func (s *Store) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]*Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_queue WHERE 1 = 1`
	args := make([]any, 0, len(filter.Statuses)+3)
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(filter.Statuses)) + `)`
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.ProductID > 0 {
		query += ` AND product_id = ?`
		args = append(args, filter.ProductID)
	}
	if filter.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, filter.Platform)
	}
	query += ` ORDER BY scheduled_time ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeliveryStats returns the queue status histogram.
func (s *Store) DeliveryStats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(*) FROM delivery_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("delivery stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}
