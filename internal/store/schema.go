package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// queueSchemaVersion is written to schema_version when the deal tables are
// created. Changing schema.sql requires a new value.
const queueSchemaVersion = 1

// dealTables must all exist in a database stamped with queueSchemaVersion.
var dealTables = []string{"products", "affiliate_links", "delivery_queue", "click_events", "daily_stats"}

// ErrSchemaMismatch reports a deal database written by an incompatible
// dealflow build, or one missing tables the posting queue needs.
var ErrSchemaMismatch = errors.New("deal database schema mismatch")

// ensureSchema creates the deal tables in an empty database and otherwise
// checks that the existing file is one this build can serve.
func (s *Store) ensureSchema(ctx context.Context) error {
	version, stamped, err := s.storedSchemaVersion(ctx)
	if err != nil {
		return err
	}
	if !stamped {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create deal tables: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", queueSchemaVersion); err != nil {
				return fmt.Errorf("stamp schema version: %w", err)
			}
			return nil
		})
	}

	if version != queueSchemaVersion {
		return fmt.Errorf("%w: %s is at version %d, this build serves version %d; point paths.data_dir at a new directory to keep the old queue",
			ErrSchemaMismatch, s.describePath(), version, queueSchemaVersion)
	}
	missing, err := s.missingDealTables(ctx)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s lacks tables %s", ErrSchemaMismatch, s.describePath(), strings.Join(missing, ", "))
	}
	return nil
}

// storedSchemaVersion returns the recorded version. stamped is false for a
// database that has never held deal tables.
func (s *Store) storedSchemaVersion(ctx context.Context) (version int, stamped bool, err error) {
	var tables int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'",
	).Scan(&tables); err != nil {
		return 0, false, fmt.Errorf("inspect schema: %w", err)
	}
	if tables == 0 {
		return 0, false, nil
	}
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, true, nil
}

func (s *Store) missingDealTables(ctx context.Context) ([]string, error) {
	var missing []string
	for _, name := range dealTables {
		var n int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
		).Scan(&n); err != nil {
			return nil, fmt.Errorf("inspect table %s: %w", name, err)
		}
		if n == 0 {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

func (s *Store) describePath() string {
	if s.path == "" {
		return "deal database"
	}
	return s.path
}
