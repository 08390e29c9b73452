package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in PRAGMA user_version and bumped whenever
// schema.sql changes. Journals written by another version are refused; they
// hold an audit trail only, so deleting one loses nothing a restore needs.
const schemaVersion = 1

// ErrSchemaMismatch reports a journal written with a different schema.
var ErrSchemaMismatch = errors.New("journal schema version mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read journal version: %w", err)
	}
	switch version {
	case schemaVersion:
		return nil
	case 0:
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			// PRAGMA does not take bind parameters.
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
				return fmt.Errorf("record schema version: %w", err)
			}
			return nil
		})
	default:
		return fmt.Errorf("%w: %s has version %d, this build writes %d (move the file aside to start a new journal)",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	}
}
