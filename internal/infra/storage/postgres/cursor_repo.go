package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/logwatcher/internal/core/cursor"
)

// CursorRow is one row of log_cursors.
type CursorRow struct {
	Name                   string `db:"name"`
	LastProcessedTimestamp int64  `db:"last_processed_timestamp"`
	UpdatedAt              int64  `db:"updated_at"`
}

// CursorRepo implements cursor.Store for the cursor called name.
type CursorRepo struct {
	db   *DB
	name string
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB, name string) *CursorRepo {
	return &CursorRepo{db: db, name: name}
}

// Get returns None() when no row exists yet.
func (r *CursorRepo) Get(ctx context.Context) (cursor.Position, error) {
	row, err := r.GetRow(ctx)
	if errors.Is(err, cursor.ErrCursorNotFound) {
		return cursor.None(), nil
	}
	if err != nil {
		return cursor.None(), err
	}
	return cursor.At(row.LastProcessedTimestamp), nil
}

// Set upserts the cursor.
func (r *CursorRepo) Set(ctx context.Context, ts int64) error {
	const query = `
INSERT INTO log_cursors (name, last_processed_timestamp, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE
SET last_processed_timestamp = EXCLUDED.last_processed_timestamp,
    updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, r.name, ts, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// GetRow returns the full row, or cursor.ErrCursorNotFound.
func (r *CursorRepo) GetRow(ctx context.Context) (*CursorRow, error) {
	var row CursorRow
	err := r.db.GetContext(ctx, &row,
		`SELECT name, last_processed_timestamp, updated_at FROM log_cursors WHERE name = $1`, r.name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cursor.ErrCursorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return &row, nil
}
