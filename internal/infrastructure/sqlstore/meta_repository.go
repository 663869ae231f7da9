package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// MetaRepository is a small key/value store for run watermarks.
type MetaRepository struct {
	db *DB
}

func NewMetaRepository(db *DB) *MetaRepository {
	return &MetaRepository{db: db}
}

func (r *MetaRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get meta %q: %w", key, err)
	}
	return value, true, nil
}

func (r *MetaRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set meta %q: %w", key, err)
	}
	return nil
}
