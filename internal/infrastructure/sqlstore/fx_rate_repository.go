package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"mailledger/internal/domain/fx"
)

type FxRateRepository struct {
	db *DB
}

func NewFxRateRepository(db *DB) *FxRateRepository {
	return &FxRateRepository{db: db}
}

func (r *FxRateRepository) Get(ctx context.Context, key fx.Key) (*fx.Rate, error) {
	query := `
		SELECT rate, fetched_at
		FROM fx_rates
		WHERE date = $1 AND base = $2 AND quote = $3 AND provider = $4
	`

	rate := fx.Rate{Key: key}
	err := r.db.QueryRowContext(ctx, query, key.Date, key.Base, key.Quote, key.Provider).
		Scan(&rate.Rate, &rate.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fx rate: %w", err)
	}
	rate.FetchedAt = rate.FetchedAt.UTC()
	return &rate, nil
}

func (r *FxRateRepository) Upsert(ctx context.Context, rate fx.Rate) error {
	query := `
		INSERT INTO fx_rates (date, base, quote, provider, rate, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (date, base, quote, provider)
		DO UPDATE SET rate = excluded.rate, fetched_at = excluded.fetched_at
	`

	_, err := r.db.ExecContext(
		ctx, query,
		rate.Date, rate.Base, rate.Quote, rate.Provider, rate.Rate, rate.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert fx rate: %w", err)
	}
	return nil
}
