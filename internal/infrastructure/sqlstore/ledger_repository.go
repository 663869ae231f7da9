package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"mailledger/internal/domain/category"
	"mailledger/internal/domain/ledger"
)

const ledgerColumns = `id, txn_type, posted_at, amount_original, currency_original,
	amount_reporting, fx_rate, fx_provider, merchant_raw, merchant_norm, category,
	source, account_from, account_to, notes, confidence, needs_review,
	raw_message_id, batch_id, created_at`

// LedgerRepository is append-only.
type LedgerRepository struct {
	db *DB
}

func NewLedgerRepository(db *DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func scanTransaction(s scanner) (*ledger.Transaction, error) {
	var t ledger.Transaction
	err := s.Scan(
		&t.ID, &t.TxnType, &t.PostedAt, &t.AmountOriginal, &t.CurrencyOriginal,
		&t.AmountReporting, &t.FxRate, &t.FxProvider, &t.MerchantRaw, &t.MerchantNorm, &t.Category,
		&t.Source, &t.AccountFrom, &t.AccountTo, &t.Notes, &t.Confidence, &t.NeedsReview,
		&t.RawMessageID, &t.BatchID, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.PostedAt = utcPtr(t.PostedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (r *LedgerRepository) Insert(ctx context.Context, t *ledger.Transaction) (*ledger.Transaction, error) {
	query := `
		INSERT INTO ledger_transactions (
			txn_type, posted_at, amount_original, currency_original,
			amount_reporting, fx_rate, fx_provider, merchant_raw, merchant_norm, category,
			source, account_from, account_to, notes, confidence, needs_review,
			raw_message_id, batch_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19
		)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx, query,
		t.TxnType, utcPtr(t.PostedAt), t.AmountOriginal, t.CurrencyOriginal,
		t.AmountReporting, t.FxRate, t.FxProvider, t.MerchantRaw, t.MerchantNorm, t.Category,
		t.Source, t.AccountFrom, t.AccountTo, t.Notes, t.Confidence, t.NeedsReview,
		t.RawMessageID, t.BatchID, t.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger transaction: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *LedgerRepository) GetByID(ctx context.Context, id int64) (*ledger.Transaction, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_transactions WHERE id = $1`

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger transaction: %w", err)
	}
	return t, nil
}

func (r *LedgerRepository) ListByBatch(ctx context.Context, batchID int64) ([]*ledger.Transaction, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_transactions WHERE batch_id = $1 ORDER BY id ASC`
	return r.list(ctx, query, batchID)
}

func (r *LedgerRepository) ListByRawMessage(ctx context.Context, rawMessageID int64) ([]*ledger.Transaction, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_transactions WHERE raw_message_id = $1 ORDER BY id ASC`
	return r.list(ctx, query, rawMessageID)
}

// SumExpense adds up reporting amounts in Go so both backends give exact
// decimal totals.
func (r *LedgerRepository) SumExpense(ctx context.Context, rng ledger.Range) (decimal.Decimal, error) {
	totals, err := r.expenseTotals(ctx, rng)
	if err != nil {
		return decimal.Decimal{}, err
	}

	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t.Total)
	}
	return sum, nil
}

func (r *LedgerRepository) SumExpenseByCategory(ctx context.Context, rng ledger.Range) ([]ledger.CategoryTotal, error) {
	totals, err := r.expenseTotals(ctx, rng)
	if err != nil {
		return nil, err
	}

	sort.Slice(totals, func(i, j int) bool {
		if c := totals[i].Total.Cmp(totals[j].Total); c != 0 {
			return c > 0
		}
		return totals[i].Category < totals[j].Category
	})
	return totals, nil
}

func (r *LedgerRepository) expenseTotals(ctx context.Context, rng ledger.Range) ([]ledger.CategoryTotal, error) {
	query := `
		SELECT category, amount_reporting
		FROM ledger_transactions
		WHERE txn_type = $1
		  AND posted_at >= $2 AND posted_at <= $3
	`

	rows, err := r.db.QueryContext(ctx, query, ledger.TypeExpense, rng.From.UTC(), rng.To.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	byCategory := map[string]decimal.Decimal{}
	var order []string
	for rows.Next() {
		var (
			label  string
			amount decimal.Decimal
		)
		if err := rows.Scan(&label, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		if label == "" {
			label = category.Uncategorized
		}
		if _, seen := byCategory[label]; !seen {
			order = append(order, label)
		}
		byCategory[label] = byCategory[label].Add(amount)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expenses: %w", err)
	}

	totals := make([]ledger.CategoryTotal, 0, len(order))
	for _, label := range order {
		totals = append(totals, ledger.CategoryTotal{Category: label, Total: byCategory[label]})
	}
	return totals, nil
}

func (r *LedgerRepository) list(ctx context.Context, query string, args ...any) ([]*ledger.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger transactions: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger transaction: %w", err)
		}
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger transactions: %w", err)
	}

	return out, nil
}
