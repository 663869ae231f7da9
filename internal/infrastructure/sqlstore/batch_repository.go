package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mailledger/internal/domain/batch"
)

const batchColumns = `id, status, created_at, committed_at, cancelled_at, notes`

const proposalColumns = `id, batch_id, raw_message_id, txn_type, posted_at,
	amount_original, currency_original, amount_reporting, fx_rate, fx_provider,
	merchant_raw, merchant_norm, category, source, account_from, account_to,
	notes, confidence, needs_review, proposal_json, created_at`

type BatchRepository struct {
	db *DB
}

func NewBatchRepository(db *DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func scanBatch(s scanner) (*batch.Batch, error) {
	var b batch.Batch
	if err := s.Scan(&b.ID, &b.Status, &b.CreatedAt, &b.CommittedAt, &b.CancelledAt, &b.Notes); err != nil {
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.CommittedAt = utcPtr(b.CommittedAt)
	b.CancelledAt = utcPtr(b.CancelledAt)
	return &b, nil
}

func scanProposal(s scanner) (*batch.ProposedTransaction, error) {
	var (
		p       batch.ProposedTransaction
		payload sql.NullString
	)
	err := s.Scan(
		&p.ID, &p.BatchID, &p.RawMessageID, &p.TxnType, &p.PostedAt,
		&p.AmountOriginal, &p.CurrencyOriginal, &p.AmountReporting, &p.FxRate, &p.FxProvider,
		&p.MerchantRaw, &p.MerchantNorm, &p.Category, &p.Source, &p.AccountFrom, &p.AccountTo,
		&p.Notes, &p.Confidence, &p.NeedsReview, &payload, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if payload.Valid {
		p.ProposalJSON = json.RawMessage(payload.String)
	}
	p.PostedAt = utcPtr(p.PostedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (r *BatchRepository) Create(ctx context.Context, params batch.CreateParams) (*batch.Batch, error) {
	query := `
		INSERT INTO batches (status, created_at, notes)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, batch.StatusPending, params.CreatedAt.UTC(), params.Notes).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *BatchRepository) AddProposal(ctx context.Context, p *batch.ProposedTransaction) (*batch.ProposedTransaction, error) {
	query := `
		INSERT INTO proposed_transactions (
			batch_id, raw_message_id, txn_type, posted_at,
			amount_original, currency_original, amount_reporting, fx_rate, fx_provider,
			merchant_raw, merchant_norm, category, source, account_from, account_to,
			notes, confidence, needs_review, proposal_json, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
		RETURNING id
	`

	var payload any
	if len(p.ProposalJSON) > 0 {
		payload = string(p.ProposalJSON)
	}

	var id int64
	err := r.db.QueryRowContext(
		ctx, query,
		p.BatchID, p.RawMessageID, p.TxnType, utcPtr(p.PostedAt),
		p.AmountOriginal, p.CurrencyOriginal, p.AmountReporting, p.FxRate, p.FxProvider,
		p.MerchantRaw, p.MerchantNorm, p.Category, p.Source, p.AccountFrom, p.AccountTo,
		p.Notes, p.Confidence, p.NeedsReview, payload, p.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) && p.RawMessageID != nil {
			return nil, fmt.Errorf("raw message %d does not exist: %w", *p.RawMessageID, batch.ErrInvalidProposal)
		}
		return nil, fmt.Errorf("failed to add proposal: %w", err)
	}

	stored, err := scanProposal(r.db.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposed_transactions WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to reload proposal: %w", err)
	}
	return stored, nil
}

func (r *BatchRepository) GetByID(ctx context.Context, id int64) (*batch.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`

	b, err := scanBatch(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return b, nil
}

func (r *BatchRepository) ListProposals(ctx context.Context, batchID int64) ([]*batch.ProposedTransaction, error) {
	query := `
		SELECT ` + proposalColumns + `
		FROM proposed_transactions
		WHERE batch_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*batch.ProposedTransaction
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating proposals: %w", err)
	}

	return proposals, nil
}

func (r *BatchRepository) Transition(ctx context.Context, id int64, from, to string, at time.Time) (bool, error) {
	var column string
	switch to {
	case batch.StatusCommitted:
		column = "committed_at"
	case batch.StatusCancelled:
		column = "cancelled_at"
	default:
		return false, fmt.Errorf("%q: %w", to, batch.ErrInvalidStatus)
	}

	query := `UPDATE batches SET status = $1, ` + column + ` = $2 WHERE id = $3 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, to, at.UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition batch: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *BatchRepository) List(ctx context.Context, status string, limit int) ([]*batch.Batch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE ($1 = '' OR status = $1)
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []*batch.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}

	return batches, nil
}
