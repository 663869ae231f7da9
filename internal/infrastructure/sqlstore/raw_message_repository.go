package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mailledger/internal/domain/rawmessage"
)

const rawMessageColumns = `id, message_id, mailbox_uid, received_at, subject, from_address,
	body_hash, body, status, processed_at, error`

type RawMessageRepository struct {
	db *DB
}

func NewRawMessageRepository(db *DB) *RawMessageRepository {
	return &RawMessageRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRawMessage(s scanner) (*rawmessage.RawMessage, error) {
	var m rawmessage.RawMessage
	err := s.Scan(
		&m.ID, &m.MessageID, &m.MailboxUID, &m.ReceivedAt, &m.Subject, &m.FromAddress,
		&m.BodyHash, &m.Body, &m.Status, &m.ProcessedAt, &m.Error,
	)
	if err != nil {
		return nil, err
	}
	m.ReceivedAt = m.ReceivedAt.UTC()
	if m.ProcessedAt != nil {
		t := m.ProcessedAt.UTC()
		m.ProcessedAt = &t
	}
	return &m, nil
}

func (r *RawMessageRepository) GetByID(ctx context.Context, id int64) (*rawmessage.RawMessage, error) {
	query := `SELECT ` + rawMessageColumns + ` FROM raw_messages WHERE id = $1`

	m, err := scanRawMessage(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw message: %w", err)
	}
	return m, nil
}

func (r *RawMessageRepository) GetByMessageID(ctx context.Context, messageID string) (*rawmessage.RawMessage, error) {
	query := `SELECT ` + rawMessageColumns + ` FROM raw_messages WHERE message_id = $1`

	m, err := scanRawMessage(r.db.QueryRowContext(ctx, query, messageID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw message by message id: %w", err)
	}
	return m, nil
}

func (r *RawMessageRepository) ListByBodyHash(ctx context.Context, bodyHash string) ([]*rawmessage.RawMessage, error) {
	query := `
		SELECT ` + rawMessageColumns + `
		FROM raw_messages
		WHERE body_hash = $1
		ORDER BY received_at DESC, id DESC
	`
	return r.list(ctx, query, bodyHash)
}

func (r *RawMessageRepository) Insert(ctx context.Context, params rawmessage.CreateParams) (*rawmessage.RawMessage, error) {
	query := `
		INSERT INTO raw_messages (
			message_id, mailbox_uid, received_at, subject, from_address,
			body_hash, body, status, processed_at, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING id
	`

	// A conflicting Message-ID returns no row rather than an error, so an
	// enclosing Postgres transaction stays usable for the refresh.
	var id int64
	err := r.db.QueryRowContext(
		ctx, query,
		params.MessageID, params.MailboxUID, params.ReceivedAt.UTC(), params.Subject, params.FromAddress,
		params.BodyHash, params.Body, params.Status, utcPtr(params.ProcessedAt), params.Error,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return nil, rawmessage.ErrDuplicateMessageID
		}
		return nil, fmt.Errorf("failed to insert raw message: %w", err)
	}

	return fromParams(id, params), nil
}

func (r *RawMessageRepository) UpdateByMessageID(ctx context.Context, params rawmessage.CreateParams) (*rawmessage.RawMessage, error) {
	if params.MessageID == nil {
		return nil, rawmessage.ErrMessageIDRequired
	}

	query := `
		UPDATE raw_messages
		SET mailbox_uid = $2,
		    received_at = $3,
		    subject = $4,
		    from_address = $5,
		    body_hash = $6,
		    body = $7,
		    status = $8,
		    processed_at = $9,
		    error = $10
		WHERE message_id = $1
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx, query,
		*params.MessageID, params.MailboxUID, params.ReceivedAt.UTC(), params.Subject, params.FromAddress,
		params.BodyHash, params.Body, params.Status, utcPtr(params.ProcessedAt), params.Error,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, rawmessage.ErrRawMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update raw message: %w", err)
	}

	return fromParams(id, params), nil
}

func (r *RawMessageRepository) MarkProcessed(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE raw_messages SET status = $1, processed_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, rawmessage.StatusProcessed, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark raw message processed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("id %d: %w", id, rawmessage.ErrRawMessageNotFound)
	}
	return nil
}

func (r *RawMessageRepository) ListUnproposed(ctx context.Context, limit int) ([]*rawmessage.RawMessage, error) {
	query := `
		SELECT ` + rawMessageColumns + `
		FROM raw_messages re
		WHERE re.status = $1
		  AND NOT EXISTS (
			SELECT 1
			FROM proposed_transactions pt
			JOIN batches b ON b.id = pt.batch_id
			WHERE pt.raw_message_id = re.id AND b.status = $2
		  )
		ORDER BY re.received_at ASC, re.id ASC
		LIMIT $3
	`
	return r.list(ctx, query, rawmessage.StatusStored, "pending", limit)
}

func (r *RawMessageRepository) list(ctx context.Context, query string, args ...any) ([]*rawmessage.RawMessage, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw messages: %w", err)
	}
	defer rows.Close()

	var out []*rawmessage.RawMessage
	for rows.Next() {
		m, err := scanRawMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw message: %w", err)
		}
		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw messages: %w", err)
	}

	return out, nil
}

func fromParams(id int64, p rawmessage.CreateParams) *rawmessage.RawMessage {
	return &rawmessage.RawMessage{
		ID:          id,
		MessageID:   p.MessageID,
		MailboxUID:  p.MailboxUID,
		ReceivedAt:  p.ReceivedAt.UTC(),
		Subject:     p.Subject,
		FromAddress: p.FromAddress,
		BodyHash:    p.BodyHash,
		Body:        p.Body,
		Status:      p.Status,
		ProcessedAt: utcPtr(p.ProcessedAt),
		Error:       p.Error,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
