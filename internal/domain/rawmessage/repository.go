package rawmessage

import (
	"context"
	"time"
)

// Repository defines the interface for raw message data access
type Repository interface {
	// GetByID returns nil, nil when no row exists
	GetByID(ctx context.Context, id int64) (*RawMessage, error)

	// GetByMessageID returns nil, nil when no row carries messageID
	GetByMessageID(ctx context.Context, messageID string) (*RawMessage, error)

	// ListByBodyHash returns every row with the given body hash, newest first
	ListByBodyHash(ctx context.Context, bodyHash string) ([]*RawMessage, error)

	// Insert adds a new row. It returns ErrDuplicateMessageID when the
	// unique constraint on message_id rejects the row.
	Insert(ctx context.Context, params CreateParams) (*RawMessage, error)

	// UpdateByMessageID overwrites the mutable fields of the row holding
	// params.MessageID. It returns ErrRawMessageNotFound when none exists.
	UpdateByMessageID(ctx context.Context, params CreateParams) (*RawMessage, error)

	// MarkProcessed sets status=processed and processed_at
	MarkProcessed(ctx context.Context, id int64, at time.Time) error

	// ListUnproposed returns stored messages not referenced by a pending
	// batch, oldest first
	ListUnproposed(ctx context.Context, limit int) ([]*RawMessage, error)
}
