package batch

import (
	"context"
	"time"
)

// Repository defines the interface for batch data access
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Batch, error)

	// AddProposal stores one normalized proposal under p.BatchID. ID is
	// ignored and assigned by storage.
	AddProposal(ctx context.Context, p *ProposedTransaction) (*ProposedTransaction, error)

	// GetByID returns nil, nil when no batch exists
	GetByID(ctx context.Context, id int64) (*Batch, error)

	// ListProposals returns the batch's proposals ordered by id ascending
	ListProposals(ctx context.Context, batchID int64) ([]*ProposedTransaction, error)

	// Transition moves the batch from one status to another only if it is
	// still in from. It reports whether a row changed. The matching
	// committed_at or cancelled_at column is set to at.
	Transition(ctx context.Context, id int64, from, to string, at time.Time) (bool, error)

	// List returns batches newest first, optionally filtered by status
	List(ctx context.Context, status string, limit int) ([]*Batch, error)
}

// Transactor runs fn in a single storage transaction. Repository calls made
// with the context passed to fn join that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
