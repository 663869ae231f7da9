package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository defines the interface for ledger data access. It is
// append-only: there is no update or delete.
type Repository interface {
	Insert(ctx context.Context, txn *Transaction) (*Transaction, error)

	// GetByID returns nil, nil when no row exists
	GetByID(ctx context.Context, id int64) (*Transaction, error)

	// ListByBatch returns the rows posted by a batch commit in insertion order
	ListByBatch(ctx context.Context, batchID int64) ([]*Transaction, error)

	// ListByRawMessage returns the rows that reference a raw message
	ListByRawMessage(ctx context.Context, rawMessageID int64) ([]*Transaction, error)

	// SumExpense totals the reporting amount of expense rows posted within r
	SumExpense(ctx context.Context, r Range) (decimal.Decimal, error)

	// SumExpenseByCategory groups expense totals by category, largest first
	SumExpenseByCategory(ctx context.Context, r Range) ([]CategoryTotal, error)
}
