package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Service answers read-only questions about the ledger.
type Service struct {
	repo      Repository
	reporting string
}

// NewService creates a new ledger query service
func NewService(repo Repository, reportingCurrency string) *Service {
	return &Service{repo: repo, reporting: reportingCurrency}
}

// ReportingCurrency returns the currency totals are stated in.
func (s *Service) ReportingCurrency() string {
	return s.reporting
}

// Spend totals expense rows posted within r.
func (s *Service) Spend(ctx context.Context, r Range) (decimal.Decimal, error) {
	if err := r.Validate(); err != nil {
		return decimal.Decimal{}, err
	}
	total, err := s.repo.SumExpense(ctx, r)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to sum spend: %w", err)
	}
	return total, nil
}

// ByCategory breaks expense rows posted within r down by category,
// largest total first.
func (s *Service) ByCategory(ctx context.Context, r Range) ([]CategoryTotal, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	totals, err := s.repo.SumExpenseByCategory(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to sum spend by category: %w", err)
	}
	if totals == nil {
		totals = []CategoryTotal{}
	}
	return totals, nil
}

// Get returns a posted transaction by id.
func (s *Service) Get(ctx context.Context, id int64) (*Transaction, error) {
	txn, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	return txn, nil
}
