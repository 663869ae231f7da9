package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mailledger/internal/domain/category"
	"mailledger/internal/domain/fx"
)

// RateLookup is the cache-only side of the fx cache.
type RateLookup interface {
	Lookup(ctx context.Context, key fx.Key) (decimal.Decimal, error)
	ProviderName() string
}

// Committer is the single write path into the ledger.
type Committer struct {
	repo      Repository
	rates     RateLookup
	reporting string
	now       func() time.Time
}

// NewCommitter creates a committer that posts amounts in the given
// reporting currency.
func NewCommitter(repo Repository, rates RateLookup, reportingCurrency string) *Committer {
	return &Committer{
		repo:      repo,
		rates:     rates,
		reporting: strings.ToUpper(reportingCurrency),
		now:       time.Now,
	}
}

// ReportingCurrency returns the currency reporting amounts are stated in.
func (c *Committer) ReportingCurrency() string {
	return c.reporting
}

// Post resolves the rate for e, computes the reporting amount and inserts
// the row. It never performs network I/O, so it is safe inside a storage
// transaction; a rate that is neither explicit nor cached fails with
// UncachedDependency.
func (c *Committer) Post(ctx context.Context, e Entry) (*Transaction, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	rate, provider, err := c.resolveRate(ctx, e, now)
	if err != nil {
		return nil, err
	}

	categoryLabel := strings.TrimSpace(e.Category)
	if categoryLabel == "" {
		categoryLabel = category.Uncategorized
	}
	source := e.Source
	if source == "" {
		source = DefaultSource
	}

	txn := &Transaction{
		TxnType:          e.TxnType,
		PostedAt:         e.PostedAt,
		AmountOriginal:   e.AmountOriginal,
		CurrencyOriginal: e.CurrencyOriginal,
		AmountReporting:  e.AmountOriginal.Mul(rate),
		FxRate:           rate,
		FxProvider:       provider,
		MerchantRaw:      e.MerchantRaw,
		MerchantNorm:     e.MerchantNorm,
		Category:         categoryLabel,
		Source:           source,
		AccountFrom:      e.AccountFrom,
		AccountTo:        e.AccountTo,
		Notes:            e.Notes,
		Confidence:       e.Confidence,
		NeedsReview:      e.NeedsReview,
		RawMessageID:     e.RawMessageID,
		BatchID:          e.BatchID,
		CreatedAt:        now,
	}

	created, err := c.repo.Insert(ctx, txn)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger transaction: %w", err)
	}
	return created, nil
}

func (c *Committer) resolveRate(ctx context.Context, e Entry, now time.Time) (decimal.Decimal, string, error) {
	if e.CurrencyOriginal == c.reporting {
		return decimal.NewFromInt(1), e.FxProvider, nil
	}
	if e.FxRate.Valid {
		return e.FxRate.Decimal, e.FxProvider, nil
	}

	provider := e.FxProvider
	if provider == "" {
		provider = c.rates.ProviderName()
	}
	day := now
	if e.PostedAt != nil {
		day = *e.PostedAt
	}

	rate, err := c.rates.Lookup(ctx, fx.NewKey(day, e.CurrencyOriginal, c.reporting, provider))
	if err != nil {
		return decimal.Decimal{}, "", err
	}
	return rate, provider, nil
}
