package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mailledger/internal/shared/apperr"
)

// Transaction types
const (
	TypeExpense  = "expense"
	TypeIncome   = "income"
	TypeTransfer = "transfer"
	TypeRefund   = "refund"
)

// DefaultSource is recorded when an entry does not name where it came from.
const DefaultSource = "email"

var validTypes = map[string]struct{}{
	TypeExpense:  {},
	TypeIncome:   {},
	TypeTransfer: {},
	TypeRefund:   {},
}

// IsValidType reports whether t is a known transaction type.
func IsValidType(t string) bool {
	_, ok := validTypes[t]
	return ok
}

// Domain errors
var (
	ErrTransactionNotFound = fmt.Errorf("ledger transaction not found: %w", apperr.ErrNotFound)
	ErrInvalidType         = fmt.Errorf("invalid transaction type: %w", apperr.ErrInvalidInput)
	ErrInvalidCurrency     = fmt.Errorf("currency must be a 3-letter code: %w", apperr.ErrInvalidInput)
	ErrInvalidRate         = fmt.Errorf("fx rate must be positive: %w", apperr.ErrInvalidInput)
	ErrInvalidRange        = fmt.Errorf("invalid date range: %w", apperr.ErrInvalidInput)
)

// Transaction is a posted ledger row. Rows are never updated or deleted.
type Transaction struct {
	ID               int64           `json:"id"`
	TxnType          string          `json:"txnType"`
	PostedAt         *time.Time      `json:"postedAt,omitempty"`
	AmountOriginal   decimal.Decimal `json:"amountOriginal"`
	CurrencyOriginal string          `json:"currencyOriginal"`
	AmountReporting  decimal.Decimal `json:"amountReporting"`
	FxRate           decimal.Decimal `json:"fxRate"`
	FxProvider       string          `json:"fxProvider,omitempty"`
	MerchantRaw      string          `json:"merchantRaw,omitempty"`
	MerchantNorm     string          `json:"merchantNorm,omitempty"`
	Category         string          `json:"category"`
	Source           string          `json:"source"`
	AccountFrom      string          `json:"accountFrom,omitempty"`
	AccountTo        string          `json:"accountTo,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Confidence       *float64        `json:"confidence,omitempty"`
	NeedsReview      bool            `json:"needsReview"`
	RawMessageID     *int64          `json:"rawMessageId,omitempty"`
	BatchID          *int64          `json:"batchId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Entry is what callers hand to the Committer. The reporting amount is not
// part of it; the Committer computes it from the rate it resolves.
type Entry struct {
	TxnType          string
	PostedAt         *time.Time
	AmountOriginal   decimal.Decimal
	CurrencyOriginal string
	// FxRate, when valid, is used as-is instead of consulting the rate cache.
	FxRate       decimal.NullDecimal
	FxProvider   string
	MerchantRaw  string
	MerchantNorm string
	Category     string
	Source       string
	AccountFrom  string
	AccountTo    string
	Notes        string
	Confidence   *float64
	NeedsReview  bool
	RawMessageID *int64
	BatchID      *int64
}

// Validate checks the entry before any rate is resolved.
func (e *Entry) Validate() error {
	if !IsValidType(e.TxnType) {
		return fmt.Errorf("%q: %w", e.TxnType, ErrInvalidType)
	}
	e.CurrencyOriginal = strings.ToUpper(strings.TrimSpace(e.CurrencyOriginal))
	if len(e.CurrencyOriginal) != 3 {
		return fmt.Errorf("%q: %w", e.CurrencyOriginal, ErrInvalidCurrency)
	}
	if e.FxRate.Valid && !e.FxRate.Decimal.IsPositive() {
		return fmt.Errorf("%s: %w", e.FxRate.Decimal, ErrInvalidRate)
	}
	return nil
}

// Range is an inclusive posted-at window.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate requires From to be strictly before To.
func (r Range) Validate() error {
	if r.From.IsZero() || r.To.IsZero() || !r.From.Before(r.To) {
		return ErrInvalidRange
	}
	return nil
}

// LastNDays returns the window ending at now and starting n*24h earlier.
func LastNDays(n int, now time.Time) (Range, error) {
	if n <= 0 {
		return Range{}, fmt.Errorf("days must be positive, got %d: %w", n, ErrInvalidRange)
	}
	now = now.UTC()
	return Range{From: now.Add(-time.Duration(n) * 24 * time.Hour), To: now}, nil
}

// ParseRange parses an explicit window. Both bounds accept RFC3339 or
// YYYY-MM-DD; a bare date for "to" covers that whole day.
func ParseRange(from, to string) (Range, error) {
	start, err := parseBound(from, false)
	if err != nil {
		return Range{}, err
	}
	end, err := parseBound(to, true)
	if err != nil {
		return Range{}, err
	}
	r := Range{From: start, To: end}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

func parseBound(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("from and to are both required: %w", ErrInvalidRange)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", v, ErrInvalidRange)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// CategoryTotal is one line of a spend breakdown.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}
