package batch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mailledger/internal/domain/ledger"
	"mailledger/internal/shared/apperr"
)

// Batch statuses. Pending is the only non-terminal state.
const (
	StatusPending   = "pending"
	StatusCommitted = "committed"
	StatusCancelled = "cancelled"
)

// Domain errors
var (
	ErrBatchNotFound      = fmt.Errorf("batch not found: %w", apperr.ErrNotFound)
	ErrBatchNotPending    = fmt.Errorf("batch is not pending: %w", apperr.ErrInvalidState)
	ErrEmptyProposals     = fmt.Errorf("proposals input is empty: %w", apperr.ErrInvalidInput)
	ErrMalformedProposals = fmt.Errorf("proposals input is not a list: %w", apperr.ErrInvalidInput)
	ErrInvalidProposal    = fmt.Errorf("invalid proposal: %w", apperr.ErrInvalidInput)
	ErrInvalidStatus      = fmt.Errorf("invalid batch status: %w", apperr.ErrInvalidInput)
)

// IsValidStatus reports whether s is a batch status.
func IsValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusCommitted, StatusCancelled:
		return true
	}
	return false
}

// Batch is a reviewable group of proposals.
type Batch struct {
	ID          int64      `json:"id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CommittedAt *time.Time `json:"committedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// ProposedTransaction is a staged ledger row awaiting review. ProposalJSON
// is the caller's original item, stored for audit and never read back into
// the normalized fields.
type ProposedTransaction struct {
	ID               int64               `json:"id"`
	BatchID          int64               `json:"batchId"`
	RawMessageID     *int64              `json:"rawMessageId,omitempty"`
	TxnType          string              `json:"txnType"`
	PostedAt         *time.Time          `json:"postedAt,omitempty"`
	AmountOriginal   decimal.Decimal     `json:"amountOriginal"`
	CurrencyOriginal string              `json:"currencyOriginal"`
	AmountReporting  decimal.NullDecimal `json:"amountReporting"`
	FxRate           decimal.NullDecimal `json:"fxRate"`
	FxProvider       string              `json:"fxProvider,omitempty"`
	MerchantRaw      string              `json:"merchantRaw,omitempty"`
	MerchantNorm     string              `json:"merchantNorm,omitempty"`
	Category         string              `json:"category"`
	Source           string              `json:"source"`
	AccountFrom      string              `json:"accountFrom,omitempty"`
	AccountTo        string              `json:"accountTo,omitempty"`
	Notes            string              `json:"notes,omitempty"`
	Confidence       *float64            `json:"confidence,omitempty"`
	NeedsReview      bool                `json:"needsReview"`
	ProposalJSON     json.RawMessage     `json:"proposal,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
}

// Entry converts the proposal into the committer's input. The proposal's
// reporting amount is not carried over; it is recomputed at commit time.
func (p *ProposedTransaction) Entry() ledger.Entry {
	batchID := p.BatchID
	return ledger.Entry{
		TxnType:          p.TxnType,
		PostedAt:         p.PostedAt,
		AmountOriginal:   p.AmountOriginal,
		CurrencyOriginal: p.CurrencyOriginal,
		FxRate:           p.FxRate,
		FxProvider:       p.FxProvider,
		MerchantRaw:      p.MerchantRaw,
		MerchantNorm:     p.MerchantNorm,
		Category:         p.Category,
		Source:           p.Source,
		AccountFrom:      p.AccountFrom,
		AccountTo:        p.AccountTo,
		Notes:            p.Notes,
		Confidence:       p.Confidence,
		NeedsReview:      p.NeedsReview,
		RawMessageID:     p.RawMessageID,
		BatchID:          &batchID,
	}
}

// ProposalInput is one item of a create request as supplied by the caller.
type ProposalInput struct {
	RawMessageID     *int64              `json:"rawMessageId,omitempty"`
	TxnType          string              `json:"txnType"`
	PostedAt         string              `json:"postedAt,omitempty"`
	AmountOriginal   decimal.NullDecimal `json:"amountOriginal"`
	CurrencyOriginal string              `json:"currencyOriginal"`
	AmountReporting  decimal.NullDecimal `json:"amountReporting"`
	FxRate           decimal.NullDecimal `json:"fxRate"`
	FxProvider       string              `json:"fxProvider,omitempty"`
	MerchantRaw      string              `json:"merchantRaw,omitempty"`
	MerchantNorm     string              `json:"merchantNorm,omitempty"`
	Category         string              `json:"category,omitempty"`
	ProposedCategory string              `json:"proposedCategory,omitempty"`
	Source           string              `json:"source,omitempty"`
	AccountFrom      string              `json:"accountFrom,omitempty"`
	AccountTo        string              `json:"accountTo,omitempty"`
	Notes            string              `json:"notes,omitempty"`
	Confidence       *float64            `json:"confidence,omitempty"`
	NeedsReview      bool                `json:"needsReview"`

	// Raw is the item exactly as received.
	Raw json.RawMessage `json:"-"`
}

// Validate checks the fields a ledger row cannot do without.
func (p *ProposalInput) Validate() error {
	if !ledger.IsValidType(p.TxnType) {
		return fmt.Errorf("txnType %q: %w", p.TxnType, ErrInvalidProposal)
	}
	p.CurrencyOriginal = strings.ToUpper(strings.TrimSpace(p.CurrencyOriginal))
	if len(p.CurrencyOriginal) != 3 {
		return fmt.Errorf("currencyOriginal %q: %w", p.CurrencyOriginal, ErrInvalidProposal)
	}
	if !p.AmountOriginal.Valid {
		return fmt.Errorf("amountOriginal is required: %w", ErrInvalidProposal)
	}
	if p.FxRate.Valid && !p.FxRate.Decimal.IsPositive() {
		return fmt.Errorf("fxRate must be positive: %w", ErrInvalidProposal)
	}
	if _, err := p.postedTime(); err != nil {
		return err
	}
	return nil
}

func (p *ProposalInput) postedTime() (*time.Time, error) {
	if p.PostedAt == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, p.PostedAt); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("postedAt %q: %w", p.PostedAt, ErrInvalidProposal)
}

// CreateParams contains the parameters for creating a batch header
type CreateParams struct {
	Notes     string
	CreatedAt time.Time
}

// Detail is a batch together with its proposals in creation order.
type Detail struct {
	Batch *Batch                 `json:"batch"`
	Items []*ProposedTransaction `json:"items"`
}

// CommitResult reports the rows posted by a commit.
type CommitResult struct {
	Batch        *Batch                `json:"batch"`
	Transactions []*ledger.Transaction `json:"transactions"`
}
