package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mailledger/internal/shared/apperr"
)

// Modes select what a run does with novel messages.
const (
	ModeDirect = "direct" // parse, post to the ledger, store as processed
	ModeRaw    = "raw"    // store as stored for later review
)

// Watermark keys in the meta store.
const (
	WatermarkDirect = "last_ingest_at"
	WatermarkRaw    = "last_ingest_raw_at"
)

// Domain errors
var (
	ErrInvalidMode  = fmt.Errorf("ingest mode must be direct or raw: %w", apperr.ErrInvalidInput)
	ErrSourceFailed = fmt.Errorf("message source failed: %w", apperr.ErrUpstreamUnavailable)
	ErrParseFailed  = fmt.Errorf("failed to parse message: %w", apperr.ErrInvalidInput)
	ErrNoSource     = fmt.Errorf("no message source configured: %w", apperr.ErrInvalidInput)
	ErrInvalidLimit = fmt.Errorf("limit must be positive: %w", apperr.ErrInvalidInput)
	ErrBadWatermark = fmt.Errorf("stored watermark is not RFC3339: %w", apperr.ErrInvalidState)
)

// Message is one acquired notification, before parsing.
type Message struct {
	UID         string
	MessageID   *string
	Subject     string
	FromAddress string
	ReceivedAt  time.Time
	Raw         []byte
}

// Candidate is the transaction a parser extracted from a message.
type Candidate struct {
	TxnType          string          `json:"txnType"`
	PostedAt         *time.Time      `json:"postedAt,omitempty"`
	AmountOriginal   decimal.Decimal `json:"amountOriginal"`
	CurrencyOriginal string          `json:"currencyOriginal"`
	MerchantRaw      string          `json:"merchantRaw,omitempty"`
	MerchantNorm     string          `json:"merchantNorm,omitempty"`
	Category         string          `json:"category,omitempty"`
	Source           string          `json:"source,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Confidence       float64         `json:"confidence"`
	NeedsReview      bool            `json:"needsReview"`
}

// Parsed is a parser's output: the plain body text plus the candidate.
type Parsed struct {
	Subject   string
	Body      string
	Candidate Candidate
}

// Source acquires messages received at or after since. A nil since means
// the source's own default lower bound.
type Source interface {
	Fetch(ctx context.Context, since *time.Time) ([]Message, error)
}

// Parser turns raw message bytes into body text and a candidate.
type Parser interface {
	Parse(raw []byte) (*Parsed, error)
}

// MetaStore persists run watermarks.
type MetaStore interface {
	// Get returns "", false, nil for an unknown key
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Transactor runs fn in a single storage transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Flag describes a posted row that needs human review.
type Flag struct {
	Subject          string          `json:"subject"`
	ReceivedAt       time.Time       `json:"receivedAt"`
	TxnType          string          `json:"txnType"`
	AmountOriginal   decimal.Decimal `json:"amountOriginal"`
	CurrencyOriginal string          `json:"currencyOriginal"`
	AmountReporting  decimal.Decimal `json:"amountReporting"`
	Merchant         string          `json:"merchant,omitempty"`
	Category         string          `json:"category"`
}

// Result counts the outcome of a run.
type Result struct {
	RunID      string     `json:"runId"`
	Mode       string     `json:"mode"`
	Since      *time.Time `json:"since,omitempty"`
	Ingested   int        `json:"ingested"`
	Duplicates int        `json:"duplicates"`
	Flagged    int        `json:"flagged"`
	Ambiguous  []Flag     `json:"ambiguous,omitempty"`
}

// ProposalInput is a stored message awaiting a proposal.
type ProposalInput struct {
	RawMessageID int64     `json:"rawMessageId"`
	ReceivedAt   time.Time `json:"receivedAt"`
	Subject      string    `json:"subject"`
	From         string    `json:"from"`
	Body         string    `json:"body"`
}
