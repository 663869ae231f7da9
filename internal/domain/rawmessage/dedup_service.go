package rawmessage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mailledger/internal/shared/logger"
)

// Match reasons reported by Check.
const (
	MatchMessageID = "message_id"
	MatchBodyHash  = "body_hash"
)

// Candidate is the identity of an incoming message as seen by the dedup gate.
type Candidate struct {
	MessageID  *string
	BodyHash   string
	ReceivedAt time.Time
}

// Decision is the outcome of a dedup check.
type Decision struct {
	Duplicate  bool
	ExistingID int64
	MatchedBy  string
}

// RecordResult reports which persistence path Record took.
type RecordResult struct {
	Message *RawMessage
	// Refreshed is true when the insert lost a race on message_id and the
	// existing row was overwritten instead.
	Refreshed bool
}

// DedupService decides whether a message is already known and persists new ones.
//
// The existence check is a fast path only. Across processes the unique
// constraint on message_id is what actually prevents a second row.
type DedupService struct {
	repo   Repository
	window time.Duration
	log    zerolog.Logger
}

// NewDedupService creates a dedup service with the standard 2-day window
func NewDedupService(repo Repository) *DedupService {
	return &DedupService{
		repo:   repo,
		window: DedupWindow,
		log:    logger.Nop(),
	}
}

// WithLogger returns the service with structured logging enabled
func (s *DedupService) WithLogger(log zerolog.Logger) *DedupService {
	s.log = log.With().Str("component", "dedup").Logger()
	return s
}

// Check classifies c as duplicate or novel.
//
// With a Message-ID, only an exact Message-ID match counts. Without one, a
// row with the same body hash received no earlier than c.ReceivedAt minus
// the window counts. Two distinct messages with identical normalized bodies
// inside the window are treated as one; resends after the window are not
// caught.
func (s *DedupService) Check(ctx context.Context, c Candidate) (Decision, error) {
	if c.MessageID != nil && *c.MessageID != "" {
		existing, err := s.repo.GetByMessageID(ctx, *c.MessageID)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to look up message id: %w", err)
		}
		if existing != nil {
			return Decision{Duplicate: true, ExistingID: existing.ID, MatchedBy: MatchMessageID}, nil
		}
		return Decision{}, nil
	}

	if c.BodyHash == "" {
		return Decision{}, ErrBodyHashRequired
	}

	rows, err := s.repo.ListByBodyHash(ctx, c.BodyHash)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to look up body hash: %w", err)
	}

	lowerBound := c.ReceivedAt.Add(-s.window)
	for _, r := range rows {
		if !r.ReceivedAt.Before(lowerBound) {
			return Decision{Duplicate: true, ExistingID: r.ID, MatchedBy: MatchBodyHash}, nil
		}
	}

	return Decision{}, nil
}

// Record persists a message that Check classified as novel. Insert is tried
// first; if another process inserted the same Message-ID in the meantime the
// existing row is refreshed in place instead of failing.
func (s *DedupService) Record(ctx context.Context, params CreateParams) (*RecordResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	msg, err := s.repo.Insert(ctx, params)
	if err == nil {
		return &RecordResult{Message: msg}, nil
	}
	if !errors.Is(err, ErrDuplicateMessageID) || params.MessageID == nil {
		return nil, err
	}

	s.log.Info().
		Str("message_id", *params.MessageID).
		Msg("message id already stored, refreshing existing row")

	msg, err = s.repo.UpdateByMessageID(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh raw message: %w", err)
	}
	return &RecordResult{Message: msg, Refreshed: true}, nil
}

// Refresh overwrites the stored copy of a message that already has a row.
// It is the explicit re-ingestion path; history is not kept.
func (s *DedupService) Refresh(ctx context.Context, params CreateParams) (*RawMessage, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.MessageID == nil {
		return nil, ErrMessageIDRequired
	}
	return s.repo.UpdateByMessageID(ctx, params)
}

// MarkProcessed flags a stored message as turned into a ledger row.
func (s *DedupService) MarkProcessed(ctx context.Context, id int64, at time.Time) error {
	return s.repo.MarkProcessed(ctx, id, at)
}
