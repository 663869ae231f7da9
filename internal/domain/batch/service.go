package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mailledger/internal/domain/category"
	"mailledger/internal/domain/ledger"
	"mailledger/internal/shared/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Poster writes one ledger row. *ledger.Committer implements it.
type Poster interface {
	Post(ctx context.Context, e ledger.Entry) (*ledger.Transaction, error)
}

// MessageMarker flags a raw message as turned into a ledger row.
type MessageMarker interface {
	MarkProcessed(ctx context.Context, id int64, at time.Time) error
}

// Service owns the batch lifecycle: pending, then committed or cancelled.
type Service struct {
	repo       Repository
	tx         Transactor
	poster     Poster
	messages   MessageMarker
	categories *category.Spec
	now        func() time.Time
	log        zerolog.Logger
}

// NewService creates a batch service. categories may be nil, in which case
// labels pass through unnormalized.
func NewService(repo Repository, tx Transactor, poster Poster, messages MessageMarker, categories *category.Spec) *Service {
	return &Service{
		repo:       repo,
		tx:         tx,
		poster:     poster,
		messages:   messages,
		categories: categories,
		now:        time.Now,
		log:        logger.Nop(),
	}
}

// WithLogger returns the service with structured logging enabled
func (s *Service) WithLogger(log zerolog.Logger) *Service {
	s.log = log.With().Str("component", "batch").Logger()
	return s
}

// Create stages items as a new pending batch. The header and every
// proposal are written in one transaction.
func (s *Service) Create(ctx context.Context, items []ProposalInput, notes string) (*Detail, error) {
	if len(items) == 0 {
		return nil, ErrEmptyProposals
	}

	now := s.now().UTC()
	rows := make([]*ProposedTransaction, 0, len(items))
	for i := range items {
		if err := items[i].Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		row, err := s.prepare(&items[i], now)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		rows = append(rows, row)
	}

	detail := &Detail{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.Create(ctx, CreateParams{Notes: notes, CreatedAt: now})
		if err != nil {
			return fmt.Errorf("failed to create batch: %w", err)
		}
		detail.Batch = b

		for _, row := range rows {
			row.BatchID = b.ID
			stored, err := s.repo.AddProposal(ctx, row)
			if err != nil {
				return fmt.Errorf("failed to add proposal: %w", err)
			}
			detail.Items = append(detail.Items, stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("batch_id", detail.Batch.ID).
		Int("count", len(detail.Items)).
		Msg("batch_created")

	return detail, nil
}

// prepare normalizes the category and builds the audit note.
func (s *Service) prepare(in *ProposalInput, now time.Time) (*ProposedTransaction, error) {
	posted, err := in.postedTime()
	if err != nil {
		return nil, err
	}

	norm := category.Apply(in.Category, s.categories)

	notes := []string{}
	if n := strings.TrimSpace(in.Notes); n != "" {
		notes = append(notes, n)
	}
	if norm.Unknown && norm.Original != "" {
		notes = append(notes, category.ProposedMarker+norm.Original)
	}
	if hint := strings.TrimSpace(in.ProposedCategory); hint != "" {
		notes = append(notes, category.ProposedMarker+hint)
	}

	source := in.Source
	if source == "" {
		source = ledger.DefaultSource
	}

	return &ProposedTransaction{
		RawMessageID:     in.RawMessageID,
		TxnType:          in.TxnType,
		PostedAt:         posted,
		AmountOriginal:   in.AmountOriginal.Decimal,
		CurrencyOriginal: in.CurrencyOriginal,
		AmountReporting:  in.AmountReporting,
		FxRate:           in.FxRate,
		FxProvider:       in.FxProvider,
		MerchantRaw:      in.MerchantRaw,
		MerchantNorm:     in.MerchantNorm,
		Category:         norm.Category,
		Source:           source,
		AccountFrom:      in.AccountFrom,
		AccountTo:        in.AccountTo,
		Notes:            strings.Join(notes, " | "),
		Confidence:       in.Confidence,
		NeedsReview:      in.NeedsReview || norm.Unknown,
		ProposalJSON:     in.Raw,
		CreatedAt:        now,
	}, nil
}

// Show returns the batch and its proposals in creation order.
func (s *Service) Show(ctx context.Context, id int64) (*Detail, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("batch %d: %w", id, ErrBatchNotFound)
	}

	items, err := s.repo.ListProposals(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	if items == nil {
		items = []*ProposedTransaction{}
	}
	return &Detail{Batch: b, Items: items}, nil
}

// List returns batches newest first. An empty status lists all of them.
func (s *Service) List(ctx context.Context, status string, limit int) ([]*Batch, error) {
	if status != "" && !IsValidStatus(status) {
		return nil, fmt.Errorf("%q: %w", status, ErrInvalidStatus)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	batches, err := s.repo.List(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	if batches == nil {
		batches = []*Batch{}
	}
	return batches, nil
}

// Cancel moves a pending batch to cancelled. Proposals are kept.
func (s *Service) Cancel(ctx context.Context, id int64) (*Batch, error) {
	var result *Batch
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.claim(ctx, id, StatusCancelled); err != nil {
			return err
		}
		b, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to reload batch: %w", err)
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("batch_id", id).Msg("batch_cancelled")
	return result, nil
}

// Commit posts every proposal of a pending batch to the ledger in id
// order, marks referenced raw messages processed and moves the batch to
// committed. All of it happens in one transaction; any failure leaves the
// batch pending with no ledger rows from this attempt.
func (s *Service) Commit(ctx context.Context, id int64) (*CommitResult, error) {
	result := &CommitResult{Transactions: []*ledger.Transaction{}}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.claim(ctx, id, StatusCommitted); err != nil {
			return err
		}

		proposals, err := s.repo.ListProposals(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to list proposals: %w", err)
		}

		for _, p := range proposals {
			txn, err := s.poster.Post(ctx, p.Entry())
			if err != nil {
				return fmt.Errorf("proposal %d: %w", p.ID, err)
			}
			result.Transactions = append(result.Transactions, txn)

			if p.RawMessageID != nil {
				if err := s.messages.MarkProcessed(ctx, *p.RawMessageID, s.now().UTC()); err != nil {
					return fmt.Errorf("proposal %d: failed to mark raw message %d processed: %w", p.ID, *p.RawMessageID, err)
				}
			}
		}

		b, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to reload batch: %w", err)
		}
		result.Batch = b
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Int64("batch_id", id).Msg("batch commit rolled back")
		return nil, err
	}

	s.log.Info().
		Int64("batch_id", id).
		Int("count", len(result.Transactions)).
		Msg("batch_committed")

	return result, nil
}

// claim performs the check-and-set transition out of pending. It must run
// inside a transaction.
func (s *Service) claim(ctx context.Context, id int64, to string) error {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get batch: %w", err)
	}
	if b == nil {
		return fmt.Errorf("batch %d: %w", id, ErrBatchNotFound)
	}
	if b.Status != StatusPending {
		return fmt.Errorf("batch %d is %s: %w", id, b.Status, ErrBatchNotPending)
	}

	changed, err := s.repo.Transition(ctx, id, StatusPending, to, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}
	if !changed {
		// Another process moved it between the read and the update.
		return fmt.Errorf("batch %d: %w", id, ErrBatchNotPending)
	}
	return nil
}
