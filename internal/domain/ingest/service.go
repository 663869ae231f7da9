package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"mailledger/internal/domain/category"
	"mailledger/internal/domain/fx"
	"mailledger/internal/domain/ledger"
	"mailledger/internal/domain/rawmessage"
	"mailledger/internal/shared/logger"
)

var (
	ingestMeter      = otel.Meter("mailledger/ingest")
	messagesTotal, _ = ingestMeter.Int64Counter("ingest.messages.total", metric.WithDescription("Messages seen by ingestion, by outcome"))
	runDuration, _   = ingestMeter.Float64Histogram("ingest.run.duration", metric.WithDescription("Ingestion run duration in seconds"), metric.WithUnit("s"))
)

// Poster writes one ledger row. *ledger.Committer implements it.
type Poster interface {
	Post(ctx context.Context, e ledger.Entry) (*ledger.Transaction, error)
}

// RateResolver resolves an fx rate, fetching it when not cached.
// *fx.Cache implements it.
type RateResolver interface {
	Resolve(ctx context.Context, key fx.Key) (decimal.Decimal, error)
	ProviderName() string
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Dedup      *rawmessage.DedupService
	Messages   rawmessage.Repository
	Poster     Poster
	Rates      RateResolver
	Tx         Transactor
	Meta       MetaStore
	Parser     Parser
	Source     Source
	Categories *category.Spec
	// ReportingCurrency is the quote currency fx rates are resolved into
	ReportingCurrency string
}

// Service turns acquired messages into raw message rows and, in direct
// mode, ledger rows.
type Service struct {
	deps Deps
	now  func() time.Time
	log  zerolog.Logger
}

// NewService creates a new ingestion service
func NewService(deps Deps) *Service {
	return &Service{
		deps: deps,
		now:  time.Now,
		log:  logger.Nop(),
	}
}

// WithLogger returns the service with structured logging enabled
func (s *Service) WithLogger(log zerolog.Logger) *Service {
	s.log = log.With().Str("component", "ingest").Logger()
	return s
}

// Run fetches messages from the configured source and ingests them in the
// given mode. With a nil since the mode's watermark is used. The watermark
// advances only when the whole run succeeds.
func (s *Service) Run(ctx context.Context, mode string, since *time.Time) (*Result, error) {
	if mode != ModeDirect && mode != ModeRaw {
		return nil, fmt.Errorf("%q: %w", mode, ErrInvalidMode)
	}
	if s.deps.Source == nil {
		return nil, ErrNoSource
	}

	key := watermarkKey(mode)
	if since == nil {
		wm, err := s.watermark(ctx, key)
		if err != nil {
			return nil, err
		}
		since = wm
	}

	started := s.now().UTC()
	msgs, err := s.deps.Source.Fetch(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrSourceFailed)
	}

	var result *Result
	if mode == ModeDirect {
		result, err = s.IngestDirect(ctx, msgs)
	} else {
		result, err = s.IngestRaw(ctx, msgs)
	}
	if result != nil {
		result.Since = since
	}
	if err != nil {
		return result, err
	}

	if err := s.deps.Meta.Set(ctx, key, started.Format(time.RFC3339)); err != nil {
		return result, fmt.Errorf("failed to advance watermark: %w", err)
	}
	return result, nil
}

// IngestDirect parses each message, skips duplicates, resolves the fx rate
// and posts one ledger row per novel message. The raw message row and the
// ledger row are written in one transaction. Rate fetching happens before
// that transaction opens. The first error aborts the run; the counts so far
// are returned with it.
func (s *Service) IngestDirect(ctx context.Context, msgs []Message) (*Result, error) {
	result, done := s.begin(ctx, ModeDirect, len(msgs))
	var runErr error
	defer func() { done(runErr) }()

	for i := range msgs {
		if runErr = s.ingestOneDirect(ctx, &msgs[i], result); runErr != nil {
			return result, runErr
		}
	}
	return result, nil
}

func (s *Service) ingestOneDirect(ctx context.Context, msg *Message, result *Result) error {
	parsed, err := s.parse(msg)
	if err != nil {
		return err
	}

	params := s.rawParams(msg, parsed, rawmessage.StatusProcessed)
	dup, err := s.isDuplicate(ctx, params)
	if err != nil {
		return err
	}
	if dup {
		result.Duplicates++
		messagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "duplicate")))
		return nil
	}

	entry, err := s.entry(ctx, msg, &parsed.Candidate)
	if err != nil {
		return err
	}

	var posted *ledger.Transaction
	raced := false
	err = s.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		rec, err := s.deps.Dedup.Record(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to record raw message: %w", err)
		}
		if rec.Refreshed {
			raced = true
			return nil
		}
		entry.RawMessageID = &rec.Message.ID
		posted, err = s.deps.Poster.Post(ctx, entry)
		return err
	})
	if err != nil {
		return fmt.Errorf("message %s: %w", describe(msg), err)
	}

	if raced {
		result.Duplicates++
		messagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "duplicate")))
		return nil
	}

	result.Ingested++
	messagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ingested")))
	if posted.NeedsReview {
		result.Flagged++
		result.Ambiguous = append(result.Ambiguous, Flag{
			Subject:          msg.Subject,
			ReceivedAt:       msg.ReceivedAt,
			TxnType:          posted.TxnType,
			AmountOriginal:   posted.AmountOriginal,
			CurrencyOriginal: posted.CurrencyOriginal,
			AmountReporting:  posted.AmountReporting,
			Merchant:         posted.MerchantRaw,
			Category:         posted.Category,
		})
		messagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "flagged")))
	}
	return nil
}

// IngestRaw stores novel messages with status stored and posts nothing.
// The parser is used only to extract body text.
func (s *Service) IngestRaw(ctx context.Context, msgs []Message) (*Result, error) {
	result, done := s.begin(ctx, ModeRaw, len(msgs))
	var runErr error
	defer func() { done(runErr) }()

	for i := range msgs {
		msg := &msgs[i]
		parsed, err := s.parse(msg)
		if err != nil {
			runErr = err
			return result, runErr
		}

		params := s.rawParams(msg, parsed, rawmessage.StatusStored)
		dup, err := s.isDuplicate(ctx, params)
		if err != nil {
			runErr = err
			return result, runErr
		}
		if dup {
			result.Duplicates++
			messagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "duplicate")))
			continue
		}

		rec, err := s.deps.Dedup.Record(ctx, params)
		if err != nil {
			runErr = fmt.Errorf("message %s: failed to record raw message: %w", describe(msg), err)
			return result, runErr
		}
		if rec.Refreshed {
			result.Duplicates++
			messagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "duplicate")))
			continue
		}
		result.Ingested++
		messagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "stored")))
	}
	return result, nil
}

// ProposalInputs lists stored messages that no pending batch references,
// oldest first.
func (s *Service) ProposalInputs(ctx context.Context, limit int) ([]ProposalInput, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.deps.Messages.ListUnproposed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unproposed messages: %w", err)
	}

	inputs := make([]ProposalInput, 0, len(rows))
	for _, r := range rows {
		inputs = append(inputs, ProposalInput{
			RawMessageID: r.ID,
			ReceivedAt:   r.ReceivedAt,
			Subject:      r.Subject,
			From:         r.FromAddress,
			Body:         r.Body,
		})
	}
	return inputs, nil
}

// begin starts a run and returns the result plus a completion callback
// that logs and records the run's metrics.
func (s *Service) begin(ctx context.Context, mode string, count int) (*Result, func(error)) {
	result := &Result{RunID: uuid.NewString(), Mode: mode}
	log := s.log.With().Str("run_id", result.RunID).Str("mode", mode).Logger()
	log.Info().Int("messages", count).Msg("ingest_start")

	started := time.Now()
	return result, func(err error) {
		status := "success"
		if err != nil {
			status = "error"
			log.Error().Err(err).
				Int("ingested", result.Ingested).
				Int("duplicates", result.Duplicates).
				Msg("ingest_error")
		} else {
			log.Info().
				Int("ingested", result.Ingested).
				Int("duplicates", result.Duplicates).
				Int("flagged", result.Flagged).
				Msg("ingest_done")
		}
		runDuration.Record(ctx, time.Since(started).Seconds(), metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", status),
		))
	}
}

func (s *Service) parse(msg *Message) (*Parsed, error) {
	parsed, err := s.deps.Parser.Parse(msg.Raw)
	if err != nil {
		return nil, fmt.Errorf("message %s: %v: %w", describe(msg), err, ErrParseFailed)
	}
	return parsed, nil
}

func (s *Service) rawParams(msg *Message, parsed *Parsed, status string) rawmessage.CreateParams {
	body := rawmessage.NormalizeBody(parsed.Body)
	now := s.now().UTC()

	received := msg.ReceivedAt
	if received.IsZero() {
		received = now
	}

	subject := msg.Subject
	if subject == "" {
		subject = parsed.Subject
	}

	params := rawmessage.CreateParams{
		MessageID:   msg.MessageID,
		MailboxUID:  msg.UID,
		ReceivedAt:  received.UTC(),
		Subject:     subject,
		FromAddress: msg.FromAddress,
		BodyHash:    rawmessage.HashBody(body),
		Body:        body,
		Status:      status,
	}
	if status == rawmessage.StatusProcessed {
		params.ProcessedAt = &now
	}
	return params
}

func (s *Service) isDuplicate(ctx context.Context, params rawmessage.CreateParams) (bool, error) {
	decision, err := s.deps.Dedup.Check(ctx, rawmessage.Candidate{
		MessageID:  params.MessageID,
		BodyHash:   params.BodyHash,
		ReceivedAt: params.ReceivedAt,
	})
	if err != nil {
		return false, err
	}
	return decision.Duplicate, nil
}

// entry builds the ledger entry for a candidate, resolving a foreign
// currency rate up front so the later transaction needs no network.
func (s *Service) entry(ctx context.Context, msg *Message, c *Candidate) (ledger.Entry, error) {
	norm := category.Apply(c.Category, s.deps.Categories)
	notes := c.Notes
	if norm.Unknown && norm.Original != "" {
		if notes != "" {
			notes += " | "
		}
		notes += category.ProposedMarker + norm.Original
	}

	e := ledger.Entry{
		TxnType:          c.TxnType,
		PostedAt:         c.PostedAt,
		AmountOriginal:   c.AmountOriginal,
		CurrencyOriginal: c.CurrencyOriginal,
		MerchantRaw:      c.MerchantRaw,
		MerchantNorm:     c.MerchantNorm,
		Category:         norm.Category,
		Source:           c.Source,
		Notes:            notes,
		NeedsReview:      c.NeedsReview || norm.Unknown,
	}
	if c.Confidence > 0 {
		conf := c.Confidence
		e.Confidence = &conf
	}
	if err := e.Validate(); err != nil {
		return ledger.Entry{}, fmt.Errorf("message %s: %w", describe(msg), err)
	}

	if e.CurrencyOriginal == s.deps.ReportingCurrency {
		return e, nil
	}

	day := msg.ReceivedAt
	if c.PostedAt != nil {
		day = *c.PostedAt
	}
	provider := s.deps.Rates.ProviderName()
	rate, err := s.deps.Rates.Resolve(ctx, fx.NewKey(day, e.CurrencyOriginal, s.deps.ReportingCurrency, provider))
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("message %s: %w", describe(msg), err)
	}
	e.FxRate = decimal.NewNullDecimal(rate)
	e.FxProvider = provider
	return e, nil
}

func (s *Service) watermark(ctx context.Context, key string) (*time.Time, error) {
	value, ok, err := s.deps.Meta.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}
	if !ok || value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("%s=%q: %w", key, value, errors.Join(ErrBadWatermark, err))
	}
	return &t, nil
}

func watermarkKey(mode string) string {
	if mode == ModeDirect {
		return WatermarkDirect
	}
	return WatermarkRaw
}

func describe(msg *Message) string {
	if msg.MessageID != nil && *msg.MessageID != "" {
		return *msg.MessageID
	}
	if msg.UID != "" {
		return "uid:" + msg.UID
	}
	return fmt.Sprintf("%q", msg.Subject)
}
