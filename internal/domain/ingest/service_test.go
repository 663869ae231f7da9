package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mailledger/internal/domain/category"
	"mailledger/internal/domain/fx"
	"mailledger/internal/domain/ledger"
	"mailledger/internal/domain/rawmessage"
	"mailledger/internal/shared/apperr"
)

// memMessages is an in-memory rawmessage.Repository.
type memMessages struct {
	rows       []*rawmessage.RawMessage
	insertErr  error
	unproposed []*rawmessage.RawMessage
}

func (m *memMessages) GetByID(ctx context.Context, id int64) (*rawmessage.RawMessage, error) {
	for _, r := range m.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memMessages) GetByMessageID(ctx context.Context, messageID string) (*rawmessage.RawMessage, error) {
	for _, r := range m.rows {
		if r.MessageID != nil && *r.MessageID == messageID {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memMessages) ListByBodyHash(ctx context.Context, bodyHash string) ([]*rawmessage.RawMessage, error) {
	var out []*rawmessage.RawMessage
	for _, r := range m.rows {
		if r.BodyHash == bodyHash {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memMessages) Insert(ctx context.Context, p rawmessage.CreateParams) (*rawmessage.RawMessage, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	r := &rawmessage.RawMessage{
		ID: int64(len(m.rows) + 1), MessageID: p.MessageID, MailboxUID: p.MailboxUID,
		ReceivedAt: p.ReceivedAt, Subject: p.Subject, FromAddress: p.FromAddress,
		BodyHash: p.BodyHash, Body: p.Body, Status: p.Status, ProcessedAt: p.ProcessedAt,
	}
	m.rows = append(m.rows, r)
	return r, nil
}

func (m *memMessages) UpdateByMessageID(ctx context.Context, p rawmessage.CreateParams) (*rawmessage.RawMessage, error) {
	return &rawmessage.RawMessage{ID: 99, MessageID: p.MessageID, Status: p.Status}, nil
}

func (m *memMessages) MarkProcessed(ctx context.Context, id int64, at time.Time) error {
	return nil
}

func (m *memMessages) ListUnproposed(ctx context.Context, limit int) ([]*rawmessage.RawMessage, error) {
	if len(m.unproposed) > limit {
		return m.unproposed[:limit], nil
	}
	return m.unproposed, nil
}

type fakePoster struct {
	entries []ledger.Entry
}

func (f *fakePoster) Post(ctx context.Context, e ledger.Entry) (*ledger.Transaction, error) {
	f.entries = append(f.entries, e)
	rate := decimal.NewFromInt(1)
	if e.FxRate.Valid {
		rate = e.FxRate.Decimal
	}
	return &ledger.Transaction{
		ID:               int64(len(f.entries)),
		TxnType:          e.TxnType,
		AmountOriginal:   e.AmountOriginal,
		CurrencyOriginal: e.CurrencyOriginal,
		AmountReporting:  e.AmountOriginal.Mul(rate),
		FxRate:           rate,
		Category:         e.Category,
		NeedsReview:      e.NeedsReview,
		RawMessageID:     e.RawMessageID,
	}, nil
}

type fakeRates struct {
	keys []fx.Key
	err  error
}

func (f *fakeRates) Resolve(ctx context.Context, key fx.Key) (decimal.Decimal, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return decimal.Decimal{}, f.err
	}
	return decimal.RequireFromString("1.35"), nil
}

func (f *fakeRates) ProviderName() string { return "test-fx" }

type countingTx struct{ calls int }

func (c *countingTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	c.calls++
	return fn(ctx)
}

type memMeta map[string]string

func (m memMeta) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memMeta) Set(ctx context.Context, key, value string) error {
	m[key] = value
	return nil
}

// stubParser reads the candidate from a table keyed by the raw bytes.
type stubParser map[string]*Parsed

func (p stubParser) Parse(raw []byte) (*Parsed, error) {
	parsed, ok := p[string(raw)]
	if !ok {
		return nil, errors.New("unrecognized message")
	}
	return parsed, nil
}

type stubSource struct {
	msgs  []Message
	since *time.Time
	err   error
}

func (s *stubSource) Fetch(ctx context.Context, since *time.Time) ([]Message, error) {
	s.since = since
	return s.msgs, s.err
}

func strPtr(s string) *string { return &s }

var received = time.Date(2026, 2, 3, 9, 30, 0, 0, time.UTC)

func parsers() stubParser {
	return stubParser{
		"sgd": {Body: "Card 1234 SGD 12.34 at KOPITIAM", Candidate: Candidate{
			TxnType: ledger.TypeExpense, AmountOriginal: decimal.RequireFromString("12.34"),
			CurrencyOriginal: "SGD", MerchantRaw: "KOPITIAM", Confidence: 0.9,
		}},
		"usd": {Body: "Card 1234 USD 10.00 at AMAZON", Candidate: Candidate{
			TxnType: ledger.TypeExpense, AmountOriginal: decimal.RequireFromString("10.00"),
			CurrencyOriginal: "USD", MerchantRaw: "AMAZON", Confidence: 0.8,
		}},
		"vague": {Body: "Your account was debited", Candidate: Candidate{
			TxnType: ledger.TypeExpense, AmountOriginal: decimal.RequireFromString("3"),
			CurrencyOriginal: "SGD", NeedsReview: true, Confidence: 0.4,
		}},
		"snack": {Body: "SGD 4.50 at 7-ELEVEN", Candidate: Candidate{
			TxnType: ledger.TypeExpense, AmountOriginal: decimal.RequireFromString("4.50"),
			CurrencyOriginal: "SGD", Category: "Snacks",
		}},
	}
}

type fixture struct {
	messages *memMessages
	poster   *fakePoster
	rates    *fakeRates
	tx       *countingTx
	meta     memMeta
	source   *stubSource
	svc      *Service
}

func newFixture(categories *category.Spec) *fixture {
	f := &fixture{
		messages: &memMessages{},
		poster:   &fakePoster{},
		rates:    &fakeRates{},
		tx:       &countingTx{},
		meta:     memMeta{},
		source:   &stubSource{},
	}
	f.svc = NewService(Deps{
		Dedup:             rawmessage.NewDedupService(f.messages),
		Messages:          f.messages,
		Poster:            f.poster,
		Rates:             f.rates,
		Tx:                f.tx,
		Meta:              f.meta,
		Parser:            parsers(),
		Source:            f.source,
		Categories:        categories,
		ReportingCurrency: "SGD",
	})
	return f
}

func TestIngestDirect(t *testing.T) {
	f := newFixture(nil)
	msgs := []Message{
		{UID: "1", MessageID: strPtr("<a@bank>"), ReceivedAt: received, Raw: []byte("sgd")},
		{UID: "2", MessageID: strPtr("<a@bank>"), ReceivedAt: received, Raw: []byte("sgd")},
		{UID: "3", MessageID: strPtr("<b@bank>"), ReceivedAt: received, Raw: []byte("usd")},
		{UID: "4", ReceivedAt: received, Raw: []byte("vague")},
	}

	result, err := f.svc.IngestDirect(context.Background(), msgs)
	if err != nil {
		t.Fatalf("IngestDirect() error = %v", err)
	}

	if result.Ingested != 3 || result.Duplicates != 1 || result.Flagged != 1 {
		t.Errorf("result = %+v, want 3 ingested, 1 duplicate, 1 flagged", result)
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}
	if len(f.messages.rows) != 3 {
		t.Errorf("raw rows = %d, want 3", len(f.messages.rows))
	}
	for _, r := range f.messages.rows {
		if r.Status != rawmessage.StatusProcessed {
			t.Errorf("raw message %d status = %q, want processed", r.ID, r.Status)
		}
	}

	if len(f.rates.keys) != 1 {
		t.Fatalf("rate resolutions = %d, want 1 (only the USD message)", len(f.rates.keys))
	}
	want := fx.Key{Date: "2026-02-03", Base: "USD", Quote: "SGD", Provider: "test-fx"}
	if f.rates.keys[0] != want {
		t.Errorf("rate key = %+v, want %+v", f.rates.keys[0], want)
	}

	sgd := f.poster.entries[0]
	if sgd.FxRate.Valid {
		t.Error("SGD entry should carry no explicit rate")
	}
	if *sgd.RawMessageID != 1 {
		t.Errorf("RawMessageID = %d, want 1", *sgd.RawMessageID)
	}
	usd := f.poster.entries[1]
	if !usd.FxRate.Valid || usd.FxRate.Decimal.String() != "1.35" || usd.FxProvider != "test-fx" {
		t.Errorf("USD entry rate = %+v provider %q", usd.FxRate, usd.FxProvider)
	}
}

func TestIngestDirect_UnknownCategoryFlagged(t *testing.T) {
	f := newFixture(category.NewSpec([]string{"Food"}, nil))

	result, err := f.svc.IngestDirect(context.Background(), []Message{
		{MessageID: strPtr("<s@bank>"), ReceivedAt: received, Raw: []byte("snack")},
	})
	if err != nil {
		t.Fatalf("IngestDirect() error = %v", err)
	}
	if result.Flagged != 1 {
		t.Errorf("Flagged = %d, want 1", result.Flagged)
	}
	e := f.poster.entries[0]
	if e.Category != category.Uncategorized || e.Notes != "proposedCategory:Snacks" {
		t.Errorf("entry category = %q notes = %q", e.Category, e.Notes)
	}
}

func TestIngestDirect_RaceSkipsLedger(t *testing.T) {
	f := newFixture(nil)
	f.messages.insertErr = rawmessage.ErrDuplicateMessageID

	result, err := f.svc.IngestDirect(context.Background(), []Message{
		{MessageID: strPtr("<race@bank>"), ReceivedAt: received, Raw: []byte("sgd")},
	})
	if err != nil {
		t.Fatalf("IngestDirect() error = %v", err)
	}
	if result.Ingested != 0 || result.Duplicates != 1 {
		t.Errorf("result = %+v, want 1 duplicate", result)
	}
	if len(f.poster.entries) != 0 {
		t.Error("no ledger row should be posted for a refreshed message")
	}
}

func TestIngestDirect_Errors(t *testing.T) {
	tests := []struct {
		name         string
		rateErr      error
		msgs         []Message
		wantErr      error
		wantIngested int
	}{
		{
			name: "parse failure aborts with counts so far",
			msgs: []Message{
				{MessageID: strPtr("<1>"), ReceivedAt: received, Raw: []byte("sgd")},
				{MessageID: strPtr("<2>"), ReceivedAt: received, Raw: []byte("garbage")},
				{MessageID: strPtr("<3>"), ReceivedAt: received, Raw: []byte("vague")},
			},
			wantErr:      apperr.ErrInvalidInput,
			wantIngested: 1,
		},
		{
			name:    "fx provider failure",
			rateErr: fx.ErrProviderFailed,
			msgs: []Message{
				{MessageID: strPtr("<u>"), ReceivedAt: received, Raw: []byte("usd")},
			},
			wantErr: apperr.ErrUpstreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			f.rates.err = tt.rateErr

			result, err := f.svc.IngestDirect(context.Background(), tt.msgs)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("IngestDirect() error = %v, want %v", err, tt.wantErr)
			}
			if result == nil || result.Ingested != tt.wantIngested {
				t.Errorf("result = %+v, want %d ingested", result, tt.wantIngested)
			}
		})
	}
}

func TestIngestRaw(t *testing.T) {
	f := newFixture(nil)
	older := received.AddDate(0, 0, -10)
	msgs := []Message{
		{ReceivedAt: older, Raw: []byte("usd")},
		{ReceivedAt: received, Raw: []byte("usd")},
		{ReceivedAt: received.Add(time.Hour), Raw: []byte("usd")},
	}

	result, err := f.svc.IngestRaw(context.Background(), msgs)
	if err != nil {
		t.Fatalf("IngestRaw() error = %v", err)
	}
	// Same body 10 days apart is novel; the third is within 2 days of the second.
	if result.Ingested != 2 || result.Duplicates != 1 {
		t.Errorf("result = %+v, want 2 ingested, 1 duplicate", result)
	}
	for _, r := range f.messages.rows {
		if r.Status != rawmessage.StatusStored {
			t.Errorf("status = %q, want stored", r.Status)
		}
	}
	if len(f.poster.entries) != 0 || len(f.rates.keys) != 0 {
		t.Error("raw ingestion must not post or resolve rates")
	}
	if f.tx.calls != 0 {
		t.Errorf("WithinTx calls = %d, want 0", f.tx.calls)
	}
}

func TestRun_Watermark(t *testing.T) {
	f := newFixture(nil)
	last := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	f.meta[WatermarkRaw] = last.Format(time.RFC3339)
	f.source.msgs = []Message{{MessageID: strPtr("<w>"), ReceivedAt: received, Raw: []byte("sgd")}}
	fixed := time.Date(2026, 2, 4, 7, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	result, err := f.svc.Run(context.Background(), ModeRaw, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.source.since == nil || !f.source.since.Equal(last) {
		t.Errorf("source since = %v, want %v", f.source.since, last)
	}
	if result.Ingested != 1 {
		t.Errorf("Ingested = %d, want 1", result.Ingested)
	}
	if f.meta[WatermarkRaw] != "2026-02-04T07:00:00Z" {
		t.Errorf("watermark = %q", f.meta[WatermarkRaw])
	}
	if _, ok := f.meta[WatermarkDirect]; ok {
		t.Error("direct watermark must not change on a raw run")
	}
}

func TestRun_ExplicitSinceOverridesWatermark(t *testing.T) {
	f := newFixture(nil)
	f.meta[WatermarkDirect] = "2026-01-01T00:00:00Z"
	since := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)

	if _, err := f.svc.Run(context.Background(), ModeDirect, &since); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !f.source.since.Equal(since) {
		t.Errorf("source since = %v, want %v", f.source.since, since)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Run("invalid mode", func(t *testing.T) {
		_, err := newFixture(nil).svc.Run(context.Background(), "stream", nil)
		if !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("Run() error = %v, want InvalidInput", err)
		}
	})

	t.Run("source failure keeps watermark", func(t *testing.T) {
		f := newFixture(nil)
		f.source.err = errors.New("connection refused")

		_, err := f.svc.Run(context.Background(), ModeRaw, nil)
		if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
			t.Errorf("Run() error = %v, want UpstreamUnavailable", err)
		}
		if _, ok := f.meta[WatermarkRaw]; ok {
			t.Error("watermark advanced after a failed run")
		}
	})

	t.Run("corrupt watermark", func(t *testing.T) {
		f := newFixture(nil)
		f.meta[WatermarkRaw] = "last tuesday"

		_, err := f.svc.Run(context.Background(), ModeRaw, nil)
		if !errors.Is(err, apperr.ErrInvalidState) {
			t.Errorf("Run() error = %v, want InvalidState", err)
		}
	})
}

func TestProposalInputs(t *testing.T) {
	f := newFixture(nil)
	f.messages.unproposed = []*rawmessage.RawMessage{
		{ID: 1, Subject: "a", FromAddress: "alerts@bank", Body: "x"},
		{ID: 2, Subject: "b"},
	}

	inputs, err := f.svc.ProposalInputs(context.Background(), 1)
	if err != nil {
		t.Fatalf("ProposalInputs() error = %v", err)
	}
	if len(inputs) != 1 || inputs[0].RawMessageID != 1 || inputs[0].From != "alerts@bank" {
		t.Errorf("inputs = %+v", inputs)
	}

	if _, err := f.svc.ProposalInputs(context.Background(), 0); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("ProposalInputs(0) error = %v, want InvalidInput", err)
	}
}
