package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"mailledger/internal/domain/ledger"
	"mailledger/internal/shared/apperr"
)

const defaultQueryDays = 7

// LedgerQuerier is the read side of ledger.Service.
type LedgerQuerier interface {
	ReportingCurrency() string
	Spend(ctx context.Context, r ledger.Range) (decimal.Decimal, error)
	ByCategory(ctx context.Context, r ledger.Range) ([]ledger.CategoryTotal, error)
}

type LedgerHandler struct {
	ledger LedgerQuerier
	now    func() time.Time
}

func NewLedgerHandler(q LedgerQuerier) *LedgerHandler {
	return &LedgerHandler{ledger: q, now: time.Now}
}

type SpendResponse struct {
	Currency string          `json:"currency"`
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Total    decimal.Decimal `json:"total"`
}

type ByCategoryResponse struct {
	Currency   string                 `json:"currency"`
	From       time.Time              `json:"from"`
	To         time.Time              `json:"to"`
	Categories []ledger.CategoryTotal `json:"categories"`
}

// HandleSpend sums expense rows over the requested window.
func (h *LedgerHandler) HandleSpend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rng, err := h.queryRange(r)
	if err != nil {
		writeError(w, r, "Invalid range", err)
		return
	}

	total, err := h.ledger.Spend(r.Context(), rng)
	if err != nil {
		writeError(w, r, "Failed to query spend", err)
		return
	}

	writeJSON(w, http.StatusOK, SpendResponse{
		Currency: h.ledger.ReportingCurrency(),
		From:     rng.From,
		To:       rng.To,
		Total:    total,
	})
}

// HandleByCategory breaks expense rows down by category.
func (h *LedgerHandler) HandleByCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rng, err := h.queryRange(r)
	if err != nil {
		writeError(w, r, "Invalid range", err)
		return
	}

	totals, err := h.ledger.ByCategory(r.Context(), rng)
	if err != nil {
		writeError(w, r, "Failed to query categories", err)
		return
	}

	writeJSON(w, http.StatusOK, ByCategoryResponse{
		Currency:   h.ledger.ReportingCurrency(),
		From:       rng.From,
		To:         rng.To,
		Categories: totals,
	})
}

// queryRange reads either from/to or days. Without either it covers the
// last week.
func (h *LedgerHandler) queryRange(r *http.Request) (ledger.Range, error) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from != "" || to != "" {
		return ledger.ParseRange(from, to)
	}

	days := defaultQueryDays
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ledger.Range{}, fmt.Errorf("days %q: %w", v, apperr.ErrInvalidInput)
		}
		days = n
	}
	return ledger.LastNDays(days, h.now())
}
