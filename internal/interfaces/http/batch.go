package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"mailledger/internal/domain/batch"
	"mailledger/internal/shared/apperr"
)

// BatchService is the part of batch.Service the review API drives.
type BatchService interface {
	Create(ctx context.Context, items []batch.ProposalInput, notes string) (*batch.Detail, error)
	Show(ctx context.Context, id int64) (*batch.Detail, error)
	List(ctx context.Context, status string, limit int) ([]*batch.Batch, error)
	Cancel(ctx context.Context, id int64) (*batch.Batch, error)
	Commit(ctx context.Context, id int64) (*batch.CommitResult, error)
}

type BatchHandler struct {
	batches BatchService
}

func NewBatchHandler(batches BatchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

// BatchListResponse wraps a page of batch headers.
type BatchListResponse struct {
	Batches []*batch.Batch `json:"batches"`
	Count   int            `json:"count"`
}

// HandleBatches serves GET (list) and POST (create) on the collection.
func (h *BatchHandler) HandleBatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleCreate(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleBatchByID returns one batch with its proposals.
func (h *BatchHandler) HandleBatchByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := batchID(r)
	if err != nil {
		writeError(w, r, "Invalid batch id", err)
		return
	}

	detail, err := h.batches.Show(r.Context(), id)
	if err != nil {
		writeError(w, r, "Failed to get batch", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleCommit posts every proposal of a pending batch to the ledger.
func (h *BatchHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := batchID(r)
	if err != nil {
		writeError(w, r, "Invalid batch id", err)
		return
	}

	result, err := h.batches.Commit(r.Context(), id)
	if err != nil {
		writeError(w, r, "Failed to commit batch", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleCancel moves a pending batch to cancelled.
func (h *BatchHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := batchID(r)
	if err != nil {
		writeError(w, r, "Invalid batch id", err)
		return
	}

	b, err := h.batches.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, r, "Failed to cancel batch", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BatchHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, "Invalid limit", fmt.Errorf("limit %q: %w", v, apperr.ErrInvalidInput))
			return
		}
		limit = n
	}

	batches, err := h.batches.List(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		writeError(w, r, "Failed to list batches", err)
		return
	}
	writeJSON(w, http.StatusOK, BatchListResponse{Batches: batches, Count: len(batches)})
}

// handleCreate accepts a JSON array of proposals or {"proposals": [...]}.
// Notes come from the "notes" query parameter.
func (h *BatchHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	items, err := batch.DecodeProposals(r.Body)
	if err != nil {
		writeError(w, r, "Invalid proposals", err)
		return
	}

	detail, err := h.batches.Create(r.Context(), items, r.URL.Query().Get("notes"))
	if err != nil {
		writeError(w, r, "Failed to create batch", err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func batchID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("batch id %q: %w", raw, apperr.ErrInvalidInput)
	}
	return id, nil
}
