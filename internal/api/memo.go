package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/eddalabs/edda/internal/memo"
)

// maxMemoBody caps memo request bodies at 2MB.
const maxMemoBody = 2 << 20

// Ingester runs the ingestion flow for one memo. Implemented by
// *kb.Ingestor.
type Ingester interface {
	Ingest(ctx context.Context, n memo.NewMemo) (*memo.Memo, error)
}

// MemoReader reads stored memos. Implemented by *memo.Store.
type MemoReader interface {
	Get(ctx context.Context, id uuid.UUID) (*memo.Memo, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// createMemoRequest is the body for POST /api/projects/{project}/memos.
type createMemoRequest struct {
	Title             string         `json:"title"`
	Content           string         `json:"content"`
	Source            string         `json:"source,omitempty"`
	ClientReferenceID *string        `json:"client_reference_id,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// memoItem is the JSON representation of a memo.
type memoItem struct {
	ID                string         `json:"id"`
	ProjectID         string         `json:"project_id"`
	Title             string         `json:"title"`
	Source            string         `json:"source,omitempty"`
	ClientReferenceID *string        `json:"client_reference_id,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Pending           bool           `json:"pending"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at"`
}

func toMemoItem(m *memo.Memo) memoItem {
	return memoItem{
		ID:                m.ID.String(),
		ProjectID:         m.ProjectID.String(),
		Title:             m.Title,
		Source:            m.Source,
		ClientReferenceID: m.ClientReferenceID,
		Metadata:          m.Metadata,
		Pending:           m.Pending,
		CreatedAt:         m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         m.UpdatedAt.Format(time.RFC3339),
	}
}

// memoHandler serves memo ingestion and lookup.
type memoHandler struct {
	ingestor Ingester
	store    MemoReader
	logger   *slog.Logger
}

// create handles POST /api/projects/{project}/memos. The full ingestion flow
// runs synchronously: the response carries the memo's final state, or
// {"status":"discarded"} when the consistency review discarded it.
func (h *memoHandler) create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDFromPath(w, r, h.logger)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMemoBody)

	var req createMemoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, err, h.logger)
		return
	}

	m, err := h.ingestor.Ingest(r.Context(), memo.NewMemo{
		ProjectID:         projectID,
		Title:             req.Title,
		Source:            req.Source,
		ClientReferenceID: req.ClientReferenceID,
		Metadata:          req.Metadata,
		Content:           req.Content,
	})
	if err != nil {
		if errors.Is(err, memo.ErrEmptyTitle) || errors.Is(err, memo.ErrEmptyContent) {
			writeError(w, http.StatusBadRequest, "invalid_memo", err.Error(), h.logger)
			return
		}
		h.logger.Error("ingestion failed", "error", err, "project_id", projectID)
		writeError(w, http.StatusInternalServerError, "ingest_failed", "failed to ingest memo", h.logger)
		return
	}
	if m == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"}, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, toMemoItem(m), h.logger)
}

// get handles GET /api/projects/{project}/memos/{id}.
func (h *memoHandler) get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDFromPath(w, r, h.logger)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid memo ID", h.logger)
		return
	}

	m, err := h.store.Get(r.Context(), id)
	if err != nil {
		if h.mapMemoError(w, err) {
			return
		}
		h.logger.Error("getting memo", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get memo", h.logger)
		return
	}
	// Cross-project lookups report 404 rather than revealing the memo exists.
	if m.ProjectID != projectID {
		writeError(w, http.StatusNotFound, "not_found", "memo not found", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, toMemoItem(m), h.logger)
}

// remove handles DELETE /api/projects/{project}/memos/{id}.
func (h *memoHandler) remove(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDFromPath(w, r, h.logger)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid memo ID", h.logger)
		return
	}

	m, err := h.store.Get(r.Context(), id)
	if err != nil {
		if h.mapMemoError(w, err) {
			return
		}
		h.logger.Error("getting memo for delete", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete memo", h.logger)
		return
	}
	if m.ProjectID != projectID {
		writeError(w, http.StatusNotFound, "not_found", "memo not found", h.logger)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if h.mapMemoError(w, err) {
			return
		}
		h.logger.Error("deleting memo", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete memo", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"}, h.logger)
}

// mapMemoError maps store errors to HTTP 404. Returns true when the error was
// handled.
func (h *memoHandler) mapMemoError(w http.ResponseWriter, err error) bool {
	if errors.Is(err, memo.ErrMemoNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "memo not found", h.logger)
		return true
	}
	return false
}
