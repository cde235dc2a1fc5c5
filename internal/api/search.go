package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/eddalabs/edda/internal/filter"
	"github.com/eddalabs/edda/internal/retrieval"
)

// maxSearchBody caps search request bodies at 64KB.
const maxSearchBody = 64 << 10

// Retriever produces a retrieval context for a query. Implemented by
// *retrieval.Pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Context, error)
}

// searchRequest is the body for POST /api/projects/{project}/search.
type searchRequest struct {
	Query              string           `json:"query"`
	History            []retrieval.Turn `json:"history,omitempty"`
	Filters            []map[string]any `json:"filters,omitempty"`
	ClientSystemPrompt string           `json:"system_prompt,omitempty"`
	Config             retrieval.Config `json:"config,omitempty"`
}

// searchHandler serves retrieval requests.
type searchHandler struct {
	pipeline Retriever
	logger   *slog.Logger
}

// search handles POST /api/projects/{project}/search.
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDFromPath(w, r, h.logger)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSearchBody)

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, err, h.logger)
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "query is required", h.logger)
		return
	}

	filters, err := filter.ParseFilters(req.Filters)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_filter", err.Error(), h.logger)
		return
	}

	result, err := h.pipeline.Retrieve(r.Context(), retrieval.Request{
		ProjectID:          projectID,
		Query:              req.Query,
		History:            req.History,
		Filters:            filters,
		ClientSystemPrompt: req.ClientSystemPrompt,
		Config:             req.Config,
	})
	if err != nil {
		if errors.Is(err, retrieval.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, "invalid_config", err.Error(), h.logger)
			return
		}
		h.logger.Error("retrieval failed", "error", err, "project_id", projectID)
		writeError(w, http.StatusInternalServerError, "search_failed", "failed to retrieve context", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result, h.logger)
}

// projectIDFromPath parses the {project} path segment. Writes a 400 and
// returns false on failure.
func projectIDFromPath(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("project"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_project", "invalid project ID", logger)
		return uuid.Nil, false
	}
	return id, true
}

// writeBodyError maps JSON decode failures, distinguishing oversized bodies.
func writeBodyError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", logger)
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", logger)
}
