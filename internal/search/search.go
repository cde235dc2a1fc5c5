// Package search runs vector similarity queries over memo chunks and
// summaries.
//
// Distance is cosine (pgvector <=> operator). Because the 2048-dimension
// columns exceed pgvector's HNSW limit, both the index and every query go
// through a halfvec cast; queries without the cast would still be correct
// but would scan sequentially.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/eddalabs/edda/internal/filter"
)

// ErrSearchUnavailable wraps storage failures so the pipeline can degrade.
var ErrSearchUnavailable = errors.New("vector search unavailable")

// Options bound one search call.
type Options struct {
	TopK      int
	Threshold float64
	Filters   []filter.Filter
}

// ChunkMatch is a chunk within the distance threshold, ordered nearest first.
type ChunkMatch struct {
	ChunkID    uuid.UUID
	MemoID     uuid.UUID
	Title      string
	Content    string
	ChunkIndex int
	Distance   float64
}

// SummaryMatch is a memo whose summary embedding matched.
type SummaryMatch struct {
	MemoID   uuid.UUID
	Title    string
	Summary  string
	Distance float64
}

// Engine executes vector searches. Safe for concurrent use.
type Engine struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *slog.Logger
}

// NewEngine creates a search Engine for embeddings of the given dimension.
func NewEngine(pool *pgxpool.Pool, dimension int, logger *slog.Logger) (*Engine, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if dimension < 1 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{pool: pool, dimension: dimension, logger: logger}, nil
}

// SearchChunks returns the chunks nearest to vec within the threshold,
// scoped to processed, non-archived memos of the project. Filter conditions
// are ANDed into the predicate.
func (e *Engine) SearchChunks(ctx context.Context, projectID uuid.UUID, vec []float32, opts Options) ([]ChunkMatch, error) {
	sql, args := e.chunkQuery(projectID, vec, opts)

	rows, err := e.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var cm ChunkMatch
		if err := rows.Scan(&cm.ChunkID, &cm.MemoID, &cm.Title, &cm.Content, &cm.ChunkIndex, &cm.Distance); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrSearchUnavailable, err)
		}
		matches = append(matches, cm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}

	e.logger.Debug("chunk search completed", "project_id", projectID, "matches", len(matches))
	return matches, nil
}

// SearchSummaries returns the memos whose summary embedding is nearest to
// vec within the threshold.
func (e *Engine) SearchSummaries(ctx context.Context, projectID uuid.UUID, vec []float32, opts Options) ([]SummaryMatch, error) {
	sql, args := e.summaryQuery(projectID, vec, opts)

	rows, err := e.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}
	defer rows.Close()

	var matches []SummaryMatch
	for rows.Next() {
		var sm SummaryMatch
		if err := rows.Scan(&sm.MemoID, &sm.Title, &sm.Summary, &sm.Distance); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrSearchUnavailable, err)
		}
		matches = append(matches, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}
	return matches, nil
}

func (e *Engine) chunkQuery(projectID uuid.UUID, vec []float32, opts Options) (string, []any) {
	distExpr := e.distanceExpr("c.embedding")
	selectCols := "c.id, c.memo_id, m.title, c.content, c.chunk_index, " + distExpr
	return e.buildQuery(selectCols, distExpr,
		"memo_chunks c\n\t\tJOIN memos m ON m.id = c.memo_id",
		projectID, vec, opts)
}

func (e *Engine) summaryQuery(projectID uuid.UUID, vec []float32, opts Options) (string, []any) {
	distExpr := e.distanceExpr("s.embedding")
	selectCols := "s.memo_id, m.title, s.summary, " + distExpr
	return e.buildQuery(selectCols, distExpr,
		"memo_summaries s\n\t\tJOIN memos m ON m.id = s.memo_id",
		projectID, vec, opts)
}

// buildQuery assembles the shared predicate: project scope, visibility,
// distance threshold, compiled filters, nearest-first order, top-K limit.
// Parameter layout: $1 vector, $2 project, $3 threshold, $4.. filters, last
// placeholder is the limit.
func (e *Engine) buildQuery(selectCols, distExpr, from string, projectID uuid.UUID, vec []float32, opts Options) (string, []any) {
	conds, params := filter.Compile(opts.Filters, 4)

	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT %s AS distance
		FROM %s
		WHERE m.project_id = $2 AND NOT m.pending AND NOT m.archived
		  AND %s <= $3`, selectCols, from, distExpr)
	for _, cond := range conds {
		sb.WriteString("\n\t\t  AND ")
		sb.WriteString(cond)
	}
	fmt.Fprintf(&sb, "\n\t\tORDER BY distance\n\t\tLIMIT $%d", 4+len(params))

	args := append([]any{pgvector.NewVector(vec), projectID, opts.Threshold}, params...)
	args = append(args, opts.TopK)
	return sb.String(), args
}

// distanceExpr renders the cosine distance between a column and $1 through
// the halfvec cast that matches the index definition.
func (e *Engine) distanceExpr(column string) string {
	return fmt.Sprintf("(%s::halfvec(%d) <=> $1::vector::halfvec(%d))", column, e.dimension, e.dimension)
}
