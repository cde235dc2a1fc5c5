// Package rerank rescores vector search candidates with an LLM.
//
// Candidates are split into fixed-size batches that are scored concurrently.
// A batch that fails is retried once; if the retry also fails, each of its
// candidates falls back to a distance-derived score and the result is marked
// partial. The merged list is sorted by score (ties keep the nearer
// candidate first) and truncated to the requested size.
package rerank

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BatchSize is the number of candidates scored in one LLM call.
const BatchSize = 25

// Document is one candidate handed to a Scorer.
type Document struct {
	ID   uuid.UUID
	Text string
}

// Scorer assigns a relevance score in [0,1] to each document for the query.
// Implementations must return exactly len(docs) scores.
type Scorer interface {
	Score(ctx context.Context, query string, docs []Document) ([]float64, error)
}

// Candidate is a vector search match entering reranking.
type Candidate struct {
	ChunkID  uuid.UUID
	MemoID   uuid.UUID
	Text     string
	Distance float64
}

// Scored is a candidate with its final relevance score.
type Scored struct {
	Candidate
	Score float64
	// Fallback marks scores derived from vector distance rather than the
	// scorer, after a batch failed twice.
	Fallback bool
}

// Ranked is the outcome of one rerank pass.
type Ranked struct {
	Results []Scored
	// Partial is true when at least one batch used fallback scores.
	Partial bool
}

// FromDistance converts a cosine distance into a coarse relevance score,
// clamped to [0,1].
func FromDistance(distance float64) float64 {
	score := 1 - distance/2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Reranker orchestrates batched scoring.
type Reranker struct {
	scorer    Scorer
	batchSize int
	logger    *slog.Logger
}

// New creates a Reranker. batchSize <= 0 uses BatchSize.
func New(scorer Scorer, batchSize int, logger *slog.Logger) (*Reranker, error) {
	if scorer == nil {
		return nil, errors.New("scorer is required")
	}
	if batchSize <= 0 {
		batchSize = BatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{scorer: scorer, batchSize: batchSize, logger: logger}, nil
}

// Rerank scores candidates against the query and returns the topK best.
// The input slice is not modified.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) (Ranked, error) {
	if len(candidates) == 0 || topK <= 0 {
		return Ranked{}, nil
	}

	batches := r.split(candidates)
	scored := make([][]Scored, len(batches))

	var mu sync.Mutex
	partial := false

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			results, usedFallback, err := r.scoreBatch(gctx, query, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			scored[i] = results
			partial = partial || usedFallback
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Ranked{}, err
	}

	var merged []Scored
	for _, batch := range scored {
		merged = append(merged, batch...)
	}
	sort.SliceStable(merged, func(a, b int) bool {
		if merged[a].Score != merged[b].Score {
			return merged[a].Score > merged[b].Score
		}
		return merged[a].Distance < merged[b].Distance
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}

	return Ranked{Results: merged, Partial: partial}, nil
}

// scoreBatch scores one batch, retrying once before degrading to
// distance-derived scores. Only context cancellation is returned as an error.
func (r *Reranker) scoreBatch(ctx context.Context, query string, batch []Candidate) ([]Scored, bool, error) {
	docs := make([]Document, len(batch))
	for i, c := range batch {
		docs[i] = Document{ID: c.ChunkID, Text: c.Text}
	}

	var scores []float64
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		scores, err = r.scorer.Score(ctx, query, docs)
		if err == nil && len(scores) == len(docs) {
			return r.attach(batch, scores, false), false, nil
		}
		if err == nil {
			err = errors.New("scorer returned wrong score count")
		}
	}

	r.logger.Warn("rerank batch degraded to distance scores", "size", len(batch), "error", err)
	fallback := make([]float64, len(batch))
	for i, c := range batch {
		fallback[i] = FromDistance(c.Distance)
	}
	return r.attach(batch, fallback, true), true, nil
}

func (r *Reranker) attach(batch []Candidate, scores []float64, fallback bool) []Scored {
	out := make([]Scored, len(batch))
	for i, c := range batch {
		out[i] = Scored{Candidate: c, Score: scores[i], Fallback: fallback}
	}
	return out
}

func (r *Reranker) split(candidates []Candidate) [][]Candidate {
	var batches [][]Candidate
	for start := 0; start < len(candidates); start += r.batchSize {
		end := min(start+r.batchSize, len(candidates))
		batches = append(batches, candidates[start:end])
	}
	return batches
}
