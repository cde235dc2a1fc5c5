// Package retrieval assembles the search pipeline: optional query rewrite,
// vector search, hydration, reranking, and prompt construction.
//
// Stages degrade independently. A failed rewrite falls back to the original
// query; a failed rerank batch falls back to distance scores and marks the
// context partial. Only embedding and vector search failures abort a request,
// because without candidates there is nothing to answer from.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/eddalabs/edda/internal/embed"
	"github.com/eddalabs/edda/internal/filter"
	"github.com/eddalabs/edda/internal/memo"
	"github.com/eddalabs/edda/internal/rerank"
	"github.com/eddalabs/edda/internal/search"
)

// historyWindow is how many trailing conversation turns inform the rewrite.
const historyWindow = 3

// Turn is one prior conversation message.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is one retrieval invocation.
type Request struct {
	ProjectID          uuid.UUID
	Query              string
	History            []Turn
	Filters            []filter.Filter
	ClientSystemPrompt string
	Config             Config
}

// Result is one retrieved piece of knowledge, best first.
type Result struct {
	ChunkID uuid.UUID `json:"chunk_id"`
	MemoID  uuid.UUID `json:"memo_id"`
	Title   string    `json:"title"`
	Text    string    `json:"text"`
	Score   float64   `json:"score"`
}

// Context is the pipeline output: ranked results plus the prompts a caller
// needs to generate an answer.
type Context struct {
	Results        []Result `json:"results"`
	Prompt         string   `json:"prompt"`
	SystemPrompt   string   `json:"system_prompt"`
	RewrittenQuery string   `json:"rewritten_query,omitempty"`
	// Partial is true when reranking degraded to distance-derived scores
	// for at least one batch.
	Partial bool `json:"partial,omitempty"`
}

// Pipeline wires the retrieval stages. Safe for concurrent use.
type Pipeline struct {
	g            *genkit.Genkit
	rewriteModel string
	embedder     *embed.Client
	engine       *search.Engine
	store        *memo.Store
	reranker     *rerank.Reranker
	defaults     Defaults
	logger       *slog.Logger
}

// NewPipeline creates a Pipeline. reranker may be nil only if callers always
// disable reranking.
func NewPipeline(g *genkit.Genkit, rewriteModel string, embedder *embed.Client, engine *search.Engine,
	store *memo.Store, reranker *rerank.Reranker, defaults Defaults, logger *slog.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("search engine is required")
	}
	if store == nil {
		return nil, fmt.Errorf("memo store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		g:            g,
		rewriteModel: rewriteModel,
		embedder:     embedder,
		engine:       engine,
		store:        store,
		reranker:     reranker,
		defaults:     defaults,
		logger:       logger,
	}, nil
}

// Retrieve runs the pipeline for one request.
func (p *Pipeline) Retrieve(ctx context.Context, req Request) (*Context, error) {
	cfg, err := req.Config.Resolve(p.defaults)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidConfig)
	}

	query := req.Query
	rewritten := ""
	if cfg.QueryRewriteEnabled {
		if rw, err := p.rewrite(ctx, req.Query, req.History); err != nil {
			p.logger.Warn("query rewrite failed, using original query", "error", err)
		} else if rw != "" && rw != req.Query {
			query = rw
			rewritten = rw
		}
	}

	vec, err := p.embedder.Embed(ctx, query, embed.UsageSearch)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := p.engine.SearchChunks(ctx, req.ProjectID, vec, search.Options{
		TopK:      cfg.TopK,
		Threshold: cfg.SimilarityThreshold,
		Filters:   req.Filters,
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &Context{
			SystemPrompt:   systemPrompt(cfg.CitationsEnabled, req.ClientSystemPrompt),
			RewrittenQuery: rewritten,
		}, nil
	}

	var results []Result
	partial := false
	if cfg.RerankEnabled && p.reranker != nil {
		results, partial, err = p.rerankMatches(ctx, query, matches, cfg.RerankTopK)
		if err != nil {
			return nil, err
		}
	} else {
		results = fromDistanceOrder(matches, cfg.RerankTopK)
	}

	return &Context{
		Results:        results,
		Prompt:         formatResults(results),
		SystemPrompt:   systemPrompt(cfg.CitationsEnabled, req.ClientSystemPrompt),
		RewrittenQuery: rewritten,
		Partial:        partial,
	}, nil
}

// rewrite reformulates a follow-up question into a standalone query using the
// last few conversation turns.
func (p *Pipeline) rewrite(ctx context.Context, query string, history []Turn) (string, error) {
	if len(history) == 0 {
		return "", nil
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	var sb strings.Builder
	sb.WriteString("Conversation history:\n")
	for _, turn := range history {
		fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Content)
	}
	fmt.Fprintf(&sb, "\nLatest message: %s", query)

	resp, err := genkit.Generate(ctx, p.g,
		ai.WithModelName(p.rewriteModel),
		ai.WithSystem(rewriteSystemPrompt),
		ai.WithPrompt(sb.String()),
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

// rerankMatches hydrates candidates with memo context and reranks them.
func (p *Pipeline) rerankMatches(ctx context.Context, query string, matches []search.ChunkMatch, topK int) ([]Result, bool, error) {
	chunkIDs := make([]uuid.UUID, len(matches))
	for i, m := range matches {
		chunkIDs[i] = m.ChunkID
	}
	hydrated, err := p.store.Hydrate(ctx, chunkIDs)
	if err != nil {
		return nil, false, fmt.Errorf("hydrating candidates: %w", err)
	}

	candidates := make([]rerank.Candidate, 0, len(matches))
	for _, m := range matches {
		text := m.Content
		if h, ok := hydrated[m.ChunkID]; ok {
			text = hydratedText(h.Title, h.Summary, h.Content)
		}
		candidates = append(candidates, rerank.Candidate{
			ChunkID:  m.ChunkID,
			MemoID:   m.MemoID,
			Text:     text,
			Distance: m.Distance,
		})
	}

	ranked, err := p.reranker.Rerank(ctx, query, candidates, topK)
	if err != nil {
		return nil, false, err
	}

	titles := make(map[uuid.UUID]string, len(matches))
	chunkText := make(map[uuid.UUID]string, len(matches))
	for _, m := range matches {
		titles[m.ChunkID] = m.Title
		chunkText[m.ChunkID] = m.Content
	}

	results := make([]Result, len(ranked.Results))
	for i, r := range ranked.Results {
		results[i] = Result{
			ChunkID: r.ChunkID,
			MemoID:  r.MemoID,
			Title:   titles[r.ChunkID],
			Text:    chunkText[r.ChunkID],
			Score:   r.Score,
		}
	}
	return results, ranked.Partial, nil
}

// fromDistanceOrder converts search matches directly into results when
// reranking is disabled. Matches are already nearest first.
func fromDistanceOrder(matches []search.ChunkMatch, topK int) []Result {
	if len(matches) > topK {
		matches = matches[:topK]
	}
	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			ChunkID: m.ChunkID,
			MemoID:  m.MemoID,
			Title:   m.Title,
			Text:    m.Content,
			Score:   rerank.FromDistance(m.Distance),
		}
	}
	return results
}
