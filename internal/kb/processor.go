package kb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/eddalabs/edda/internal/chunk"
	"github.com/eddalabs/edda/internal/embed"
	"github.com/eddalabs/edda/internal/memo"
)

// DerivedStore is the subset of the memo store processing needs.
// *memo.Store satisfies it.
type DerivedStore interface {
	Get(ctx context.Context, id uuid.UUID) (*memo.Memo, error)
	Content(ctx context.Context, id uuid.UUID) (string, error)
	ListProjectTags(ctx context.Context, projectID uuid.UUID) ([]string, error)
	SaveDerived(ctx context.Context, id uuid.UUID, d memo.Derived) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

const summarySystemPrompt = `Summarize the document in a few sentences. Capture the
topics it covers and the concrete facts it states, so the summary can stand in
for the document in semantic search. Output only the summary.`

const keywordSystemPrompt = `For each numbered passage, extract up to five short
keywords a reader would use to look it up: names, systems, topics, identifiers.
Use the passage's own language. Return keywords for every passage.`

const tagSystemPrompt = `Assign up to five short tags classifying the document:
topic areas, systems, document kind. Lowercase, hyphenated where needed. When a
tag already in use in this knowledge base fits the document, reuse it instead
of inventing a synonym.`

type keywordOutput struct {
	Passages []struct {
		Index    int      `json:"index"`
		Keywords []string `json:"keywords"`
	} `json:"passages"`
}

type tagOutput struct {
	Tags []string `json:"tags"`
}

// Processor derives chunks, keywords, tags, and a summary for a memo.
type Processor struct {
	g         *genkit.Genkit
	modelName string
	embedder  *embed.Client
	splitter  *chunk.Splitter
	store     DerivedStore
	logger    *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(g *genkit.Genkit, modelName string, embedder *embed.Client,
	splitter *chunk.Splitter, store DerivedStore, logger *slog.Logger) (*Processor, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if splitter == nil {
		splitter = chunk.New(chunk.DefaultSize, chunk.DefaultMinChars)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{g: g, modelName: modelName, embedder: embedder,
		splitter: splitter, store: store, logger: logger}, nil
}

// Process loads the memo's content, derives all artifacts concurrently, and
// persists them atomically. On failure the memo is marked failed and the
// error returned.
func (p *Processor) Process(ctx context.Context, id uuid.UUID) error {
	m, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	content, err := p.store.Content(ctx, id)
	if err != nil {
		return err
	}

	// Existing tags steer extraction toward the project's vocabulary.
	existingTags, err := p.store.ListProjectTags(ctx, m.ProjectID)
	if err != nil {
		p.logger.Warn("listing project tags failed, extracting without them", "memo_id", id, "error", err)
		existingTags = nil
	}

	derived, err := p.derive(ctx, content, existingTags)
	if err != nil {
		if markErr := p.store.MarkFailed(ctx, id); markErr != nil {
			p.logger.Error("marking memo failed", "memo_id", id, "error", markErr)
		}
		return fmt.Errorf("deriving artifacts for memo %s: %w", id, err)
	}

	if err := p.store.SaveDerived(ctx, id, *derived); err != nil {
		if markErr := p.store.MarkFailed(ctx, id); markErr != nil {
			p.logger.Error("marking memo failed", "memo_id", id, "error", markErr)
		}
		return err
	}

	p.logger.Info("memo processed", "memo_id", id, "chunks", len(derived.Chunks), "tags", len(derived.Tags))
	return nil
}

// derive runs the three independent derivations concurrently: chunks with
// embeddings and keywords, tags, and the summary with its embedding.
func (p *Processor) derive(ctx context.Context, content string, existingTags []string) (*memo.Derived, error) {
	pieces := p.splitter.Split(content)

	var (
		chunks  []memo.Chunk
		tags    []string
		summary string
		sumVec  []float32
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		chunks, err = p.buildChunks(gctx, pieces)
		return err
	})

	g.Go(func() error {
		var err error
		tags, err = p.extractTags(gctx, content, existingTags)
		return err
	})

	g.Go(func() error {
		var err error
		summary, sumVec, err = p.summarize(gctx, content)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &memo.Derived{
		Chunks:           chunks,
		Summary:          summary,
		SummaryEmbedding: sumVec,
		Tags:             tags,
	}, nil
}

// buildChunks embeds every chunk and attaches its keywords. Keywords for all
// chunks come from one structured call; a keyword failure degrades to
// keyword-less chunks rather than failing the memo.
func (p *Processor) buildChunks(ctx context.Context, pieces []string) ([]memo.Chunk, error) {
	keywords, err := p.extractKeywords(ctx, pieces)
	if err != nil {
		p.logger.Warn("keyword extraction failed, storing chunks without keywords", "error", err)
		keywords = make([][]string, len(pieces))
	}

	chunks := make([]memo.Chunk, len(pieces))
	for i, piece := range pieces {
		vec, err := p.embedder.Embed(ctx, piece, embed.UsageStorage)
		if err != nil {
			return nil, fmt.Errorf("embedding chunk %d: %w", i, err)
		}
		chunks[i] = memo.Chunk{Index: i, Content: piece, Embedding: vec, Keywords: keywords[i]}
	}
	return chunks, nil
}

func (p *Processor) extractKeywords(ctx context.Context, pieces []string) ([][]string, error) {
	if len(pieces) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, piece := range pieces {
		fmt.Fprintf(&sb, "Passage %d: %s\n\n", i, piece)
	}

	resp, err := genkit.Generate(ctx, p.g,
		ai.WithModelName(p.modelName),
		ai.WithSystem(keywordSystemPrompt),
		ai.WithPrompt(sb.String()),
		ai.WithOutputType(keywordOutput{}),
	)
	if err != nil {
		return nil, err
	}
	var out keywordOutput
	if err := resp.Output(&out); err != nil {
		return nil, err
	}

	keywords := make([][]string, len(pieces))
	for _, passage := range out.Passages {
		if passage.Index >= 0 && passage.Index < len(pieces) {
			keywords[passage.Index] = passage.Keywords
		}
	}
	return keywords, nil
}

func (p *Processor) extractTags(ctx context.Context, content string, existing []string) ([]string, error) {
	prompt := content
	if len(existing) > 0 {
		prompt = fmt.Sprintf("Tags already in use: %s\n\n%s", strings.Join(existing, ", "), content)
	}
	resp, err := genkit.Generate(ctx, p.g,
		ai.WithModelName(p.modelName),
		ai.WithSystem(tagSystemPrompt),
		ai.WithPrompt(prompt),
		ai.WithOutputType(tagOutput{}),
	)
	if err != nil {
		return nil, fmt.Errorf("extracting tags: %w", err)
	}
	var out tagOutput
	if err := resp.Output(&out); err != nil {
		return nil, fmt.Errorf("parsing tags: %w", err)
	}
	return out.Tags, nil
}

func (p *Processor) summarize(ctx context.Context, content string) (string, []float32, error) {
	resp, err := genkit.Generate(ctx, p.g,
		ai.WithModelName(p.modelName),
		ai.WithSystem(summarySystemPrompt),
		ai.WithPrompt(content),
	)
	if err != nil {
		return "", nil, fmt.Errorf("summarizing: %w", err)
	}
	summary := strings.TrimSpace(resp.Text())
	if summary == "" {
		return "", nil, fmt.Errorf("empty summary")
	}

	vec, err := p.embedder.Embed(ctx, summary, embed.UsageStorage)
	if err != nil {
		return "", nil, fmt.Errorf("embedding summary: %w", err)
	}
	return summary, vec, nil
}
