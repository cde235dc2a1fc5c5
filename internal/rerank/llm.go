package rerank

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

const scorerSystemPrompt = `You are a relevance judge. For each numbered document,
score how relevant it is to the user's query on a scale from 0.0 (unrelated)
to 1.0 (directly answers the query). Judge each document independently.
Return a score for every document.`

// scoreItem is one judged document in the model's structured output.
type scoreItem struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

type scoreOutput struct {
	Scores []scoreItem `json:"scores"`
}

// LLMScorer scores documents with a single structured-output model call per
// batch.
type LLMScorer struct {
	g         *genkit.Genkit
	modelName string
}

// NewLLMScorer creates a scorer backed by the named model.
func NewLLMScorer(g *genkit.Genkit, modelName string) *LLMScorer {
	return &LLMScorer{g: g, modelName: modelName}
}

// Score implements Scorer.
func (s *LLMScorer) Score(ctx context.Context, query string, docs []Document) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nDocuments:\n", query)
	for i, doc := range docs {
		fmt.Fprintf(&sb, "Document %d: %s\n\n", i, doc.Text)
	}

	resp, err := genkit.Generate(ctx, s.g,
		ai.WithModelName(s.modelName),
		ai.WithSystem(scorerSystemPrompt),
		ai.WithPrompt(sb.String()),
		ai.WithOutputType(scoreOutput{}),
	)
	if err != nil {
		return nil, fmt.Errorf("scoring batch: %w", err)
	}

	var out scoreOutput
	if err := resp.Output(&out); err != nil {
		return nil, fmt.Errorf("parsing scores: %w", err)
	}

	scores := make([]float64, len(docs))
	seen := make([]bool, len(docs))
	for _, item := range out.Scores {
		if item.Index < 0 || item.Index >= len(docs) {
			return nil, fmt.Errorf("score index %d out of range", item.Index)
		}
		scores[item.Index] = clamp01(item.Score)
		seen[item.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("model omitted score for document %d", i)
		}
	}
	return scores, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
