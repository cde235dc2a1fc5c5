// Package embed wraps the provider embedder behind a fixed-dimension client.
//
// Every vector stored or searched in the system has exactly one dimension,
// fixed at startup. Providers that return shorter vectors are zero-padded;
// longer vectors are rejected. Storage and search embeddings carry different
// task hints so the provider can optimize for asymmetric retrieval.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ErrEmbeddingUnavailable wraps any provider failure so callers can degrade
// without inspecting provider-specific errors.
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// Usage tells the provider whether the text will be stored or used as a query.
type Usage string

const (
	UsageStorage Usage = "storage"
	UsageSearch  Usage = "search"
)

// taskType maps usage to the provider's asymmetric-retrieval task hint.
func (u Usage) taskType() string {
	if u == UsageSearch {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

// Client produces fixed-dimension embeddings with proactive rate limiting.
type Client struct {
	embedder  ai.Embedder
	dimension int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates a Client. limiter may be nil to disable rate limiting.
func New(embedder ai.Embedder, dimension int, limiter *rate.Limiter, logger *slog.Logger) (*Client, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if dimension < 1 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{embedder: embedder, dimension: dimension, limiter: limiter, logger: logger}, nil
}

// Dimension returns the fixed output dimension.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns a vector of exactly Dimension() floats for the given text.
func (c *Client) Embed(ctx context.Context, text string, usage Usage) ([]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	dim := int32(c.dimension)
	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{
			TaskType:             usage.taskType(),
			OutputDimensionality: &dim,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrEmbeddingUnavailable)
	}

	return c.normalize(resp.Embeddings[0].Embedding)
}

// normalize pads short vectors with zeros and rejects long ones. Padding keeps
// cosine distances stable because the added components are zero.
func (c *Client) normalize(vec []float32) ([]float32, error) {
	switch {
	case len(vec) == c.dimension:
		return vec, nil
	case len(vec) < c.dimension:
		c.logger.Debug("padding embedding", "got", len(vec), "want", c.dimension)
		padded := make([]float32, c.dimension)
		copy(padded, vec)
		return padded, nil
	default:
		return nil, fmt.Errorf("embedding has %d dimensions, expected at most %d", len(vec), c.dimension)
	}
}
