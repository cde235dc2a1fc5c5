package retrieval

import (
	"errors"
	"fmt"
)

// Limits for per-request configuration.
const (
	MaxTopK       = 200
	MaxRerankTopK = 100

	DefaultTopK      = 100
	DefaultThreshold = 0.8
	DefaultRerank    = 50
)

// ErrInvalidConfig wraps all per-request configuration violations.
var ErrInvalidConfig = errors.New("invalid retrieval config")

// Config holds per-request pipeline knobs. Zero-valued numeric fields take
// defaults in ApplyDefaults; boolean fields use pointers so "absent" and
// "false" stay distinguishable in request payloads.
type Config struct {
	TopK                int      `json:"top_k,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	RerankTopK          int      `json:"rerank_top_k,omitempty"`
	RerankEnabled       *bool    `json:"rerank_enabled,omitempty"`
	QueryRewriteEnabled *bool    `json:"query_rewrite_enabled,omitempty"`
	CitationsEnabled    *bool    `json:"citations_enabled,omitempty"`
}

// Resolved is a fully validated configuration with defaults applied.
type Resolved struct {
	TopK                int
	SimilarityThreshold float64
	RerankTopK          int
	RerankEnabled       bool
	QueryRewriteEnabled bool
	CitationsEnabled    bool
}

// Defaults carries the deployment-level fallbacks, typically sourced from the
// application config.
type Defaults struct {
	TopK                int
	SimilarityThreshold float64
	RerankTopK          int
	RerankEnabled       bool
	QueryRewriteEnabled bool
	CitationsEnabled    bool
}

// Resolve validates c against the allowed ranges, filling gaps from d.
func (c Config) Resolve(d Defaults) (Resolved, error) {
	r := Resolved{
		TopK:                d.TopK,
		SimilarityThreshold: d.SimilarityThreshold,
		RerankTopK:          d.RerankTopK,
		RerankEnabled:       d.RerankEnabled,
		QueryRewriteEnabled: d.QueryRewriteEnabled,
		CitationsEnabled:    d.CitationsEnabled,
	}

	if c.TopK != 0 {
		r.TopK = c.TopK
	}
	if c.SimilarityThreshold != nil {
		r.SimilarityThreshold = *c.SimilarityThreshold
	}
	if c.RerankTopK != 0 {
		r.RerankTopK = c.RerankTopK
	}
	if c.RerankEnabled != nil {
		r.RerankEnabled = *c.RerankEnabled
	}
	if c.QueryRewriteEnabled != nil {
		r.QueryRewriteEnabled = *c.QueryRewriteEnabled
	}
	if c.CitationsEnabled != nil {
		r.CitationsEnabled = *c.CitationsEnabled
	}

	if r.TopK < 1 || r.TopK > MaxTopK {
		return Resolved{}, fmt.Errorf("%w: top_k %d (must be 1-%d)", ErrInvalidConfig, r.TopK, MaxTopK)
	}
	if r.SimilarityThreshold < 0 || r.SimilarityThreshold > 1 {
		return Resolved{}, fmt.Errorf("%w: similarity_threshold %g (must be 0-1)", ErrInvalidConfig, r.SimilarityThreshold)
	}
	if r.RerankTopK < 1 || r.RerankTopK > MaxRerankTopK {
		return Resolved{}, fmt.Errorf("%w: rerank_top_k %d (must be 1-%d)", ErrInvalidConfig, r.RerankTopK, MaxRerankTopK)
	}
	if r.RerankTopK > r.TopK {
		return Resolved{}, fmt.Errorf("%w: rerank_top_k %d exceeds top_k %d", ErrInvalidConfig, r.RerankTopK, r.TopK)
	}
	return r, nil
}

// StandardDefaults returns the documented default configuration.
func StandardDefaults() Defaults {
	return Defaults{
		TopK:                DefaultTopK,
		SimilarityThreshold: DefaultThreshold,
		RerankTopK:          DefaultRerank,
		RerankEnabled:       true,
	}
}
