package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"golang.org/x/time/rate"

	"github.com/eddalabs/edda/internal/config"
	"github.com/eddalabs/edda/internal/database"
	"github.com/eddalabs/edda/internal/embed"
	"github.com/eddalabs/edda/internal/kb"
	"github.com/eddalabs/edda/internal/memo"
	"github.com/eddalabs/edda/internal/observability"
	"github.com/eddalabs/edda/internal/rerank"
	"github.com/eddalabs/edda/internal/retrieval"
	"github.com/eddalabs/edda/internal/search"
)

// Embedding API rate limit: requests per second and burst.
const (
	embedRatePerSec = 10
	embedBurst      = 20
)

// Setup creates and initializes the application. Call Close on the returned
// App to release resources.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	// Tracing must be registered before Genkit initialization so spans from
	// model calls are captured.
	otelShutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "edda",
	})
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.otelShutdown = otelShutdown

	pool, dbCleanup, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}

	limiter := rate.NewLimiter(rate.Limit(embedRatePerSec), embedBurst)
	embedClient, err := embed.New(embedder, cfg.EmbeddingDim, limiter, logger)
	if err != nil {
		return nil, err
	}

	store, err := memo.NewStore(pool, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store

	engine, err := search.NewEngine(pool, cfg.EmbeddingDim, logger)
	if err != nil {
		return nil, err
	}

	reranker, err := rerank.New(rerank.NewLLMScorer(g, cfg.ModelName), rerank.BatchSize, logger)
	if err != nil {
		return nil, err
	}

	pipeline, err := retrieval.NewPipeline(g, cfg.ModelName, embedClient, engine, store, reranker,
		retrieval.Defaults{
			TopK:                cfg.VectorSearchTopK,
			SimilarityThreshold: cfg.SimilarityThreshold,
			RerankTopK:          cfg.RerankTopK,
			RerankEnabled:       cfg.RerankEnabled,
			QueryRewriteEnabled: cfg.QueryRewriteEnabled,
			CitationsEnabled:    cfg.CitationsEnabled,
		}, logger)
	if err != nil {
		return nil, err
	}
	a.Pipeline = pipeline

	tools := kb.RegisterTools(g, store, engine, embedClient)

	agent, err := kb.NewAgent(g, cfg.ModelName, "", tools, logger)
	if err != nil {
		return nil, err
	}

	processor, err := kb.NewProcessor(g, cfg.ModelName, embedClient, nil, store, logger)
	if err != nil {
		return nil, err
	}

	executor, err := kb.NewExecutor(store, processor, logger)
	if err != nil {
		return nil, err
	}

	ingestor, err := kb.NewIngestor(store, processor, agent, executor, logger)
	if err != nil {
		return nil, err
	}
	a.Ingestor = ingestor

	return a, nil
}

// provideGenkit initializes Genkit with the configured model provider.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case "openai":
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		slog.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // "gemini" / "googleai"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		slog.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case "openai":
		// OpenAI auto-registers embedders in Init().
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // "gemini" / "googleai"
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}
