// Package app wires configuration, storage, models, and the knowledge base
// components into a running application.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eddalabs/edda/internal/config"
	"github.com/eddalabs/edda/internal/kb"
	"github.com/eddalabs/edda/internal/memo"
	"github.com/eddalabs/edda/internal/retrieval"
)

const shutdownGrace = 5 * time.Second

// App holds the initialized application components.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Genkit   *genkit.Genkit
	Pool     *pgxpool.Pool
	Store    *memo.Store
	Pipeline *retrieval.Pipeline
	Ingestor *kb.Ingestor

	otelShutdown func(context.Context) error
	dbCleanup    func()
}

// Close releases application resources in reverse initialization order.
// Safe to call on a partially initialized App.
func (a *App) Close() {
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		if err := a.otelShutdown(ctx); err != nil {
			a.logger().Warn("shutting down tracer provider", "error", err)
		}
		cancel()
		a.otelShutdown = nil
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.dbCleanup = nil
	}
}

func (a *App) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
