// Package testutil provides shared test infrastructure: a deterministic mock
// model, a deterministic mock embedder, a quiet logger, and a pgvector
// test container helper.
package testutil

import (
	"io"
	"log/slog"
)

// QuietLogger returns a logger that only emits warnings and above, keeping
// test output readable.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
