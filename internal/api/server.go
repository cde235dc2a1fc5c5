// Package api exposes the knowledge base over a JSON HTTP API: retrieval
// context search and memo ingestion, plus health probes for orchestrators.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Pipeline   Retriever     // Required
	Ingestor   Ingester      // Required
	Memos      MemoReader    // Required
	Pool       *pgxpool.Pool // Optional: nil disables the DB ping in /ready
	TrustProxy bool          // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst  int           // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("retrieval pipeline is required")
	}
	if cfg.Ingestor == nil || cfg.Memos == nil {
		return nil, errors.New("ingestor and memo store are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sh := &searchHandler{pipeline: cfg.Pipeline, logger: logger}
	mh := &memoHandler{ingestor: cfg.Ingestor, store: cfg.Memos, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/projects/{project}/search", sh.search)
	mux.HandleFunc("POST /api/projects/{project}/memos", mh.create)
	mux.HandleFunc("GET /api/projects/{project}/memos/{id}", mh.get)
	mux.HandleFunc("DELETE /api/projects/{project}/memos/{id}", mh.remove)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID must come before Logging so request_id is in log attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
