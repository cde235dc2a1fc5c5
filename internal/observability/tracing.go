// Package observability wires OTLP trace export into Genkit's tracer
// provider, so pipeline stages, agent turns, and tool calls show up as spans
// in whatever backend the collector forwards to.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultEndpoint is the conventional local OTLP HTTP collector endpoint.
const DefaultEndpoint = "localhost:4318"

// Config for trace export.
type Config struct {
	// Endpoint is the OTLP HTTP collector address (default localhost:4318).
	Endpoint string
	// ServiceName labels exported spans.
	ServiceName string
}

// Setup registers an OTLP exporter with Genkit's tracer provider and returns
// a shutdown function that flushes pending spans. Export failures disable
// tracing rather than failing startup.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if cfg.ServiceName != "" {
		// Genkit's TracerProvider reads the service name from the environment.
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		slog.Warn("creating trace exporter failed, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	slog.Debug("tracing enabled", "endpoint", endpoint, "service", cfg.ServiceName)
	return tracing.TracerProvider().Shutdown, nil
}
