// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (EDDA_* overrides, DATABASE_URL)
//  2. Config file (./edda.yaml or ~/.edda/config.yaml)
//  3. Default values
//
// Categories:
//   - AI: provider, generation model, embedder model and dimension
//   - Storage: PostgreSQL connection (pgvector required)
//   - Retrieval: default RAG pipeline knobs (top-K, threshold, rerank)
//   - Server: HTTP listen address
//   - Observability: OTLP trace endpoint
//
// Sensitive fields are masked in MarshalJSON. Validation uses sentinel errors
// so callers can branch with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	ErrConfigNil           = errors.New("configuration is nil")
	ErrInvalidProvider     = errors.New("invalid provider")
	ErrInvalidModelName    = errors.New("invalid model name")
	ErrInvalidDimension    = errors.New("invalid embedding dimension")
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")
	ErrInvalidPostgresDB   = errors.New("invalid PostgreSQL database name")
	ErrInvalidSSLMode      = errors.New("invalid PostgreSQL SSL mode")
	ErrInvalidTopK         = errors.New("invalid top-k")
	ErrInvalidThreshold    = errors.New("invalid similarity threshold")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
)

const (
	// DefaultEmbeddingDimension is the system-wide vector dimension.
	// All embedding columns are declared with this dimension; providers that
	// return shorter vectors are zero-padded by the embed client.
	DefaultEmbeddingDimension = 2048

	// DefaultVectorSearchTopK caps the candidate set handed to the reranker.
	DefaultVectorSearchTopK = 100

	// DefaultSimilarityThreshold is the maximum cosine distance for a chunk
	// to count as a candidate.
	DefaultSimilarityThreshold = 0.8

	// DefaultRerankTopK is the size of the final reranked context.
	DefaultRerankTopK = 50
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"`
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbeddingDim  int    `mapstructure:"embedding_dimension" json:"embedding_dimension"`

	// Retrieval pipeline defaults (overridable per request)
	VectorSearchTopK    int     `mapstructure:"vector_search_top_k" json:"vector_search_top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	RerankTopK          int     `mapstructure:"rerank_top_k" json:"rerank_top_k"`
	RerankEnabled       bool    `mapstructure:"rerank_enabled" json:"rerank_enabled"`
	QueryRewriteEnabled bool    `mapstructure:"query_rewrite_enabled" json:"query_rewrite_enabled"`
	CitationsEnabled    bool    `mapstructure:"citations_enabled" json:"citations_enabled"`

	// PostgreSQL connection
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"`
	PostgresDBName   string `mapstructure:"postgres_dbname" json:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode" json:"postgres_sslmode"`

	// HTTP API
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// Observability
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".edda"))
	}
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("EDDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers default values on the given viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGoogleAI)
	v.SetDefault("model_name", "googleai/gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("embedding_dimension", DefaultEmbeddingDimension)

	v.SetDefault("vector_search_top_k", DefaultVectorSearchTopK)
	v.SetDefault("similarity_threshold", DefaultSimilarityThreshold)
	v.SetDefault("rerank_top_k", DefaultRerankTopK)
	v.SetDefault("rerank_enabled", true)
	v.SetDefault("query_rewrite_enabled", false)
	v.SetDefault("citations_enabled", false)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "edda")
	v.SetDefault("postgres_dbname", "edda")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("listen_addr", "127.0.0.1:3400")
	v.SetDefault("log_level", "info")
}

// Validate checks all configuration values, returning the first violation.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidModelName)
	}
	if c.EmbeddingDim < 1 || c.EmbeddingDim > 4096 {
		return fmt.Errorf("%w: %d (must be 1-4096)", ErrInvalidDimension, c.EmbeddingDim)
	}

	if c.VectorSearchTopK < 1 || c.VectorSearchTopK > 200 {
		return fmt.Errorf("%w: vector_search_top_k %d (must be 1-200)", ErrInvalidTopK, c.VectorSearchTopK)
	}
	if c.RerankTopK < 1 || c.RerankTopK > c.VectorSearchTopK {
		return fmt.Errorf("%w: rerank_top_k %d (must be 1-%d)", ErrInvalidTopK, c.RerankTopK, c.VectorSearchTopK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: %g (must be 0-1)", ErrInvalidThreshold, c.SimilarityThreshold)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDB)
	}
	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSSLMode, c.PostgresSSLMode)
	}

	return nil
}

// MarshalJSON masks sensitive fields when the config is logged or exported.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := *c
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "********"
	}
	return json.Marshal((*alias)(&masked))
}
