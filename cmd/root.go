// Package cmd implements the edda command line interface.
package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eddalabs/edda/internal/config"
	"github.com/eddalabs/edda/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "edda",
	Short: "Edda - self-consistent knowledge base with retrieval pipeline",
	Long: `Edda stores knowledge as memos, keeps the collection free of
duplicates and contradictions through an LLM curator, and serves
ranked retrieval contexts for grounding model answers.

Run 'edda serve' to start the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration and installs the configured default logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := log.New(log.Config{
		Level: parseLogLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
