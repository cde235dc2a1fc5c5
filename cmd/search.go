package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/eddalabs/edda/internal/app"
	"github.com/eddalabs/edda/internal/retrieval"
)

var searchFlags struct {
	project string
	topK    int
	rerank  bool
	asJSON  bool
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a one-shot retrieval query",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runSearch(args[0])
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchFlags.project, "project", "", "project UUID (required)")
	searchCmd.Flags().IntVar(&searchFlags.topK, "top-k", 0, "vector search candidate count (0 = server default)")
	searchCmd.Flags().BoolVar(&searchFlags.rerank, "rerank", true, "rerank candidates with the model")
	searchCmd.Flags().BoolVar(&searchFlags.asJSON, "json", false, "print the full retrieval context as JSON")
	_ = searchCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(query string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	projectID, err := uuid.Parse(searchFlags.project)
	if err != nil {
		return fmt.Errorf("invalid project ID: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	rerank := searchFlags.rerank
	result, err := a.Pipeline.Retrieve(ctx, retrieval.Request{
		ProjectID: projectID,
		Query:     query,
		Config: retrieval.Config{
			TopK:          searchFlags.topK,
			RerankEnabled: &rerank,
		},
	})
	if err != nil {
		return fmt.Errorf("retrieving: %w", err)
	}

	if searchFlags.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if len(result.Results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, r := range result.Results {
		fmt.Printf("%d. [%.3f] %s\n%s\n\n", i+1, r.Score, r.Title, r.Text)
	}
	return nil
}
