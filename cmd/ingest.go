package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/eddalabs/edda/internal/app"
	"github.com/eddalabs/edda/internal/memo"
)

var ingestFlags struct {
	project string
	title   string
	source  string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a memo from a file or stdin",
	Long: `Reads memo content from the given file (or stdin when omitted),
runs the full ingestion flow including the consistency review, and
prints the resulting memo ID.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFlags.project, "project", "", "project UUID (required)")
	ingestCmd.Flags().StringVar(&ingestFlags.title, "title", "", "memo title (defaults to the file name)")
	ingestCmd.Flags().StringVar(&ingestFlags.source, "source", "cli", "memo source label")
	_ = ingestCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	projectID, err := uuid.Parse(ingestFlags.project)
	if err != nil {
		return fmt.Errorf("invalid project ID: %w", err)
	}

	var content []byte
	title := ingestFlags.title
	if len(args) == 1 {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		if title == "" {
			title = filepath.Base(args[0])
		}
	} else {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	}
	if title == "" {
		return fmt.Errorf("--title is required when reading from stdin")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	m, err := a.Ingestor.Ingest(ctx, memo.NewMemo{
		ProjectID: projectID,
		Title:     title,
		Source:    ingestFlags.source,
		Content:   string(content),
	})
	if err != nil {
		return fmt.Errorf("ingesting memo: %w", err)
	}
	if m == nil {
		fmt.Println("memo discarded by consistency review")
		return nil
	}

	fmt.Printf("memo ingested: %s\n", m.ID)
	return nil
}
