// Package kb keeps the knowledge base consistent as memos arrive.
//
// Ingestion inserts an incoming memo as pending, derives its artifacts, and
// hands it to the consistency agent. The agent investigates through read
// tools and declares INSERT/DELETE/UPDATE actions; the executor applies them.
// Until the executor promotes it, the memo is invisible to retrieval.
package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eddalabs/edda/internal/memo"
)

// Ingestor runs the full ingestion flow for incoming memos.
type Ingestor struct {
	store     *memo.Store
	processor *Processor
	agent     *Agent
	executor  *Executor
	logger    *slog.Logger
}

// NewIngestor wires the ingestion flow.
func NewIngestor(store *memo.Store, processor *Processor, agent *Agent, executor *Executor, logger *slog.Logger) (*Ingestor, error) {
	if store == nil || processor == nil || agent == nil || executor == nil {
		return nil, fmt.Errorf("store, processor, agent, and executor are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{store: store, processor: processor, agent: agent, executor: executor, logger: logger}, nil
}

// Ingest runs the flow for one incoming memo and returns its final state.
//
// Exact duplicates short-circuit before any model call: when a processed memo
// with identical content already exists in the project, the incoming memo
// replaces it atomically and the agent never runs. The incoming content
// always survives; the stale copy is removed.
func (in *Ingestor) Ingest(ctx context.Context, n memo.NewMemo) (*memo.Memo, error) {
	existing, err := in.store.FindByContentHash(ctx, n.ProjectID, memo.Hash(n.Content))
	if err != nil && !errors.Is(err, memo.ErrMemoNotFound) {
		return nil, err
	}
	duplicate := err == nil

	m, err := in.store.Insert(ctx, n)
	if err != nil {
		return nil, err
	}
	in.logger.Info("memo received", "memo_id", m.ID, "title", m.Title)

	if err := in.processor.Process(ctx, m.ID); err != nil {
		return nil, err
	}

	if duplicate {
		in.logger.Info("exact duplicate, replacing without review",
			"memo_id", m.ID, "replaces", existing.ID)
		if err := in.store.Replace(ctx, existing.ID, m.ID); err != nil {
			return nil, err
		}
		return in.store.Get(ctx, m.ID)
	}

	summary, err := in.store.Summary(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	tags, err := in.store.Tags(ctx, m.ID)
	if err != nil {
		return nil, err
	}

	actions, err := in.agent.Review(ctx, m, n.Content, summary, tags)
	if err != nil {
		if markErr := in.store.MarkFailed(ctx, m.ID); markErr != nil {
			in.logger.Error("marking memo failed", "memo_id", m.ID, "error", markErr)
		}
		return nil, err
	}

	if err := in.executor.Apply(ctx, m.ID, actions); err != nil {
		return nil, err
	}

	final, err := in.store.Get(ctx, m.ID)
	if errors.Is(err, memo.ErrMemoNotFound) {
		// The agent discarded the incoming memo.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return final, nil
}
