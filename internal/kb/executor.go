package kb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// MemoMutator is the subset of the memo store the executor needs.
// *memo.Store satisfies it.
type MemoMutator interface {
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	Replace(ctx context.Context, oldID, newID uuid.UUID) error
	UpdateContent(ctx context.Context, id uuid.UUID, content string) error
}

// Reprocessor regenerates derived artifacts after a content update.
type Reprocessor interface {
	Process(ctx context.Context, id uuid.UUID) error
}

// Executor applies a validated action plan. Decisions and mutations are
// separated so a half-finished investigation can never leave partial writes.
type Executor struct {
	store       MemoMutator
	reprocessor Reprocessor
	logger      *slog.Logger
}

// NewExecutor creates an Executor. reprocessor may be nil if UPDATE actions
// never carry new content.
func NewExecutor(store MemoMutator, reprocessor Reprocessor, logger *slog.Logger) (*Executor, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, reprocessor: reprocessor, logger: logger}, nil
}

// Apply executes the plan for one incoming memo.
//
// When the plan pairs an INSERT with a DELETE, the first delete and the
// promotion of the incoming memo run in a single transaction, so readers
// never see both memos or neither. Without an INSERT the incoming memo is
// deleted: an agent that declined to keep it, or produced nothing usable,
// must not leave a pending memo behind.
func (e *Executor) Apply(ctx context.Context, incomingID uuid.UUID, actions []Action) error {
	insert := false
	inserted := false

	for _, a := range actions {
		if a.Type == ActionInsert {
			insert = true
			break
		}
	}

	for _, a := range actions {
		switch a.Type {
		case ActionInsert:
			// Applied together with the first DELETE, or at the end.

		case ActionDelete:
			if insert && !inserted {
				if err := e.store.Replace(ctx, a.MemoID, incomingID); err != nil {
					return fmt.Errorf("replacing memo %s: %w", a.MemoID, err)
				}
				inserted = true
				e.logger.Info("memo replaced", "old", a.MemoID, "new", incomingID, "reason", a.Reason)
				continue
			}
			if err := e.store.Delete(ctx, a.MemoID); err != nil {
				return fmt.Errorf("deleting memo %s: %w", a.MemoID, err)
			}
			e.logger.Info("memo deleted", "memo_id", a.MemoID, "reason", a.Reason)

		case ActionUpdate:
			if a.UpdatedContent == "" || a.UpdatedContent == ContentUnchanged {
				e.logger.Debug("update with unchanged content, skipping", "memo_id", a.MemoID)
				continue
			}
			if err := e.store.UpdateContent(ctx, a.MemoID, a.UpdatedContent); err != nil {
				return fmt.Errorf("updating memo %s: %w", a.MemoID, err)
			}
			// UpdateContent flips the memo back to pending, so it needs
			// promoting again once its artifacts are regenerated.
			if e.reprocessor != nil {
				if err := e.reprocessor.Process(ctx, a.MemoID); err != nil {
					e.logger.Warn("reprocessing updated memo failed", "memo_id", a.MemoID, "error", err)
					if markErr := e.store.MarkFailed(ctx, a.MemoID); markErr != nil {
						e.logger.Error("marking updated memo failed", "memo_id", a.MemoID, "error", markErr)
					}
					continue
				}
			}
			if err := e.store.MarkProcessed(ctx, a.MemoID); err != nil {
				return fmt.Errorf("promoting updated memo %s: %w", a.MemoID, err)
			}
			e.logger.Info("memo updated", "memo_id", a.MemoID, "reason", a.Reason)
		}
	}

	if insert && !inserted {
		if err := e.store.MarkProcessed(ctx, incomingID); err != nil {
			return fmt.Errorf("promoting incoming memo: %w", err)
		}
		e.logger.Info("memo inserted", "memo_id", incomingID)
		return nil
	}
	if !insert {
		if err := e.store.Delete(ctx, incomingID); err != nil {
			return fmt.Errorf("discarding incoming memo: %w", err)
		}
		e.logger.Info("incoming memo discarded", "memo_id", incomingID)
	}
	return nil
}
