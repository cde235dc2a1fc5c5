package kb

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/eddalabs/edda/internal/testutil"
)

// fakeStore records mutations in order.
type fakeStore struct {
	ops []string
}

func (f *fakeStore) MarkProcessed(_ context.Context, id uuid.UUID) error {
	f.ops = append(f.ops, "promote "+id.String())
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id uuid.UUID) error {
	f.ops = append(f.ops, "fail "+id.String())
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	f.ops = append(f.ops, "delete "+id.String())
	return nil
}

func (f *fakeStore) Replace(_ context.Context, oldID, newID uuid.UUID) error {
	f.ops = append(f.ops, fmt.Sprintf("replace %s %s", oldID, newID))
	return nil
}

func (f *fakeStore) UpdateContent(_ context.Context, id uuid.UUID, content string) error {
	f.ops = append(f.ops, fmt.Sprintf("update %s %q", id, content))
	return nil
}

type fakeReprocessor struct {
	processed []uuid.UUID
	err       error
}

func (f *fakeReprocessor) Process(_ context.Context, id uuid.UUID) error {
	f.processed = append(f.processed, id)
	return f.err
}

func TestApplyInsertOnly(t *testing.T) {
	store := &fakeStore{}
	ex, _ := NewExecutor(store, nil, testutil.QuietLogger())
	incoming := uuid.New()

	err := ex.Apply(context.Background(), incoming, []Action{
		{Type: ActionInsert, MemoID: incoming},
	})
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	want := []string{"promote " + incoming.String()}
	assertOps(t, store.ops, want)
}

func TestApplyInsertWithDeleteIsAtomicReplace(t *testing.T) {
	store := &fakeStore{}
	ex, _ := NewExecutor(store, nil, testutil.QuietLogger())
	incoming, old := uuid.New(), uuid.New()

	err := ex.Apply(context.Background(), incoming, []Action{
		{Type: ActionInsert, MemoID: incoming},
		{Type: ActionDelete, MemoID: old},
	})
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	want := []string{fmt.Sprintf("replace %s %s", old, incoming)}
	assertOps(t, store.ops, want)
}

func TestApplyInsertWithTwoDeletes(t *testing.T) {
	store := &fakeStore{}
	ex, _ := NewExecutor(store, nil, testutil.QuietLogger())
	incoming, a, b := uuid.New(), uuid.New(), uuid.New()

	err := ex.Apply(context.Background(), incoming, []Action{
		{Type: ActionInsert, MemoID: incoming},
		{Type: ActionDelete, MemoID: a},
		{Type: ActionDelete, MemoID: b},
	})
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	// First delete pairs with the insert; the second is plain.
	want := []string{
		fmt.Sprintf("replace %s %s", a, incoming),
		"delete " + b.String(),
	}
	assertOps(t, store.ops, want)
}

func TestApplyNoInsertDiscardsIncoming(t *testing.T) {
	store := &fakeStore{}
	ex, _ := NewExecutor(store, nil, testutil.QuietLogger())
	incoming := uuid.New()

	if err := ex.Apply(context.Background(), incoming, nil); err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	assertOps(t, store.ops, []string{"delete " + incoming.String()})
}

func TestApplyUpdateUnchangedContentSkipsWrite(t *testing.T) {
	store := &fakeStore{}
	rp := &fakeReprocessor{}
	ex, _ := NewExecutor(store, rp, testutil.QuietLogger())
	incoming, target := uuid.New(), uuid.New()

	err := ex.Apply(context.Background(), incoming, []Action{
		{Type: ActionInsert, MemoID: incoming},
		{Type: ActionUpdate, MemoID: target, UpdatedContent: ContentUnchanged},
	})
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	assertOps(t, store.ops, []string{"promote " + incoming.String()})
	if len(rp.processed) != 0 {
		t.Error("reprocessor invoked for unchanged content")
	}
}

func TestApplyUpdateWithContentReprocesses(t *testing.T) {
	store := &fakeStore{}
	rp := &fakeReprocessor{}
	ex, _ := NewExecutor(store, rp, testutil.QuietLogger())
	incoming, target := uuid.New(), uuid.New()

	err := ex.Apply(context.Background(), incoming, []Action{
		{Type: ActionUpdate, MemoID: target, UpdatedContent: "revised text"},
	})
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	want := []string{
		fmt.Sprintf("update %s %q", target, "revised text"),
		"promote " + target.String(),
		"delete " + incoming.String(), // no INSERT declared
	}
	assertOps(t, store.ops, want)
	if len(rp.processed) != 1 || rp.processed[0] != target {
		t.Errorf("reprocessed = %v, want [%s]", rp.processed, target)
	}
}

func TestApplyUpdatePromotesTargetAfterReprocess(t *testing.T) {
	store := &fakeStore{}
	rp := &fakeReprocessor{}
	ex, _ := NewExecutor(store, rp, testutil.QuietLogger())
	incoming, target := uuid.New(), uuid.New()

	err := ex.Apply(context.Background(), incoming, []Action{
		{Type: ActionInsert, MemoID: incoming},
		{Type: ActionUpdate, MemoID: target, UpdatedContent: "revised text"},
	})
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	// The update target was flipped pending by the content swap and must be
	// promoted again, independently of the incoming memo's promotion.
	want := []string{
		fmt.Sprintf("update %s %q", target, "revised text"),
		"promote " + target.String(),
		"promote " + incoming.String(),
	}
	assertOps(t, store.ops, want)
}

func TestApplyUpdateReprocessFailureMarksFailed(t *testing.T) {
	store := &fakeStore{}
	rp := &fakeReprocessor{err: fmt.Errorf("model outage")}
	ex, _ := NewExecutor(store, rp, testutil.QuietLogger())
	incoming, target := uuid.New(), uuid.New()

	err := ex.Apply(context.Background(), incoming, []Action{
		{Type: ActionInsert, MemoID: incoming},
		{Type: ActionUpdate, MemoID: target, UpdatedContent: "revised text"},
	})
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	// A failed reprocess must not be silently swallowed: the target is
	// marked failed, never promoted, and the rest of the plan still runs.
	want := []string{
		fmt.Sprintf("update %s %q", target, "revised text"),
		"fail " + target.String(),
		"promote " + incoming.String(),
	}
	assertOps(t, store.ops, want)
}

func assertOps(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ops[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
