package testutil

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/ai"
)

func userRequest(text string) *ai.ModelRequest {
	return &ai.ModelRequest{
		Messages: []*ai.Message{ai.NewUserMessage(ai.NewTextPart(text))},
	}
}

func TestMockLLMPatternMatching(t *testing.T) {
	m := NewMockLLM("fallback")
	m.AddResponse("conflict", "conflict found")
	m.AddResponse("summary", "a short summary")

	tests := []struct {
		input string
		want  string
	}{
		{"is there a CONFLICT here", "conflict found"},
		{"write a summary please", "a short summary"},
		{"unrelated", "fallback"},
	}
	for _, tt := range tests {
		resp, err := m.generate(context.Background(), userRequest(tt.input), nil)
		if err != nil {
			t.Fatalf("generate() = %v", err)
		}
		if got := resp.Message.Text(); got != tt.want {
			t.Errorf("generate(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestMockLLMToolResponseConsumedOnce(t *testing.T) {
	m := NewMockLLM("done")
	m.AddToolResponse("investigate", []*ai.ToolRequest{
		{Name: "vector_search", Input: map[string]any{"query": "x"}},
	}, "calling tools")

	resp, err := m.generate(context.Background(), userRequest("please investigate"), nil)
	if err != nil {
		t.Fatalf("generate() = %v", err)
	}
	var toolParts int
	for _, p := range resp.Message.Content {
		if p.Kind == ai.PartToolRequest {
			toolParts++
		}
	}
	if toolParts != 1 {
		t.Fatalf("tool parts = %d, want 1", toolParts)
	}

	// Second matching call falls through to the fallback: the rule is spent.
	resp, err = m.generate(context.Background(), userRequest("please investigate"), nil)
	if err != nil {
		t.Fatalf("generate() = %v", err)
	}
	for _, p := range resp.Message.Content {
		if p.Kind == ai.PartToolRequest {
			t.Fatal("consumed tool rule fired twice")
		}
	}
	if resp.Message.Text() != "done" {
		t.Errorf("second response = %q, want fallback", resp.Message.Text())
	}
}

func TestMockLLMRecordsCalls(t *testing.T) {
	m := NewMockLLM("ok")
	if _, err := m.generate(context.Background(), userRequest("first"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.generate(context.Background(), userRequest("second"), nil); err != nil {
		t.Fatal(err)
	}
	calls := m.Calls()
	if len(calls) != 2 || calls[0].UserMessage != "first" || calls[1].UserMessage != "second" {
		t.Fatalf("Calls() = %+v", calls)
	}
}

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder(8)

	resp1, err := e.Embed(context.Background(), &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText("stable text", nil)},
	})
	if err != nil {
		t.Fatalf("Embed() = %v", err)
	}
	resp2, _ := e.Embed(context.Background(), &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText("stable text", nil)},
	})

	v1, v2 := resp1.Embeddings[0].Embedding, resp2.Embeddings[0].Embedding
	if len(v1) != 8 {
		t.Fatalf("dimension = %d, want 8", len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatal("same text embedded differently")
		}
	}
}

func TestMockEmbedderPinnedVector(t *testing.T) {
	e := NewMockEmbedder(3)
	e.SetVector("pinned", []float32{1, 0, 0})

	resp, err := e.Embed(context.Background(), &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText("pinned", nil)},
	})
	if err != nil {
		t.Fatalf("Embed() = %v", err)
	}
	got := resp.Embeddings[0].Embedding
	if got[0] != 1 || got[1] != 0 || got[2] != 0 {
		t.Fatalf("pinned vector = %v", got)
	}
}
