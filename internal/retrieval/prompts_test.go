package retrieval

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/eddalabs/edda/internal/rerank"
	"github.com/eddalabs/edda/internal/search"
)

func TestFormatResults(t *testing.T) {
	results := []Result{
		{Text: "first chunk"},
		{Text: "second chunk"},
	}
	got := formatResults(results)
	want := "Result 1: first chunk\n\nResult 2: second chunk\n\n"
	if got != want {
		t.Fatalf("formatResults() = %q, want %q", got, want)
	}
}

func TestFormatResultsIdempotent(t *testing.T) {
	results := []Result{
		{Text: "alpha"},
		{Text: "beta"},
		{Text: "gamma"},
	}
	first := formatResults(results)
	second := formatResults(results)
	if first != second {
		t.Fatalf("formatResults not deterministic:\n%q\n%q", first, second)
	}
}

// Citations in generated answers use [[i]] markers keyed to result numbers,
// so "Result i" in the prompt must always refer to Results[i-1].
func TestFormatResultsNumberingMatchesResultOrder(t *testing.T) {
	results := []Result{
		{MemoID: uuid.New(), Text: "origin of the name"},
		{MemoID: uuid.New(), Text: "release history"},
		{MemoID: uuid.New(), Text: "licensing terms"},
	}
	prompt := formatResults(results)
	for i, r := range results {
		want := fmt.Sprintf("Result %d: %s", i+1, r.Text)
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Count(prompt, "Result ") != len(results) {
		t.Errorf("prompt has %d result markers, want %d", strings.Count(prompt, "Result "), len(results))
	}
}

func TestFormatResultsEmpty(t *testing.T) {
	if got := formatResults(nil); got != "" {
		t.Fatalf("formatResults(nil) = %q, want empty", got)
	}
}

func TestSystemPromptVariants(t *testing.T) {
	plain := systemPrompt(false, "")
	cited := systemPrompt(true, "")
	if plain == cited {
		t.Error("citation variant should differ from plain variant")
	}
	if !strings.Contains(cited, "[[N]]") {
		t.Error("citation prompt does not require double-bracket markers")
	}
	if strings.Contains(plain, "citation") {
		t.Error("plain prompt mentions citations")
	}
}

func TestSystemPromptAppendsClientPrompt(t *testing.T) {
	client := "Answer in French."
	got := systemPrompt(false, client)
	if !strings.HasSuffix(got, client) {
		t.Errorf("client prompt not appended: %q", got)
	}
	if !strings.HasPrefix(got, answerSystemPrompt) {
		t.Error("client prompt replaced the built-in instructions")
	}
}

func TestHydratedText(t *testing.T) {
	got := hydratedText("My Title", "A summary.", "The chunk.")
	want := "Title: My Title\n\nFull content summary: A summary.\n\nChunk content: The chunk."
	if got != want {
		t.Fatalf("hydratedText() = %q, want %q", got, want)
	}
}

func TestFromDistanceOrder(t *testing.T) {
	matches := []search.ChunkMatch{
		{ChunkID: uuid.New(), Content: "near", Distance: 0.2},
		{ChunkID: uuid.New(), Content: "mid", Distance: 0.5},
		{ChunkID: uuid.New(), Content: "far", Distance: 0.8},
	}
	results := fromDistanceOrder(matches, 2)
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2", len(results))
	}
	if results[0].Text != "near" || results[1].Text != "mid" {
		t.Errorf("order changed: %v", results)
	}
	if results[0].Score != rerank.FromDistance(0.2) {
		t.Errorf("score = %g, want distance-derived", results[0].Score)
	}
}
