package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// fakeEmbedder returns a fixed vector and records the last request.
type fakeEmbedder struct {
	vector  []float32
	err     error
	lastReq *ai.EmbedRequest
}

func (f *fakeEmbedder) Name() string            { return "fake-embedder" }
func (f *fakeEmbedder) Register(_ api.Registry) {}

func (f *fakeEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: f.vector}},
	}, nil
}

func TestEmbedExactDimension(t *testing.T) {
	fake := &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3, 0.4}}
	client, err := New(fake, 4, nil, nil)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	vec, err := client.Embed(context.Background(), "hello", UsageStorage)
	if err != nil {
		t.Fatalf("Embed() = %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("len = %d, want 4", len(vec))
	}
}

func TestEmbedPadsShortVector(t *testing.T) {
	fake := &fakeEmbedder{vector: []float32{1, 2}}
	client, _ := New(fake, 5, nil, nil)

	vec, err := client.Embed(context.Background(), "hello", UsageStorage)
	if err != nil {
		t.Fatalf("Embed() = %v", err)
	}
	want := []float32{1, 2, 0, 0, 0}
	for i := range want {
		if vec[i] != want[i] {
			t.Fatalf("vec = %v, want %v", vec, want)
		}
	}
}

func TestEmbedRejectsLongVector(t *testing.T) {
	fake := &fakeEmbedder{vector: []float32{1, 2, 3}}
	client, _ := New(fake, 2, nil, nil)

	if _, err := client.Embed(context.Background(), "hello", UsageStorage); err == nil {
		t.Fatal("Embed() accepted oversized vector")
	}
}

func TestEmbedWrapsProviderFailure(t *testing.T) {
	fake := &fakeEmbedder{err: errors.New("quota exceeded")}
	client, _ := New(fake, 4, nil, nil)

	_, err := client.Embed(context.Background(), "hello", UsageSearch)
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("Embed() = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestEmbedEmptyResponse(t *testing.T) {
	fake := &fakeEmbedder{vector: nil}
	client, _ := New(fake, 4, nil, nil)

	_, err := client.Embed(context.Background(), "hello", UsageStorage)
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("Embed() = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestEmbedTaskHints(t *testing.T) {
	fake := &fakeEmbedder{vector: []float32{1}}
	client, _ := New(fake, 1, nil, nil)

	if _, err := client.Embed(context.Background(), "doc", UsageStorage); err != nil {
		t.Fatalf("Embed() = %v", err)
	}
	opts := fake.lastReq.Options.(*genai.EmbedContentConfig)
	if opts.TaskType != "RETRIEVAL_DOCUMENT" {
		t.Errorf("storage task type = %q", opts.TaskType)
	}
	if opts.OutputDimensionality == nil || *opts.OutputDimensionality != 1 {
		t.Error("output dimensionality not set")
	}

	if _, err := client.Embed(context.Background(), "query", UsageSearch); err != nil {
		t.Fatalf("Embed() = %v", err)
	}
	opts = fake.lastReq.Options.(*genai.EmbedContentConfig)
	if opts.TaskType != "RETRIEVAL_QUERY" {
		t.Errorf("search task type = %q", opts.TaskType)
	}
}

func TestEmbedHonorsCanceledContext(t *testing.T) {
	fake := &fakeEmbedder{vector: []float32{1}}
	// A zero-burst limiter can never admit a request.
	client, _ := New(fake, 1, rate.NewLimiter(rate.Limit(1), 0), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Embed(ctx, "hello", UsageStorage); err == nil {
		t.Fatal("Embed() ignored canceled context")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, 4, nil, nil); err == nil {
		t.Error("New() accepted nil embedder")
	}
	if _, err := New(&fakeEmbedder{}, 0, nil, nil); err == nil {
		t.Error("New() accepted zero dimension")
	}
}
