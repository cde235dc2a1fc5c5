package kb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/eddalabs/edda/internal/embed"
	"github.com/eddalabs/edda/internal/memo"
	"github.com/eddalabs/edda/internal/search"
)

// toolTopK bounds read-tool result sizes; the agent inspects, it does not
// retrieve for a user.
const toolTopK = 10

// toolThreshold is deliberately looser than the retrieval default so the
// agent also sees partially related memos it may need to reconcile.
const toolThreshold = 0.9

// scopeKey carries the per-run scope through the generate context into tool
// closures. Tools are registered once per process; scope cannot live in the
// closure.
type scopeKey struct{}

// Scope pins tool calls to one project and hides the memo under review from
// its own searches.
type Scope struct {
	ProjectID  uuid.UUID
	IncomingID uuid.UUID
}

// WithScope returns a context carrying the tool scope.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func scopeFrom(ctx context.Context) (Scope, error) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok {
		return Scope{}, errors.New("tool called without scope")
	}
	return s, nil
}

// scopedMemo resolves a memo id from tool input and enforces that it belongs
// to the scoped project. A memo from another project reads as not found.
func scopedMemo(ctx context.Context, store *memo.Store, scope Scope, rawID string) (*memo.Memo, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid memo_uuid: %w", err)
	}
	m, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.ProjectID != scope.ProjectID {
		return nil, fmt.Errorf("%w: %s", memo.ErrMemoNotFound, id)
	}
	return m, nil
}

// Toolset holds the read tools the consistency agent may call.
type Toolset struct {
	refs []ai.ToolRef
}

// Refs returns the tool references for ai.WithTools.
func (t *Toolset) Refs() []ai.ToolRef { return t.refs }

// RegisterTools defines the agent's read tools on the Genkit registry.
// Call once per process.
func RegisterTools(g *genkit.Genkit, store *memo.Store, engine *search.Engine, embedder *embed.Client) *Toolset {
	titlesByTag := genkit.DefineTool(
		g, "get_memo_titles_by_tag", "List titles and ids of memos carrying a tag",
		func(ctx *ai.ToolContext, input struct {
			Tag string `json:"tag" jsonschema_description:"Exact tag to look up"`
		},
		) (string, error) {
			scope, err := scopeFrom(ctx)
			if err != nil {
				return "", err
			}
			refs, err := store.TitlesByTag(ctx, scope.ProjectID, input.Tag)
			if err != nil {
				return "", fmt.Errorf("listing titles: %w", err)
			}
			if len(refs) == 0 {
				return "No memos carry this tag.", nil
			}
			var sb strings.Builder
			for _, r := range refs {
				fmt.Fprintf(&sb, "%s: %s\n", r.ID, r.Title)
			}
			return sb.String(), nil
		},
	)

	metadata := genkit.DefineTool(
		g, "get_memo_metadata", "Get title, source, and tags of a memo by id",
		func(ctx *ai.ToolContext, input struct {
			MemoUUID string `json:"memo_uuid" jsonschema_description:"Memo id"`
		},
		) (string, error) {
			scope, err := scopeFrom(ctx)
			if err != nil {
				return "", err
			}
			m, err := scopedMemo(ctx, store, scope, input.MemoUUID)
			if err != nil {
				return "", err
			}
			tags, err := store.Tags(ctx, m.ID)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Title: %s\nSource: %s\nTags: %s\nCreated: %s",
				m.Title, m.Source, strings.Join(tags, ", "), m.CreatedAt.Format("2006-01-02")), nil
		},
	)

	content := genkit.DefineTool(
		g, "get_memo_content", "Get the full content of a memo by id",
		func(ctx *ai.ToolContext, input struct {
			MemoUUID string `json:"memo_uuid" jsonschema_description:"Memo id"`
		},
		) (string, error) {
			scope, err := scopeFrom(ctx)
			if err != nil {
				return "", err
			}
			m, err := scopedMemo(ctx, store, scope, input.MemoUUID)
			if err != nil {
				return "", err
			}
			return store.Content(ctx, m.ID)
		},
	)

	keywordSearch := genkit.DefineTool(
		g, "keyword_search", "Find chunks whose extracted keywords exactly match",
		func(ctx *ai.ToolContext, input struct {
			Keywords []string `json:"keywords" jsonschema_description:"Keywords to match exactly"`
		},
		) (string, error) {
			scope, err := scopeFrom(ctx)
			if err != nil {
				return "", err
			}
			matches, err := store.KeywordSearch(ctx, scope.ProjectID, input.Keywords, toolTopK)
			if err != nil {
				return "", err
			}
			return formatChunkHits(matchesToHits(matches, scope.IncomingID)), nil
		},
	)

	summarySearch := genkit.DefineTool(
		g, "summary_vector_search", "Find memos whose summary is semantically similar to a query",
		func(ctx *ai.ToolContext, input struct {
			Query string `json:"query" jsonschema_description:"Natural language query"`
		},
		) (string, error) {
			scope, err := scopeFrom(ctx)
			if err != nil {
				return "", err
			}
			vec, err := embedder.Embed(ctx, input.Query, embed.UsageSearch)
			if err != nil {
				return "", err
			}
			matches, err := engine.SearchSummaries(ctx, scope.ProjectID, vec, search.Options{
				TopK: toolTopK, Threshold: toolThreshold,
			})
			if err != nil {
				return "", err
			}
			var sb strings.Builder
			for _, m := range matches {
				if m.MemoID == scope.IncomingID {
					continue
				}
				fmt.Fprintf(&sb, "%s (%s): %s\n\n", m.MemoID, m.Title, m.Summary)
			}
			if sb.Len() == 0 {
				return "No similar memos found.", nil
			}
			return sb.String(), nil
		},
	)

	vectorSearch := genkit.DefineTool(
		g, "vector_search", "Find chunks semantically similar to a query",
		func(ctx *ai.ToolContext, input struct {
			Query string `json:"query" jsonschema_description:"Natural language query"`
		},
		) (string, error) {
			scope, err := scopeFrom(ctx)
			if err != nil {
				return "", err
			}
			vec, err := embedder.Embed(ctx, input.Query, embed.UsageSearch)
			if err != nil {
				return "", err
			}
			matches, err := engine.SearchChunks(ctx, scope.ProjectID, vec, search.Options{
				TopK: toolTopK, Threshold: toolThreshold,
			})
			if err != nil {
				return "", err
			}
			hits := make([]chunkHit, 0, len(matches))
			for _, m := range matches {
				hits = append(hits, chunkHit{MemoID: m.MemoID, Title: m.Title, Content: m.Content})
			}
			return formatChunkHits(filterHits(hits, scope.IncomingID)), nil
		},
	)

	return &Toolset{refs: []ai.ToolRef{
		titlesByTag, metadata, content, keywordSearch, summarySearch, vectorSearch,
	}}
}

type chunkHit struct {
	MemoID  uuid.UUID
	Title   string
	Content string
}

func matchesToHits(matches []memo.KeywordMatch, incoming uuid.UUID) []chunkHit {
	hits := make([]chunkHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, chunkHit{MemoID: m.MemoID, Title: m.Title, Content: m.Content})
	}
	return filterHits(hits, incoming)
}

func filterHits(hits []chunkHit, incoming uuid.UUID) []chunkHit {
	out := hits[:0]
	for _, h := range hits {
		if h.MemoID != incoming {
			out = append(out, h)
		}
	}
	return out
}

func formatChunkHits(hits []chunkHit) string {
	if len(hits) == 0 {
		return "No matching chunks found."
	}
	var sb strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&sb, "Memo %s (%s): %s\n\n", h.MemoID, h.Title, h.Content)
	}
	return sb.String()
}
