// Package memo stores knowledge base entries and their derived artifacts.
//
// A memo is the unit of knowledge: raw content plus title, source, tags, and
// client metadata. Processing derives chunks (with embeddings and keywords),
// a summary (with its own embedding), and tags. A memo stays pending until
// the consistency agent decides its fate; pending and archived memos are
// invisible to retrieval.
package memo

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors.
var (
	ErrMemoNotFound = errors.New("memo not found")
	ErrEmptyContent = errors.New("memo content is empty")
	ErrEmptyTitle   = errors.New("memo title is empty")
)

// Memo is a knowledge base entry. Content lives in a separate table and is
// loaded on demand via Store.Content.
type Memo struct {
	ID                uuid.UUID
	ProjectID         uuid.UUID
	Title             string
	Source            string
	ClientReferenceID *string
	ContentHash       string
	Metadata          map[string]any
	Pending           bool
	Archived          bool
	Failed            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewMemo carries the fields needed to insert a memo.
type NewMemo struct {
	ProjectID         uuid.UUID
	Title             string
	Source            string
	ClientReferenceID *string
	Metadata          map[string]any
	Content           string
}

func (n NewMemo) validate() error {
	if n.Title == "" {
		return ErrEmptyTitle
	}
	if n.Content == "" {
		return ErrEmptyContent
	}
	return nil
}

// Chunk is one retrieval unit derived from memo content.
type Chunk struct {
	Index     int
	Content   string
	Embedding []float32
	Keywords  []string
}

// Derived bundles everything processing produces for a memo.
type Derived struct {
	Chunks           []Chunk
	Summary          string
	SummaryEmbedding []float32
	Tags             []string
}

// TitleRef pairs a memo id with its title, for tag-scoped listings.
type TitleRef struct {
	ID    uuid.UUID
	Title string
}

// KeywordMatch is a chunk found through exact keyword lookup.
type KeywordMatch struct {
	ChunkID uuid.UUID
	MemoID  uuid.UUID
	Title   string
	Content string
}

// HydratedChunk carries the memo-level context retrieval attaches to a chunk
// before reranking.
type HydratedChunk struct {
	MemoID  uuid.UUID
	Title   string
	Summary string
	Content string
}

// Hash returns the canonical content hash used for exact-duplicate detection.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
