package memo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// memoCols is the standard SELECT column list for scanMemo.
const memoCols = `id, project_id, title, source, client_reference_id,
	content_hash, metadata, pending, archived, failed, created_at, updated_at`

const insertMemoSQL = `INSERT INTO memos (project_id, title, source, client_reference_id, content_hash, metadata)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + memoCols

const insertContentSQL = `INSERT INTO memo_contents (memo_id, content) VALUES ($1, $2)
	ON CONFLICT (memo_id) DO UPDATE SET content = EXCLUDED.content`

// Store persists memos and their derived artifacts in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a memo Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Insert creates a pending memo together with its content, atomically.
func (s *Store) Insert(ctx context.Context, n NewMemo) (*Memo, error) {
	if err := n.validate(); err != nil {
		return nil, err
	}
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	m, err := scanMemo(tx.QueryRow(ctx, insertMemoSQL,
		n.ProjectID, n.Title, n.Source, n.ClientReferenceID, Hash(n.Content), metadata))
	if err != nil {
		return nil, fmt.Errorf("inserting memo: %w", err)
	}
	if _, err := tx.Exec(ctx, insertContentSQL, m.ID, n.Content); err != nil {
		return nil, fmt.Errorf("inserting memo content: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing memo insert: %w", err)
	}
	return m, nil
}

// Get returns memo metadata by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Memo, error) {
	m, err := scanMemo(s.pool.QueryRow(ctx,
		`SELECT `+memoCols+` FROM memos WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMemoNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting memo: %w", err)
	}
	return m, nil
}

// Content returns the raw content of a memo.
func (s *Store) Content(ctx context.Context, id uuid.UUID) (string, error) {
	var content string
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM memo_contents WHERE memo_id = $1`, id).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrMemoNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("getting memo content: %w", err)
	}
	return content, nil
}

// FindByContentHash looks up a non-archived memo with identical content in
// the project. Returns ErrMemoNotFound when no such memo exists.
func (s *Store) FindByContentHash(ctx context.Context, projectID uuid.UUID, hash string) (*Memo, error) {
	m, err := scanMemo(s.pool.QueryRow(ctx,
		`SELECT `+memoCols+` FROM memos
		 WHERE project_id = $1 AND content_hash = $2 AND NOT archived AND NOT pending
		 ORDER BY created_at
		 LIMIT 1`, projectID, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMemoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding memo by content hash: %w", err)
	}
	return m, nil
}

// Tags returns the tags of a memo in insertion order.
func (s *Store) Tags(ctx context.Context, id uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tag FROM memo_tags WHERE memo_id = $1 ORDER BY tag`, id)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// ListProjectTags returns the distinct tags in use across a project's live
// memos, alphabetically.
func (s *Store) ListProjectTags(ctx context.Context, projectID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT t.tag FROM memo_tags t
		 JOIN memos m ON m.id = t.memo_id
		 WHERE m.project_id = $1 AND NOT m.pending AND NOT m.archived
		 ORDER BY t.tag`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing project tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scanning project tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// Summary returns the stored summary of a memo, or "" when none exists yet.
func (s *Store) Summary(ctx context.Context, id uuid.UUID) (string, error) {
	var summary string
	err := s.pool.QueryRow(ctx,
		`SELECT summary FROM memo_summaries WHERE memo_id = $1`, id).Scan(&summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting memo summary: %w", err)
	}
	return summary, nil
}

// TitlesByTag lists processed memos in the project carrying the given tag.
func (s *Store) TitlesByTag(ctx context.Context, projectID uuid.UUID, tag string) ([]TitleRef, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.title
		 FROM memos m
		 JOIN memo_tags t ON t.memo_id = m.id
		 WHERE m.project_id = $1 AND t.tag = $2 AND NOT m.pending AND NOT m.archived
		 ORDER BY m.created_at`, projectID, tag)
	if err != nil {
		return nil, fmt.Errorf("listing titles by tag: %w", err)
	}
	defer rows.Close()

	var refs []TitleRef
	for rows.Next() {
		var ref TitleRef
		if err := rows.Scan(&ref.ID, &ref.Title); err != nil {
			return nil, fmt.Errorf("scanning title: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// KeywordSearch finds chunks whose extracted keywords exactly match any of
// the given keywords, scoped to processed memos in the project.
func (s *Store) KeywordSearch(ctx context.Context, projectID uuid.UUID, keywords []string, limit int) ([]KeywordMatch, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT c.id, c.memo_id, m.title, c.content
		 FROM memo_chunks c
		 JOIN memo_chunk_keywords k ON k.chunk_id = c.id
		 JOIN memos m ON m.id = c.memo_id
		 WHERE m.project_id = $1 AND NOT m.pending AND NOT m.archived
		   AND k.keyword = ANY($2)
		 LIMIT $3`, projectID, keywords, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var matches []KeywordMatch
	for rows.Next() {
		var km KeywordMatch
		if err := rows.Scan(&km.ChunkID, &km.MemoID, &km.Title, &km.Content); err != nil {
			return nil, fmt.Errorf("scanning keyword match: %w", err)
		}
		matches = append(matches, km)
	}
	return matches, rows.Err()
}

// Hydrate loads memo-level context (title, summary) plus chunk content for
// each chunk id. Chunks whose memo disappeared are omitted.
func (s *Store) Hydrate(ctx context.Context, chunkIDs []uuid.UUID) (map[uuid.UUID]HydratedChunk, error) {
	if len(chunkIDs) == 0 {
		return map[uuid.UUID]HydratedChunk{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.memo_id, m.title, COALESCE(s.summary, ''), c.content
		 FROM memo_chunks c
		 JOIN memos m ON m.id = c.memo_id
		 LEFT JOIN memo_summaries s ON s.memo_id = m.id
		 WHERE c.id = ANY($1)`, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrating chunks: %w", err)
	}
	defer rows.Close()

	hydrated := make(map[uuid.UUID]HydratedChunk, len(chunkIDs))
	for rows.Next() {
		var chunkID uuid.UUID
		var hc HydratedChunk
		if err := rows.Scan(&chunkID, &hc.MemoID, &hc.Title, &hc.Summary, &hc.Content); err != nil {
			return nil, fmt.Errorf("scanning hydrated chunk: %w", err)
		}
		hydrated[chunkID] = hc
	}
	return hydrated, rows.Err()
}

// SaveDerived replaces all derived artifacts of a memo in one transaction:
// chunks with embeddings and keywords, the summary, and tags.
func (s *Store) SaveDerived(ctx context.Context, id uuid.UUID, d Derived) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	for _, table := range []string{"memo_chunks", "memo_summaries", "memo_tags"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE memo_id = $1`, id); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for _, c := range d.Chunks {
		var chunkID uuid.UUID
		err := tx.QueryRow(ctx,
			`INSERT INTO memo_chunks (memo_id, chunk_index, content, embedding)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			id, c.Index, c.Content, pgvector.NewVector(c.Embedding)).Scan(&chunkID)
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Index, err)
		}
		for _, kw := range c.Keywords {
			if _, err := tx.Exec(ctx,
				`INSERT INTO memo_chunk_keywords (chunk_id, keyword) VALUES ($1, $2)
				 ON CONFLICT DO NOTHING`, chunkID, kw); err != nil {
				return fmt.Errorf("inserting keyword: %w", err)
			}
		}
	}

	if d.Summary != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO memo_summaries (memo_id, summary, embedding) VALUES ($1, $2, $3)`,
			id, d.Summary, pgvector.NewVector(d.SummaryEmbedding)); err != nil {
			return fmt.Errorf("inserting summary: %w", err)
		}
	}

	for _, tag := range d.Tags {
		if _, err := tx.Exec(ctx,
			`INSERT INTO memo_tags (memo_id, tag) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, tag); err != nil {
			return fmt.Errorf("inserting tag: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing derived artifacts: %w", err)
	}
	return nil
}

// UpdateContent swaps a memo's content and hash and flips it back to pending
// so processing regenerates derived artifacts.
func (s *Store) UpdateContent(ctx context.Context, id uuid.UUID, content string) error {
	if content == "" {
		return ErrEmptyContent
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	tag, err := tx.Exec(ctx,
		`UPDATE memos SET content_hash = $2, pending = TRUE, failed = FALSE, updated_at = now()
		 WHERE id = $1`, id, Hash(content))
	if err != nil {
		return fmt.Errorf("updating memo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMemoNotFound, id)
	}
	if _, err := tx.Exec(ctx, insertContentSQL, id, content); err != nil {
		return fmt.Errorf("updating memo content: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing content update: %w", err)
	}
	return nil
}

// MarkProcessed clears the pending flag, making the memo visible to retrieval.
func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return s.setFlags(ctx, id, `pending = FALSE, failed = FALSE`)
}

// MarkFailed records a processing failure. The memo stays pending.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return s.setFlags(ctx, id, `failed = TRUE`)
}

// Archive hides a memo from retrieval without deleting it.
func (s *Store) Archive(ctx context.Context, id uuid.UUID) error {
	return s.setFlags(ctx, id, `archived = TRUE`)
}

func (s *Store) setFlags(ctx context.Context, id uuid.UUID, set string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE memos SET `+set+`, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("updating memo flags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMemoNotFound, id)
	}
	return nil
}

// Delete removes a memo and, via cascading constraints, its content, chunks,
// keywords, summary, and tags.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting memo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMemoNotFound, id)
	}
	return nil
}

// Replace atomically deletes oldID and marks newID processed. Used when the
// consistency agent decides an incoming memo supersedes an existing one, so
// readers never observe a state where both or neither are visible.
func (s *Store) Replace(ctx context.Context, oldID, newID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	delTag, err := tx.Exec(ctx, `DELETE FROM memos WHERE id = $1`, oldID)
	if err != nil {
		return fmt.Errorf("deleting superseded memo: %w", err)
	}
	if delTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMemoNotFound, oldID)
	}

	updTag, err := tx.Exec(ctx,
		`UPDATE memos SET pending = FALSE, failed = FALSE, updated_at = now() WHERE id = $1`, newID)
	if err != nil {
		return fmt.Errorf("promoting replacement memo: %w", err)
	}
	if updTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMemoNotFound, newID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing replace: %w", err)
	}
	return nil
}

// rollback is the deferred cleanup for write transactions. ErrTxClosed after
// a successful commit is expected.
func (s *Store) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.logger.Debug("transaction rollback", "error", err)
	}
}

func scanMemo(row pgx.Row) (*Memo, error) {
	var m Memo
	err := row.Scan(&m.ID, &m.ProjectID, &m.Title, &m.Source, &m.ClientReferenceID,
		&m.ContentHash, &m.Metadata, &m.Pending, &m.Archived, &m.Failed,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
