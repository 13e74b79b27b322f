package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DBTX is the subset of pgx operations the querier needs. Both *pgxpool.Pool
// and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InsertSnippetParams are the fields written for a new snippet.
type InsertSnippetParams struct {
	ID         string
	Content    string
	SourceFile string
	LineNumber int
	Embedding  []float32
}

// SnippetDistance is a search hit before distance normalization.
type SnippetDistance struct {
	Snippet  Snippet
	Distance float64
}

// Querier defines the vector-store operations the knowledge Store depends on.
type Querier interface {
	InsertSnippet(ctx context.Context, arg InsertSnippetParams) error

	// SearchSnippets returns up to limit snippets ordered by ascending cosine
	// distance to the query embedding.
	SearchSnippets(ctx context.Context, embedding []float32, limit int) ([]SnippetDistance, error)

	CountSnippets(ctx context.Context) (int64, error)
	DeleteAllSnippets(ctx context.Context) error

	GetFileHash(ctx context.Context, path string) (string, error)
	UpsertFileHash(ctx context.Context, path, hash string) error
	DeleteAllFileHashes(ctx context.Context) error
}

// PGQuerier implements Querier over PostgreSQL with pgvector.
type PGQuerier struct {
	db DBTX
}

// NewPGQuerier creates a querier over the given connection source.
func NewPGQuerier(db DBTX) *PGQuerier {
	return &PGQuerier{db: db}
}

func (q *PGQuerier) InsertSnippet(ctx context.Context, arg InsertSnippetParams) error {
	const sql = `
		INSERT INTO knowledge_snippets (id, content, source_file, line_number, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := q.db.Exec(ctx, sql,
		arg.ID,
		arg.Content,
		arg.SourceFile,
		arg.LineNumber,
		pgvector.NewVector(arg.Embedding),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting snippet: %w", err)
	}
	return nil
}

func (q *PGQuerier) SearchSnippets(ctx context.Context, embedding []float32, limit int) ([]SnippetDistance, error) {
	const sql = `
		SELECT id, content, source_file, line_number, created_at,
		       embedding <=> $1 AS distance
		FROM knowledge_snippets
		ORDER BY distance
		LIMIT $2`

	rows, err := q.db.Query(ctx, sql, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("searching snippets: %w", err)
	}
	defer rows.Close()

	var hits []SnippetDistance
	for rows.Next() {
		var h SnippetDistance
		if err := rows.Scan(&h.Snippet.ID, &h.Snippet.Content, &h.Snippet.SourceFile,
			&h.Snippet.LineNumber, &h.Snippet.CreatedAt, &h.Distance); err != nil {
			return nil, fmt.Errorf("scanning snippet: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading snippets: %w", err)
	}
	return hits, nil
}

func (q *PGQuerier) CountSnippets(ctx context.Context) (int64, error) {
	var count int64
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_snippets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting snippets: %w", err)
	}
	return count, nil
}

func (q *PGQuerier) DeleteAllSnippets(ctx context.Context) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM knowledge_snippets`); err != nil {
		return fmt.Errorf("deleting snippets: %w", err)
	}
	return nil
}

func (q *PGQuerier) GetFileHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := q.db.QueryRow(ctx,
		`SELECT content_hash FROM knowledge_files WHERE path = $1`, path).Scan(&hash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("getting file hash: %w", err)
	}
	return hash, nil
}

func (q *PGQuerier) UpsertFileHash(ctx context.Context, path, hash string) error {
	const sql = `
		INSERT INTO knowledge_files (path, content_hash, indexed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE
		SET content_hash = EXCLUDED.content_hash, indexed_at = now()`

	if _, err := q.db.Exec(ctx, sql, path, hash); err != nil {
		return fmt.Errorf("upserting file hash: %w", err)
	}
	return nil
}

func (q *PGQuerier) DeleteAllFileHashes(ctx context.Context) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM knowledge_files`); err != nil {
		return fmt.Errorf("deleting file hashes: %w", err)
	}
	return nil
}
