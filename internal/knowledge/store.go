// Package knowledge stores the support knowledge base as embedded text
// snippets in PostgreSQL and retrieves the most relevant ones for a query by
// cosine similarity.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors for knowledge operations.
var (
	// ErrEmptyContent indicates an attempt to index blank text.
	ErrEmptyContent = errors.New("empty snippet content")

	// ErrDataInconsistency indicates the embedding backend returned a vector
	// count that does not match the submitted texts.
	ErrDataInconsistency = errors.New("embedding count does not match input count")
)

// Defaults applied when the caller does not configure search parameters.
const (
	DefaultSearchLimit         = 8
	DefaultSimilarityThreshold = 0.7
)

// Embedder produces embedding vectors for text. Satisfied by
// *llm.EmbeddingClient.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store manages the snippet index.
type Store struct {
	querier   Querier
	pool      *pgxpool.Pool
	embedder  Embedder
	limit     int
	threshold float64
	logger    *slog.Logger
}

// New creates a knowledge store. The pool may be nil in tests, in which case
// ReplaceAll runs through the querier without a transaction.
func New(querier Querier, pool *pgxpool.Pool, embedder Embedder, limit int, threshold float64, logger *slog.Logger) *Store {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		querier:   querier,
		pool:      pool,
		embedder:  embedder,
		limit:     limit,
		threshold: threshold,
		logger:    logger,
	}
}

// Search retrieves the snippets most similar to the query, ordered by
// descending similarity. A blank query or an empty index returns no results
// without calling the embedding backend.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := searchConfig{limit: s.limit, threshold: s.threshold}
	for _, opt := range opts {
		opt(&cfg)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	count, err := s.querier.CountSnippets(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.querier.SearchSnippets(ctx, embedding, cfg.limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		sim := similarity(h.Distance)
		if sim < cfg.threshold {
			continue
		}
		results = append(results, Result{Snippet: h.Snippet, Similarity: sim})
	}

	// The normalization is not monotonic in raw distance across its bands,
	// so re-sort by the final score.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	s.logger.Debug("knowledge search",
		"candidates", len(hits),
		"results", len(results),
		"threshold", cfg.threshold)
	return results, nil
}

// similarity maps a cosine distance to a [0, 1] score. Distances above 1
// are compressed instead of clamped to zero so weak matches still order
// sensibly, and anything beyond the cosine range decays smoothly.
func similarity(distance float64) float64 {
	switch {
	case distance <= 1:
		return 1 - distance
	case distance <= 2:
		return 1 - distance/2
	default:
		return 1 / (1 + distance)
	}
}

// AddDocument embeds a single piece of text and indexes it. Returns the id of
// the new snippet.
func (s *Store) AddDocument(ctx context.Context, content, sourceFile string, lineNumber int) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}

	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embedding document: %w", err)
	}

	id := uuid.NewString()
	err = s.querier.InsertSnippet(ctx, InsertSnippetParams{
		ID:         id,
		Content:    content,
		SourceFile: sourceFile,
		LineNumber: lineNumber,
		Embedding:  embedding,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Count returns the number of indexed snippets.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.querier.CountSnippets(ctx)
}

// FileHash returns the recorded content hash for an indexed file, or the
// empty string if the file has never been indexed.
func (s *Store) FileHash(ctx context.Context, path string) (string, error) {
	return s.querier.GetFileHash(ctx, path)
}

// ReplaceAll atomically swaps the entire index for the given snippets and
// file hashes. Readers either see the old index or the new one, never a
// partially rebuilt mix.
func (s *Store) ReplaceAll(ctx context.Context, snippets []InsertSnippetParams, fileHashes map[string]string) error {
	if s.pool == nil {
		return s.replaceAll(ctx, s.querier, snippets, fileHashes)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.replaceAll(ctx, NewPGQuerier(tx), snippets, fileHashes); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) replaceAll(ctx context.Context, q Querier, snippets []InsertSnippetParams, fileHashes map[string]string) error {
	if err := q.DeleteAllSnippets(ctx); err != nil {
		return err
	}
	if err := q.DeleteAllFileHashes(ctx); err != nil {
		return err
	}

	for _, snip := range snippets {
		if snip.ID == "" {
			snip.ID = uuid.NewString()
		}
		if err := q.InsertSnippet(ctx, snip); err != nil {
			return err
		}
	}
	for path, hash := range fileHashes {
		if err := q.UpsertFileHash(ctx, path, hash); err != nil {
			return err
		}
	}

	s.logger.Info("knowledge index replaced",
		"snippets", len(snippets),
		"files", len(fileHashes))
	return nil
}
