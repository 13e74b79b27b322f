package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// minLineLength is the shortest trimmed line worth indexing. Shorter lines
// are headings, separators, or noise that pollute retrieval.
const minLineLength = 10

// IndexStats summarizes one indexing run.
type IndexStats struct {
	Files    int
	Snippets int
	Skipped  bool
}

// Indexer builds the snippet index from a directory of plain-text knowledge
// files. One line of text becomes one snippet, so retrieval hits stay small
// and specific.
type Indexer struct {
	store    *Store
	embedder Embedder
	dir      string

	// excludeBase is the base name of the promotions file, which is injected
	// into every prompt directly and must not also surface through retrieval.
	excludeBase string

	logger *slog.Logger

	mu sync.Mutex
}

// NewIndexer creates an indexer over the given knowledge directory.
func NewIndexer(store *Store, embedder Embedder, dir, excludeFile string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		store:       store,
		embedder:    embedder,
		dir:         dir,
		excludeBase: filepath.Base(excludeFile),
		logger:      logger,
	}
}

// IndexCorpus scans the knowledge directory and rebuilds the index when any
// file changed since the last run, or unconditionally when force is set. The
// rebuild is atomic: the old index stays live until the new one commits.
// Concurrent calls are serialized. A missing directory is a no-op.
func (ix *Indexer) IndexCorpus(ctx context.Context, force bool) (IndexStats, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, err := os.Stat(ix.dir); errors.Is(err, fs.ErrNotExist) {
		ix.logger.Warn("knowledge directory missing, skipping index", "dir", ix.dir)
		return IndexStats{Skipped: true}, nil
	}

	files, err := ix.listFiles()
	if err != nil {
		return IndexStats{}, err
	}

	changed := force
	contents := make(map[string]string, len(files))
	hashes := make(map[string]string, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return IndexStats{}, fmt.Errorf("reading knowledge file %s: %w", path, err)
		}
		sum := sha256.Sum256(data)
		hash := hex.EncodeToString(sum[:])
		contents[path] = string(data)
		hashes[path] = hash

		if !changed {
			stored, err := ix.store.FileHash(ctx, path)
			if err != nil {
				return IndexStats{}, err
			}
			if stored != hash {
				changed = true
			}
		}
	}

	if !changed {
		count, err := ix.store.Count(ctx)
		if err != nil {
			return IndexStats{}, err
		}
		// A populated index with no changed files needs no work; an empty
		// one still has to be built.
		if count > 0 {
			ix.logger.Debug("knowledge corpus unchanged, skipping rebuild", "files", len(files))
			return IndexStats{Files: len(files), Skipped: true}, nil
		}
	}

	var texts []string
	var params []InsertSnippetParams
	for _, path := range files {
		for lineNo, line := range splitLines(contents[path]) {
			line = strings.TrimSpace(line)
			if utf8.RuneCountInString(line) < minLineLength {
				continue
			}
			texts = append(texts, line)
			params = append(params, InsertSnippetParams{
				Content:    line,
				SourceFile: path,
				LineNumber: lineNo + 1,
			})
		}
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return IndexStats{}, fmt.Errorf("embedding corpus: %w", err)
	}
	if len(vectors) != len(texts) {
		return IndexStats{}, fmt.Errorf("%w: %d vectors for %d texts",
			ErrDataInconsistency, len(vectors), len(texts))
	}
	for i := range params {
		params[i].Embedding = vectors[i]
	}

	if err := ix.store.ReplaceAll(ctx, params, hashes); err != nil {
		return IndexStats{}, err
	}

	ix.logger.Info("knowledge corpus indexed",
		"files", len(files),
		"snippets", len(params),
		"forced", force)
	return IndexStats{Files: len(files), Snippets: len(params)}, nil
}

// listFiles returns the indexable .txt files under the knowledge directory,
// sorted for deterministic snippet order.
func (ix *Indexer) listFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(ix.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".txt" {
			return nil
		}
		if ix.excludeBase != "" && filepath.Base(path) == ix.excludeBase {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking knowledge directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}
