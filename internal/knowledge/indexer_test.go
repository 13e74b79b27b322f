package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ormelin/croupier/internal/log"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func newTestIndexer(t *testing.T, dir string) (*Indexer, *mockQuerier, *mockEmbedder) {
	t.Helper()
	q := newMockQuerier()
	e := &mockEmbedder{}
	s := newTestStore(q, e)
	ix := NewIndexer(s, e, dir, filepath.Join(dir, "promotions.txt"), log.NewNop())
	return ix, q, e
}

func TestIndexCorpusFiltersLines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "faq.txt",
		"Withdrawals are processed within 24 hours.\n"+
			"ok\n"+ // below the length floor
			"   \n"+
			"Deposits require a verified account.\n")
	writeFile(t, dir, "promotions.txt", "Weekend cashback promotion, 10% on all slots.\n")
	writeFile(t, dir, "readme.md", "This markdown file is not part of the knowledge base.\n")

	ix, q, e := newTestIndexer(t, dir)
	stats, err := ix.IndexCorpus(context.Background(), false)
	if err != nil {
		t.Fatalf("IndexCorpus: %v", err)
	}

	if stats.Files != 1 {
		t.Errorf("files: got %d, want 1", stats.Files)
	}
	if stats.Snippets != 2 {
		t.Errorf("snippets: got %d, want 2", stats.Snippets)
	}
	if len(q.snippets) != 2 {
		t.Fatalf("stored snippets: got %d, want 2", len(q.snippets))
	}
	for _, snip := range q.snippets {
		if filepath.Base(snip.SourceFile) == "promotions.txt" {
			t.Error("promotions file must not be indexed")
		}
		if snip.ID == "" || len(snip.Embedding) == 0 {
			t.Errorf("snippet missing id or embedding: %+v", snip)
		}
	}
	if e.batchCalls != 1 {
		t.Errorf("batch embed calls: got %d, want 1", e.batchCalls)
	}
}

func TestIndexCorpusSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "faq.txt", "Support is available around the clock.\n")

	ix, _, e := newTestIndexer(t, dir)
	ctx := context.Background()

	if _, err := ix.IndexCorpus(ctx, false); err != nil {
		t.Fatalf("first IndexCorpus: %v", err)
	}

	stats, err := ix.IndexCorpus(ctx, false)
	if err != nil {
		t.Fatalf("second IndexCorpus: %v", err)
	}
	if !stats.Skipped {
		t.Error("unchanged corpus must skip the rebuild")
	}
	if e.batchCalls != 1 {
		t.Errorf("batch embed calls: got %d, want 1", e.batchCalls)
	}
}

func TestIndexCorpusRebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "faq.txt", "Support is available around the clock.\n")

	ix, q, e := newTestIndexer(t, dir)
	ctx := context.Background()

	if _, err := ix.IndexCorpus(ctx, false); err != nil {
		t.Fatalf("first IndexCorpus: %v", err)
	}

	writeFile(t, dir, "faq.txt",
		"Support is available around the clock.\n"+
			"Live chat responds fastest during evenings.\n")

	stats, err := ix.IndexCorpus(ctx, false)
	if err != nil {
		t.Fatalf("second IndexCorpus: %v", err)
	}
	if stats.Skipped {
		t.Fatal("changed corpus must rebuild")
	}
	if stats.Snippets != 2 {
		t.Errorf("snippets after rebuild: got %d, want 2", stats.Snippets)
	}
	if len(q.snippets) != 2 {
		t.Errorf("stored snippets after rebuild: got %d, want 2", len(q.snippets))
	}
	if e.batchCalls != 2 {
		t.Errorf("batch embed calls: got %d, want 2", e.batchCalls)
	}
}

func TestIndexCorpusForceRebuilds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "faq.txt", "Support is available around the clock.\n")

	ix, _, e := newTestIndexer(t, dir)
	ctx := context.Background()

	if _, err := ix.IndexCorpus(ctx, false); err != nil {
		t.Fatalf("first IndexCorpus: %v", err)
	}

	stats, err := ix.IndexCorpus(ctx, true)
	if err != nil {
		t.Fatalf("forced IndexCorpus: %v", err)
	}
	if stats.Skipped {
		t.Error("forced run must rebuild even when unchanged")
	}
	if e.batchCalls != 2 {
		t.Errorf("batch embed calls: got %d, want 2", e.batchCalls)
	}
}

func TestIndexCorpusMissingDirectory(t *testing.T) {
	ix, _, e := newTestIndexer(t, filepath.Join(t.TempDir(), "nope"))

	stats, err := ix.IndexCorpus(context.Background(), false)
	if err != nil {
		t.Fatalf("IndexCorpus on missing dir: %v", err)
	}
	if !stats.Skipped {
		t.Error("missing directory must be a no-op")
	}
	if e.batchCalls != 0 {
		t.Errorf("batch embed calls: got %d, want 0", e.batchCalls)
	}
}

func TestIndexCorpusEmbeddingMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "faq.txt",
		"Withdrawals are processed within 24 hours.\n"+
			"Deposits require a verified account.\n")

	ix, q, e := newTestIndexer(t, dir)
	e.shortBatch = true

	_, err := ix.IndexCorpus(context.Background(), false)
	if !errors.Is(err, ErrDataInconsistency) {
		t.Fatalf("mismatched vectors: got %v, want ErrDataInconsistency", err)
	}
	if len(q.snippets) != 0 {
		t.Errorf("snippets stored despite mismatch: %d", len(q.snippets))
	}
}
