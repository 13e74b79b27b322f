package knowledge

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ormelin/croupier/internal/log"
)

// mockEmbedder returns fixed-size vectors and counts calls so tests can
// assert the backend is not contacted on short-circuit paths.
type mockEmbedder struct {
	embedCalls int
	batchCalls int
	failWith   error
	// shortBatch drops one vector from batch responses to simulate a
	// misbehaving backend.
	shortBatch bool
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.embedCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	return []float32{1, 0, 0}, nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	n := len(texts)
	if m.shortBatch && n > 0 {
		n--
	}
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = []float32{float32(i), 1, 0}
	}
	return vectors, nil
}

// mockQuerier keeps snippets and file hashes in memory. Search results are
// preloaded by tests rather than computed.
type mockQuerier struct {
	snippets []InsertSnippetParams
	hashes   map[string]string
	hits     []SnippetDistance

	searchCalls    int
	countCalls     int
	deleteAllCalls int
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{hashes: make(map[string]string)}
}

func (m *mockQuerier) InsertSnippet(_ context.Context, arg InsertSnippetParams) error {
	m.snippets = append(m.snippets, arg)
	return nil
}

func (m *mockQuerier) SearchSnippets(_ context.Context, _ []float32, limit int) ([]SnippetDistance, error) {
	m.searchCalls++
	if len(m.hits) > limit {
		return m.hits[:limit], nil
	}
	return m.hits, nil
}

func (m *mockQuerier) CountSnippets(_ context.Context) (int64, error) {
	m.countCalls++
	if len(m.hits) > 0 {
		return int64(len(m.hits)), nil
	}
	return int64(len(m.snippets)), nil
}

func (m *mockQuerier) DeleteAllSnippets(_ context.Context) error {
	m.deleteAllCalls++
	m.snippets = nil
	return nil
}

func (m *mockQuerier) GetFileHash(_ context.Context, path string) (string, error) {
	return m.hashes[path], nil
}

func (m *mockQuerier) UpsertFileHash(_ context.Context, path, hash string) error {
	m.hashes[path] = hash
	return nil
}

func (m *mockQuerier) DeleteAllFileHashes(_ context.Context) error {
	m.hashes = make(map[string]string)
	return nil
}

func newTestStore(q Querier, e Embedder) *Store {
	return New(q, nil, e, 0, 0, log.NewNop())
}

func TestSimilarityBands(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{0.25, 0.75},
		{1, 0},
		{1.2, 0.4},
		{2, 0},
		{3, 0.25},
	}
	for _, tt := range tests {
		if got := similarity(tt.distance); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("similarity(%v): got %v, want %v", tt.distance, got, tt.want)
		}
	}
}

func TestSearchBlankQuerySkipsBackend(t *testing.T) {
	q := newMockQuerier()
	e := &mockEmbedder{}
	s := newTestStore(q, e)

	results, err := s.Search(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("blank query: got %d results, want none", len(results))
	}
	if e.embedCalls != 0 {
		t.Errorf("embed calls for blank query: got %d, want 0", e.embedCalls)
	}
}

func TestSearchEmptyIndexSkipsBackend(t *testing.T) {
	q := newMockQuerier()
	e := &mockEmbedder{}
	s := newTestStore(q, e)

	results, err := s.Search(context.Background(), "withdrawal rules")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("empty index: got %d results, want none", len(results))
	}
	if e.embedCalls != 0 {
		t.Errorf("embed calls for empty index: got %d, want 0", e.embedCalls)
	}
	if q.searchCalls != 0 {
		t.Errorf("search calls for empty index: got %d, want 0", q.searchCalls)
	}
}

func TestSearchFiltersAndSorts(t *testing.T) {
	q := newMockQuerier()
	q.hits = []SnippetDistance{
		{Snippet: Snippet{ID: "exact"}, Distance: 0.05},   // sim 0.95
		{Snippet: Snippet{ID: "weak"}, Distance: 0.9},     // sim 0.10, below threshold
		{Snippet: Snippet{ID: "banded"}, Distance: 1.3},   // sim 0.35, below threshold
		{Snippet: Snippet{ID: "strong"}, Distance: 0.2},   // sim 0.80
		{Snippet: Snippet{ID: "borderline"}, Distance: 1}, // sim 0
	}
	e := &mockEmbedder{}
	s := newTestStore(q, e)

	results, err := s.Search(context.Background(), "bonus terms", WithThreshold(0.7))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results: got %d, want 2", len(results))
	}
	if results[0].Snippet.ID != "exact" || results[1].Snippet.ID != "strong" {
		t.Errorf("order: got [%s %s], want [exact strong]",
			results[0].Snippet.ID, results[1].Snippet.ID)
	}
	if e.embedCalls != 1 {
		t.Errorf("embed calls: got %d, want 1", e.embedCalls)
	}
}

func TestSearchLimitOption(t *testing.T) {
	q := newMockQuerier()
	q.hits = []SnippetDistance{
		{Snippet: Snippet{ID: "a"}, Distance: 0.1},
		{Snippet: Snippet{ID: "b"}, Distance: 0.2},
		{Snippet: Snippet{ID: "c"}, Distance: 0.3},
	}
	s := newTestStore(q, &mockEmbedder{})

	results, err := s.Search(context.Background(), "vip levels", WithLimit(2), WithThreshold(0.1))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("limited results: got %d, want 2", len(results))
	}
}

func TestSearchEmbedderFailure(t *testing.T) {
	q := newMockQuerier()
	q.hits = []SnippetDistance{{Snippet: Snippet{ID: "a"}, Distance: 0.1}}
	e := &mockEmbedder{failWith: errors.New("backend down")}
	s := newTestStore(q, e)

	if _, err := s.Search(context.Background(), "deposit"); err == nil {
		t.Fatal("expected error when embedding fails")
	}
}

func TestAddDocumentRejectsBlank(t *testing.T) {
	s := newTestStore(newMockQuerier(), &mockEmbedder{})

	if _, err := s.AddDocument(context.Background(), "  \n ", "manual", 1); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("blank document: got %v, want ErrEmptyContent", err)
	}
}

func TestAddDocumentAssignsID(t *testing.T) {
	q := newMockQuerier()
	s := newTestStore(q, &mockEmbedder{})

	id, err := s.AddDocument(context.Background(), "withdrawals settle within 24 hours", "manual", 1)
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if id == "" {
		t.Error("expected non-empty snippet id")
	}
	if len(q.snippets) != 1 || q.snippets[0].ID != id {
		t.Errorf("stored snippets: %+v", q.snippets)
	}
}

func TestReplaceAllSwapsIndex(t *testing.T) {
	q := newMockQuerier()
	q.snippets = []InsertSnippetParams{{ID: "old", Content: "stale"}}
	q.hashes["old.txt"] = "deadbeef"
	s := newTestStore(q, &mockEmbedder{})

	err := s.ReplaceAll(context.Background(),
		[]InsertSnippetParams{{Content: "fresh", SourceFile: "new.txt", LineNumber: 1}},
		map[string]string{"new.txt": "cafe"})
	if err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	if q.deleteAllCalls != 1 {
		t.Errorf("delete-all calls: got %d, want 1", q.deleteAllCalls)
	}
	if len(q.snippets) != 1 || q.snippets[0].Content != "fresh" {
		t.Errorf("snippets after replace: %+v", q.snippets)
	}
	if q.snippets[0].ID == "" {
		t.Error("replace must assign ids to snippets without one")
	}
	if _, ok := q.hashes["old.txt"]; ok {
		t.Error("old file hash survived replace")
	}
	if q.hashes["new.txt"] != "cafe" {
		t.Errorf("new file hash: got %q, want %q", q.hashes["new.txt"], "cafe")
	}
}
