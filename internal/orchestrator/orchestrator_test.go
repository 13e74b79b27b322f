package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ormelin/croupier/internal/assemble"
	"github.com/ormelin/croupier/internal/knowledge"
	"github.com/ormelin/croupier/internal/llm"
	"github.com/ormelin/croupier/internal/log"
	"github.com/ormelin/croupier/internal/persona"
	"github.com/ormelin/croupier/internal/store"
	"github.com/ormelin/croupier/internal/translate"
)

type mockStore struct {
	state       store.State
	stateErr    error
	history     []store.Turn
	historyErr  error
	recorded    []store.InsertTurnParams
	recordErr   error
	recordCalls int
}

func (m *mockStore) RecordTurn(_ context.Context, arg store.InsertTurnParams) (int64, error) {
	m.recordCalls++
	if m.recordErr != nil {
		return 0, m.recordErr
	}
	m.recorded = append(m.recorded, arg)
	return int64(len(m.recorded)), nil
}

func (m *mockStore) History(_ context.Context, _ int64, _ int, _ time.Duration) ([]store.Turn, error) {
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.history, nil
}

func (m *mockStore) State(_ context.Context, _ int64) (store.State, error) {
	if m.stateErr != nil {
		return store.State{}, m.stateErr
	}
	return m.state, nil
}

type mockClassifier struct {
	query translate.Query
	calls int
}

func (m *mockClassifier) Classify(_ context.Context, _ string) translate.Query {
	m.calls++
	return m.query
}

type mockSearcher struct {
	results []knowledge.Result
	err     error
	calls   int
	lastQ   string
}

func (m *mockSearcher) Search(_ context.Context, query string, _ ...knowledge.SearchOption) ([]knowledge.Result, error) {
	m.calls++
	m.lastQ = query
	return m.results, m.err
}

type mockPrompts struct {
	lastPersona persona.Persona
	lastCtx     string
}

func (m *mockPrompts) System(p persona.Persona, knowledgeContext string) string {
	m.lastPersona = p
	m.lastCtx = knowledgeContext
	return "sys:" + string(p)
}

type mockCompleter struct {
	reply string
	err   error
	calls int
	last  []llm.Message
}

func (m *mockCompleter) Complete(_ context.Context, messages []llm.Message, _ ...llm.CompleteOption) (string, error) {
	m.calls++
	m.last = messages
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

type mockSink struct {
	entries [][]string
}

func (m *mockSink) Append(lines ...string) {
	m.entries = append(m.entries, lines)
}

type fixture struct {
	store      *mockStore
	classifier *mockClassifier
	searcher   *mockSearcher
	prompts    *mockPrompts
	completer  *mockCompleter
	chatLog    *mockSink
	vectorLog  *mockSink
	orch       *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		store:      &mockStore{state: store.State{Persona: persona.Business}},
		classifier: &mockClassifier{query: translate.Query{Kind: translate.KindNone}},
		searcher:   &mockSearcher{},
		prompts:    &mockPrompts{},
		completer:  &mockCompleter{reply: "Welcome!"},
		chatLog:    &mockSink{},
		vectorLog:  &mockSink{},
	}
	f.orch = New(Config{
		Store:           f.store,
		Classifier:      f.classifier,
		Searcher:        f.searcher,
		Prompts:         f.prompts,
		Completer:       f.completer,
		Assembler:       assemble.New(5),
		ChatAudit:       f.chatLog,
		VectorAudit:     f.vectorLog,
		HistoryWindow:   time.Hour,
		FallbackMessage: "Our operator is offline right now, please bear with us.",
		Logger:          log.NewNop(),
	})
	return f
}

func TestGenerateRejectsEmptyMessage(t *testing.T) {
	f := newFixture()
	if _, err := f.orch.Generate(context.Background(), 1, "   "); err == nil {
		t.Fatal("expected error for empty message")
	}
	if f.completer.calls != 0 {
		t.Errorf("completer calls: got %d, want 0", f.completer.calls)
	}
}

func TestGenerateCasualPathSkipsRetrieval(t *testing.T) {
	f := newFixture()

	result, err := f.orch.Generate(context.Background(), 1, "hello there")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if result.Text != "Welcome!" {
		t.Errorf("reply: got %q", result.Text)
	}
	if result.Path != PathGenerated {
		t.Errorf("path: got %v, want PathGenerated", result.Path)
	}
	if result.Retrieved != 0 {
		t.Errorf("retrieved: got %d, want 0", result.Retrieved)
	}
	if f.searcher.calls != 0 {
		t.Errorf("search calls on casual path: got %d, want 0", f.searcher.calls)
	}
	if f.prompts.lastCtx != "" {
		t.Errorf("knowledge context on casual path: %q", f.prompts.lastCtx)
	}
	if len(f.vectorLog.entries) != 0 {
		t.Errorf("vector audit entries on casual path: %d", len(f.vectorLog.entries))
	}

	// Empty history: system prompt plus the current message.
	if len(f.completer.last) != 2 {
		t.Fatalf("context messages: got %d, want 2", len(f.completer.last))
	}
	if f.completer.last[0].Role != llm.RoleSystem || f.completer.last[1].Content != "hello there" {
		t.Errorf("context: %+v", f.completer.last)
	}

	// Exactly the reply turn is recorded; the user turn is the caller's job.
	if len(f.store.recorded) != 1 {
		t.Fatalf("recorded turns: got %d, want 1", len(f.store.recorded))
	}
	rec := f.store.recorded[0]
	if rec.Role != store.RoleAssistant || rec.Content != "Welcome!" {
		t.Errorf("recorded turn: %+v", rec)
	}
	if len(f.chatLog.entries) != 1 {
		t.Errorf("chat audit entries: got %d, want 1", len(f.chatLog.entries))
	}
}

func TestGenerateRetrievalPath(t *testing.T) {
	f := newFixture()
	f.classifier.query = translate.Query{Text: "withdrawal time", Kind: translate.KindTranslated}
	f.searcher.results = []knowledge.Result{
		{Snippet: knowledge.Snippet{Content: "Withdrawals settle within 24 hours.", SourceFile: "faq.txt", LineNumber: 3}, Similarity: 0.91},
		{Snippet: knowledge.Snippet{Content: "Verification is required before the first payout.", SourceFile: "faq.txt", LineNumber: 9}, Similarity: 0.78},
	}
	f.completer.reply = "Withdrawals usually take up to 24 hours."

	result, err := f.orch.Generate(context.Background(), 2, "сколько ждать вывода?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if result.Retrieved != 2 {
		t.Errorf("retrieved: got %d, want 2", result.Retrieved)
	}
	if f.searcher.lastQ != "withdrawal time" {
		t.Errorf("search query: got %q", f.searcher.lastQ)
	}
	// Each snippet carries its similarity score into the context.
	if !strings.Contains(f.prompts.lastCtx, "[relevance: 0.91] Withdrawals settle within 24 hours.") {
		t.Errorf("knowledge context: %q", f.prompts.lastCtx)
	}
	if !strings.Contains(f.prompts.lastCtx, "[relevance: 0.78] Verification is required before the first payout.") {
		t.Errorf("knowledge context: %q", f.prompts.lastCtx)
	}
	if len(f.vectorLog.entries) != 1 {
		t.Fatalf("vector audit entries: got %d, want 1", len(f.vectorLog.entries))
	}
	if got := len(f.vectorLog.entries[0]); got != 3 {
		t.Errorf("vector audit lines: got %d, want query plus two hits", got)
	}
}

func TestGenerateSearchFailureDegradesToEmptyContext(t *testing.T) {
	f := newFixture()
	f.classifier.query = translate.Query{Text: "bonus rules", Kind: translate.KindTranslated}
	f.searcher.err = errors.New("index down")

	result, err := f.orch.Generate(context.Background(), 3, "bonus?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Path != PathGenerated {
		t.Errorf("path: got %v, want PathGenerated", result.Path)
	}
	if result.Retrieved != 0 {
		t.Errorf("retrieved: got %d, want 0", result.Retrieved)
	}
	if f.prompts.lastCtx != "" {
		t.Errorf("knowledge context after search failure: %q", f.prompts.lastCtx)
	}
}

func TestGenerateFallbackOnCompletionFailure(t *testing.T) {
	f := newFixture()
	f.completer.err = context.DeadlineExceeded

	result, err := f.orch.Generate(context.Background(), 4, "is the site down?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Path != PathFallback {
		t.Errorf("path: got %v, want PathFallback", result.Path)
	}
	if result.Text != "Our operator is offline right now, please bear with us." {
		t.Errorf("fallback text: got %q", result.Text)
	}

	// The fallback is still recorded and audited like any reply.
	if len(f.store.recorded) != 1 || f.store.recorded[0].Content != result.Text {
		t.Errorf("recorded turns: %+v", f.store.recorded)
	}
	if len(f.chatLog.entries) != 1 {
		t.Errorf("chat audit entries: got %d, want 1", len(f.chatLog.entries))
	}
}

func TestGenerateUsesStatePersona(t *testing.T) {
	f := newFixture()
	f.store.state = store.State{Persona: persona.Bella}

	result, err := f.orch.Generate(context.Background(), 5, "hi!")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Persona != persona.Bella {
		t.Errorf("result persona: got %q, want bella", result.Persona)
	}
	if f.prompts.lastPersona != persona.Bella {
		t.Errorf("prompt persona: got %q, want bella", f.prompts.lastPersona)
	}
	if f.completer.last[0].Content != "sys:bella" {
		t.Errorf("system prompt: %q", f.completer.last[0].Content)
	}
}

func TestGenerateStateFailureUsesDefaultPersona(t *testing.T) {
	f := newFixture()
	f.store.stateErr = errors.New("db down")

	result, err := f.orch.Generate(context.Background(), 6, "hi")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Persona != persona.Default {
		t.Errorf("persona: got %q, want default", result.Persona)
	}
}

func TestGenerateHistoryFailureDegradesToMinimalContext(t *testing.T) {
	f := newFixture()
	f.store.history = []store.Turn{{Role: store.RoleUser, Content: "earlier"}}
	f.store.historyErr = errors.New("db down")

	_, err := f.orch.Generate(context.Background(), 7, "current")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(f.completer.last) != 2 {
		t.Fatalf("degraded context: got %d messages, want 2", len(f.completer.last))
	}
}

func TestGenerateRecordFailureDoesNotSurface(t *testing.T) {
	f := newFixture()
	f.store.recordErr = errors.New("db down")

	result, err := f.orch.Generate(context.Background(), 8, "hi")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Text != "Welcome!" {
		t.Errorf("reply: got %q", result.Text)
	}
}

func TestGenerateIncludesHistoryInContext(t *testing.T) {
	f := newFixture()
	f.store.history = []store.Turn{
		{Role: store.RoleUser, Content: "hi"},
		{Role: store.RoleAssistant, Content: "hello!"},
	}

	_, err := f.orch.Generate(context.Background(), 9, "current")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(f.completer.last) != 4 {
		t.Fatalf("context messages: got %d, want 4", len(f.completer.last))
	}
	if f.completer.last[1].Content != "hi" || f.completer.last[2].Content != "hello!" {
		t.Errorf("history in context: %+v", f.completer.last[1:3])
	}
}
