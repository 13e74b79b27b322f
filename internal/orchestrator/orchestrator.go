// Package orchestrator runs the reply pipeline: classify the message,
// retrieve knowledge, assemble the context, call the generation backend, and
// record the outcome. Every degraded path ends in a usable reply; the
// pipeline returns an error only when the conversation itself is invalid.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ormelin/croupier/internal/assemble"
	"github.com/ormelin/croupier/internal/audit"
	"github.com/ormelin/croupier/internal/knowledge"
	"github.com/ormelin/croupier/internal/llm"
	"github.com/ormelin/croupier/internal/persona"
	"github.com/ormelin/croupier/internal/store"
	"github.com/ormelin/croupier/internal/translate"
)

// Path tells the caller how the reply text was produced.
type Path int

const (
	// PathGenerated means the backend produced the reply.
	PathGenerated Path = iota

	// PathFallback means generation failed and the reply is the configured
	// operator-busy message.
	PathFallback
)

func (p Path) String() string {
	if p == PathFallback {
		return "fallback"
	}
	return "generated"
}

// Result is the outcome of one pipeline run.
type Result struct {
	Text string
	Path Path

	// Persona is the persona the reply was generated under.
	Persona persona.Persona

	// Retrieved is the number of knowledge snippets that made it into the
	// context.
	Retrieved int
}

// ConversationStore is the conversation persistence the pipeline needs.
// Satisfied by *store.Store.
type ConversationStore interface {
	RecordTurn(ctx context.Context, arg store.InsertTurnParams) (int64, error)
	History(ctx context.Context, conversationID int64, limit int, window time.Duration) ([]store.Turn, error)
	State(ctx context.Context, conversationID int64) (store.State, error)
}

// Classifier decides whether a message needs retrieval.
// Satisfied by *translate.Classifier.
type Classifier interface {
	Classify(ctx context.Context, message string) translate.Query
}

// Searcher retrieves knowledge snippets. Satisfied by *knowledge.Store.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// PromptSource renders persona system prompts. Satisfied by *prompt.Library.
type PromptSource interface {
	System(p persona.Persona, knowledgeContext string) string
}

// Completer is the generation backend. Satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts ...llm.CompleteOption) (string, error)
}

// Config wires an Orchestrator.
type Config struct {
	Store      ConversationStore
	Classifier Classifier
	Searcher   Searcher
	Prompts    PromptSource
	Completer  Completer
	Assembler  *assemble.Assembler

	// ChatAudit receives one entry per exchange; VectorAudit one per
	// retrieval. Nil sinks discard.
	ChatAudit   audit.Sink
	VectorAudit audit.Sink

	// HistoryWindow restricts context to recent turns. Zero disables the
	// filter.
	HistoryWindow time.Duration

	// FallbackMessage is returned verbatim when generation fails.
	FallbackMessage string

	Logger *slog.Logger
}

// Orchestrator runs the reply pipeline. Safe for concurrent use.
type Orchestrator struct {
	store       ConversationStore
	classifier  Classifier
	searcher    Searcher
	prompts     PromptSource
	completer   Completer
	assembler   *assemble.Assembler
	chatAudit   audit.Sink
	vectorAudit audit.Sink
	window      time.Duration
	fallback    string
	logger      *slog.Logger
}

// New creates an orchestrator from the config.
func New(cfg Config) *Orchestrator {
	if cfg.ChatAudit == nil {
		cfg.ChatAudit = audit.NopSink{}
	}
	if cfg.VectorAudit == nil {
		cfg.VectorAudit = audit.NopSink{}
	}
	if cfg.Assembler == nil {
		cfg.Assembler = assemble.New(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		store:       cfg.Store,
		classifier:  cfg.Classifier,
		searcher:    cfg.Searcher,
		prompts:     cfg.Prompts,
		completer:   cfg.Completer,
		assembler:   cfg.Assembler,
		chatAudit:   cfg.ChatAudit,
		vectorAudit: cfg.VectorAudit,
		window:      cfg.HistoryWindow,
		fallback:    cfg.FallbackMessage,
		logger:      cfg.Logger,
	}
}

// Generate produces a reply to the message in the given conversation. The
// caller has already recorded the user turn. The reply turn is recorded
// best-effort: a storage failure is logged but never surfaces, since the
// user already has their answer.
func (o *Orchestrator) Generate(ctx context.Context, conversationID int64, message string) (Result, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Result{}, fmt.Errorf("empty message for conversation %d", conversationID)
	}

	activePersona := persona.Default
	state, err := o.store.State(ctx, conversationID)
	if err != nil {
		o.logger.Warn("loading conversation state, using default persona",
			"conversation_id", conversationID, "error", err)
	} else {
		activePersona = state.Persona
	}

	knowledgeCtx, retrieved := o.retrieve(ctx, message)
	systemPrompt := o.prompts.System(activePersona, knowledgeCtx)

	var messages []llm.Message
	history, err := o.store.History(ctx, conversationID, 0, o.window)
	if err != nil {
		o.logger.Warn("loading history, degrading to minimal context",
			"conversation_id", conversationID, "error", err)
		messages = o.assembler.Minimal(systemPrompt, message)
	} else {
		messages = o.assembler.Build(systemPrompt, history, message)
	}

	result := Result{Persona: activePersona, Retrieved: retrieved, Path: PathGenerated}
	reply, err := o.completer.Complete(ctx, messages)
	if err != nil {
		o.logger.Error("generation failed, answering with fallback",
			"conversation_id", conversationID, "error", err)
		result.Text = o.fallback
		result.Path = PathFallback
	} else {
		result.Text = reply
	}

	o.recordReply(ctx, conversationID, activePersona, result)
	o.chatAudit.Append(
		fmt.Sprintf("conv %d [%s] user: %s", conversationID, activePersona, message),
		fmt.Sprintf("conv %d [%s] %s: %s", conversationID, activePersona, result.Path, result.Text),
	)
	return result, nil
}

// retrieve classifies the message and, when it needs knowledge, searches the
// index. Returns the context block, one snippet per paragraph prefixed with
// its similarity score, and the number of hits used. All failures degrade to
// an empty context.
func (o *Orchestrator) retrieve(ctx context.Context, message string) (string, int) {
	query := o.classifier.Classify(ctx, message)
	if query.Kind == translate.KindNone {
		return "", 0
	}

	results, err := o.searcher.Search(ctx, query.Text)
	if err != nil {
		o.logger.Warn("knowledge search failed, generating without context",
			"query", query.Text, "error", err)
		return "", 0
	}

	lines := make([]string, 0, len(results)+1)
	lines = append(lines, fmt.Sprintf("query [%s]: %s", query.Kind, query.Text))
	snippets := make([]string, 0, len(results))
	for _, r := range results {
		snippets = append(snippets, fmt.Sprintf("[relevance: %.2f] %s", r.Similarity, r.Snippet.Content))
		lines = append(lines, fmt.Sprintf("hit %.2f %s:%d", r.Similarity, r.Snippet.SourceFile, r.Snippet.LineNumber))
	}
	o.vectorAudit.Append(lines...)

	return strings.Join(snippets, "\n\n"), len(results)
}

// recordReply stores the assistant turn.
func (o *Orchestrator) recordReply(ctx context.Context, conversationID int64, p persona.Persona, result Result) {
	_, err := o.store.RecordTurn(ctx, store.InsertTurnParams{
		ConversationID: conversationID,
		Role:           store.RoleAssistant,
		Content:        result.Text,
		Persona:        p,
	})
	if err != nil {
		o.logger.Error("recording reply turn",
			"conversation_id", conversationID, "error", err)
	}
}
