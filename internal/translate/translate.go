// Package translate turns a raw user message into a retrieval query. The
// classifier backend decides whether the message needs knowledge at all and,
// when it does, rewrites it into a compact search query in the knowledge
// base's language.
package translate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ormelin/croupier/internal/llm"
)

// casualSentinel is the exact token the classifier prompt instructs the
// backend to return for small talk that needs no retrieval.
const casualSentinel = "CASUAL_CHAT"

// classifierPrompt instructs the backend to act as a query rewriter.
const classifierPrompt = `You turn customer support messages into short search queries for a casino knowledge base written in English.

Rules:
- If the message asks about the casino (games, bonuses, deposits, withdrawals, verification, promotions, account issues, technical problems), answer with ONLY a concise English search query capturing what the user needs. No quotes, no explanations.
- If the message is small talk, a greeting, an emotional remark, or anything that needs no factual lookup, answer with exactly: ` + casualSentinel + `
- Never answer the user's question yourself.`

// Kind describes how a classification result should be used.
type Kind int

const (
	// KindNone means the message is casual chat; skip retrieval entirely.
	KindNone Kind = iota

	// KindTranslated means Text is a rewritten retrieval query.
	KindTranslated

	// KindOriginal means the backend was unavailable and Text is the user's
	// message unchanged; retrieval proceeds on a best-effort basis.
	KindOriginal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTranslated:
		return "translated"
	case KindOriginal:
		return "original"
	}
	return "unknown"
}

// Query is a classification result.
type Query struct {
	Text string
	Kind Kind
}

// Completer is the chat backend the classifier calls.
// Satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts ...llm.CompleteOption) (string, error)
}

// Classifier decides whether a message needs retrieval and translates it
// into a search query when it does.
type Classifier struct {
	completer Completer
	logger    *slog.Logger
}

// New creates a classifier over the given chat backend.
func New(completer Completer, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{completer: completer, logger: logger}
}

// Classify maps a user message to a retrieval query. It never returns an
// error: a blank message classifies as casual chat without touching the
// backend, and any backend failure falls open to the original message so one
// flaky classification cannot take down the pipeline.
func (c *Classifier) Classify(ctx context.Context, message string) Query {
	message = strings.TrimSpace(message)
	if message == "" {
		return Query{Kind: KindNone}
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: classifierPrompt},
		{Role: llm.RoleUser, Content: message},
	}

	reply, err := c.completer.Complete(ctx, messages,
		llm.WithTemperature(0),
		llm.WithMaxTokens(100))
	if err != nil {
		c.logger.Warn("classifier backend unavailable, passing query through", "error", err)
		return Query{Text: message, Kind: KindOriginal}
	}

	reply = strings.TrimSpace(reply)
	if strings.EqualFold(reply, casualSentinel) {
		return Query{Kind: KindNone}
	}

	c.logger.Debug("query translated", "query", reply)
	return Query{Text: reply, Kind: KindTranslated}
}
