// Package assemble builds the ordered message sequence sent to the chat
// backend: system prompt, conversation history, then the current message.
package assemble

import (
	"github.com/ormelin/croupier/internal/llm"
	"github.com/ormelin/croupier/internal/store"
)

// DefaultDupThreshold is the history length above which the system prompt is
// repeated before the current message.
const DefaultDupThreshold = 5

// Assembler turns stored history and a rendered system prompt into a chat
// context.
type Assembler struct {
	dupThreshold int
}

// New creates an assembler. A non-positive threshold uses
// DefaultDupThreshold.
func New(dupThreshold int) *Assembler {
	if dupThreshold <= 0 {
		dupThreshold = DefaultDupThreshold
	}
	return &Assembler{dupThreshold: dupThreshold}
}

// Build assembles the full generation context. With a long history the
// system prompt is repeated just before the current message, since backends
// weight recent messages more heavily and drift off persona otherwise.
func (a *Assembler) Build(systemPrompt string, history []store.Turn, current string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})

	// Only the turns that actually enter the context count toward the
	// duplication threshold; skipped turns add no drift.
	appended := 0
	for _, turn := range history {
		role, ok := toLLMRole(turn.Role)
		if !ok {
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
		appended++
	}

	if appended > a.dupThreshold {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: current})
	return messages
}

// Minimal assembles the two-message degraded context used when history
// cannot be loaded: just the system prompt and the current message.
func (a *Assembler) Minimal(systemPrompt, current string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: current},
	}
}

// toLLMRole maps stored roles to backend roles. Stored system turns are not
// replayed; the system prompt is rebuilt fresh on every request.
func toLLMRole(r store.Role) (llm.Role, bool) {
	switch r {
	case store.RoleUser:
		return llm.RoleUser, true
	case store.RoleAssistant:
		return llm.RoleAssistant, true
	}
	return "", false
}
