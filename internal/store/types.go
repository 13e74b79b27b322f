package store

import (
	"time"

	"github.com/ormelin/croupier/internal/persona"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Turn is one message within a conversation. Immutable once written.
type Turn struct {
	ID             int64
	ConversationID int64

	// ParticipantID is the chat-platform user id, when known. Nil for
	// group conversations and generated replies.
	ParticipantID *int64

	// MessageRef is the chat-platform message id, when known.
	MessageRef *int64

	Role    Role
	Content string

	// Persona records which persona was active when the turn was written.
	Persona persona.Persona

	CreatedAt time.Time
}

// State is the per-conversation mutable state: active persona, retained turn
// count, and last activity. Exactly one row per conversation.
type State struct {
	ConversationID int64
	Persona        persona.Persona
	TurnCount      int
	LastActivity   time.Time
}

// DefaultState returns the state assigned to a conversation on first access.
func DefaultState(conversationID int64) State {
	return State{
		ConversationID: conversationID,
		Persona:        persona.Default,
		TurnCount:      0,
		LastActivity:   time.Now().UTC(),
	}
}
