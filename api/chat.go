package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ormelin/croupier/internal/log"
	"github.com/ormelin/croupier/internal/orchestrator"
	"github.com/ormelin/croupier/internal/store"
)

// MaxMessageLength bounds a chat message. Longer messages are rejected
// rather than truncated so the stored history matches what was answered.
const MaxMessageLength = 4000

// Generator runs the reply pipeline. Satisfied by *orchestrator.Orchestrator.
type Generator interface {
	Generate(ctx context.Context, conversationID int64, message string) (orchestrator.Result, error)
}

// ChatHandler handles the chat endpoint.
type ChatHandler struct {
	generator     Generator
	conversations Conversations
	logger        log.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(generator Generator, conversations Conversations, logger log.Logger) *ChatHandler {
	return &ChatHandler{generator: generator, conversations: conversations, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.chat)
}

// ChatRequest is the request body for the chat endpoint.
type ChatRequest struct {
	ConversationID int64  `json:"conversation_id"`
	Message        string `json:"message"`

	// ParticipantID and MessageRef are optional chat-platform identifiers
	// recorded with the user turn.
	ParticipantID *int64 `json:"participant_id,omitempty"`
	MessageRef    *int64 `json:"message_ref,omitempty"`
}

// ChatResponse is the response body for the chat endpoint.
type ChatResponse struct {
	Reply     string `json:"reply"`
	Path      string `json:"path"`
	Persona   string `json:"persona"`
	Retrieved int    `json:"retrieved"`
}

// chat records the user turn and generates a reply.
func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.ConversationID == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "conversation_id is required")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	if len(req.Message) > MaxMessageLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "message too long (max 4000 characters)")
		return
	}

	// The user turn is recorded before generation so the exchange is
	// preserved even when the pipeline degrades to its fallback.
	state, err := h.conversations.State(r.Context(), req.ConversationID)
	if err != nil {
		h.logger.Error("loading conversation state", "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to load conversation")
		return
	}
	_, err = h.conversations.RecordTurn(r.Context(), store.InsertTurnParams{
		ConversationID: req.ConversationID,
		ParticipantID:  req.ParticipantID,
		MessageRef:     req.MessageRef,
		Role:           store.RoleUser,
		Content:        req.Message,
		Persona:        state.Persona,
	})
	if err != nil {
		h.logger.Error("recording user turn", "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to record message")
		return
	}

	result, err := h.generator.Generate(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		h.logger.Error("generating reply", "error", err)
		writeError(w, http.StatusInternalServerError, "generation_error", "failed to generate reply")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Reply:     result.Text,
		Path:      result.Path.String(),
		Persona:   result.Persona.String(),
		Retrieved: result.Retrieved,
	})
}
