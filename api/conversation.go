package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ormelin/croupier/internal/log"
	"github.com/ormelin/croupier/internal/persona"
	"github.com/ormelin/croupier/internal/store"
)

// History pagination bounds.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 500
)

// Conversations is the conversation storage the handlers need.
// Satisfied by *store.Store.
type Conversations interface {
	RecordTurn(ctx context.Context, arg store.InsertTurnParams) (int64, error)
	History(ctx context.Context, conversationID int64, limit int, window time.Duration) ([]store.Turn, error)
	Clear(ctx context.Context, conversationID int64) (int64, error)
	State(ctx context.Context, conversationID int64) (store.State, error)
	SetPersona(ctx context.Context, conversationID int64, p persona.Persona) error
}

// ConversationHandler handles conversation management endpoints.
type ConversationHandler struct {
	conversations Conversations
	logger        log.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(conversations Conversations, logger log.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, logger: logger}
}

// RegisterRoutes registers conversation routes on the given mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/conversations/{id}/history", h.history)
	mux.HandleFunc("DELETE /api/conversations/{id}", h.clear)
	mux.HandleFunc("PUT /api/conversations/{id}/persona", h.setPersona)
	mux.HandleFunc("GET /api/personas", h.personas)
}

// TurnResponse is one turn in a history response.
type TurnResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Persona   string    `json:"persona"`
	CreatedAt time.Time `json:"created_at"`
}

// history returns the retained turns of a conversation, oldest first.
// Query parameters:
//   - limit: maximum number of turns to return (default: 20, max: 500)
func (h *ConversationHandler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	limit := parseIntParam(r, "limit", DefaultHistoryLimit, 1, MaxHistoryLimit)

	turns, err := h.conversations.History(r.Context(), id, limit, 0)
	if err != nil {
		h.logger.Error("loading history", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to load history")
		return
	}

	out := make([]TurnResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, TurnResponse{
			Role:      string(t.Role),
			Content:   t.Content,
			Persona:   t.Persona.String(),
			CreatedAt: t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"turns":           out,
		"total":           len(out),
	})
}

// clear deletes all turns of a conversation and reports how many were
// removed.
func (h *ConversationHandler) clear(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	deleted, err := h.conversations.Clear(r.Context(), id)
	if err != nil {
		h.logger.Error("clearing conversation", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to clear conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"deleted":         deleted,
	})
}

// SetPersonaRequest is the request body for the persona endpoint.
type SetPersonaRequest struct {
	Persona string `json:"persona"`
}

// setPersona switches the active persona of a conversation.
func (h *ConversationHandler) setPersona(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req SetPersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	p, err := persona.Parse(req.Persona)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_persona", "persona must be one of: business, bella, ben")
		return
	}

	if err := h.conversations.SetPersona(r.Context(), id, p); err != nil {
		h.logger.Error("setting persona", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to set persona")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"persona":         p.String(),
	})
}

// personas lists the available personas.
func (h *ConversationHandler) personas(w http.ResponseWriter, _ *http.Request) {
	all := persona.All()
	names := make([]string, 0, len(all))
	for _, p := range all {
		names = append(names, p.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"personas": names,
		"default":  persona.Default.String(),
	})
}

// conversationID extracts and validates the {id} path parameter.
func conversationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid conversation id")
		return 0, false
	}
	return id, true
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
