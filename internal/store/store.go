// Package store persists conversation turns and per-conversation state in
// PostgreSQL. It is the agent's memory: bounded rolling history per
// conversation, with the active persona and turn counter kept alongside.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ormelin/croupier/internal/persona"
)

// Sentinel errors for store operations.
var (
	// ErrInvalidRole indicates a turn carried a role outside the enumeration.
	ErrInvalidRole = errors.New("invalid turn role")

	// ErrEmptyContent indicates a turn with blank content.
	ErrEmptyContent = errors.New("empty turn content")
)

// DefaultRetention is the number of turns kept per conversation when the
// caller does not configure one.
const DefaultRetention = 20

// Store manages conversation turns and state.
type Store struct {
	querier   Querier
	pool      *pgxpool.Pool
	retention int
	logger    *slog.Logger
}

// New creates a conversation store. The pool may be nil in tests, in which
// case writes run through the querier without a transaction.
func New(querier Querier, pool *pgxpool.Pool, retention int, logger *slog.Logger) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		querier:   querier,
		pool:      pool,
		retention: retention,
		logger:    logger,
	}
}

// Retention returns the configured per-conversation turn cap.
func (s *Store) Retention() int {
	return s.retention
}

// RecordTurn appends a turn to the conversation, evicts the oldest turns
// beyond the retention cap, and updates the conversation state. The whole
// sequence runs in one transaction, so the stored counter never exceeds the
// cap and never drifts from the rows actually kept.
func (s *Store) RecordTurn(ctx context.Context, arg InsertTurnParams) (int64, error) {
	if !arg.Role.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, arg.Role)
	}
	if arg.Content == "" {
		return 0, ErrEmptyContent
	}
	if !arg.Persona.Valid() {
		arg.Persona = persona.Default
	}
	if arg.CreatedAt.IsZero() {
		arg.CreatedAt = time.Now().UTC()
	}

	if s.pool == nil {
		return s.recordTurn(ctx, s.querier, arg)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	id, err := s.recordTurn(ctx, NewPGQuerier(tx), arg)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return id, nil
}

func (s *Store) recordTurn(ctx context.Context, q Querier, arg InsertTurnParams) (int64, error) {
	id, err := q.InsertTurn(ctx, arg)
	if err != nil {
		return 0, err
	}

	evicted, err := q.TrimTurns(ctx, arg.ConversationID, s.retention)
	if err != nil {
		return 0, err
	}
	if evicted > 0 {
		s.logger.Debug("evicted turns",
			"conversation_id", arg.ConversationID,
			"evicted", evicted)
	}

	count, err := q.CountTurns(ctx, arg.ConversationID)
	if err != nil {
		return 0, err
	}

	if err := q.TouchStateCount(ctx, arg.ConversationID, int(count)); err != nil {
		return 0, err
	}
	return id, nil
}

// History returns up to limit turns of the conversation, oldest first,
// restricted to turns newer than the window. A non-positive limit uses the
// retention cap; larger explicit limits are honored as-is, since trimming
// already bounds how many rows a conversation can hold. A zero window
// disables the recency filter.
func (s *Store) History(ctx context.Context, conversationID int64, limit int, window time.Duration) ([]Turn, error) {
	if limit <= 0 {
		limit = s.retention
	}

	var cutoff time.Time
	if window > 0 {
		cutoff = time.Now().UTC().Add(-window)
	}

	turns, err := s.querier.ListTurns(ctx, ListTurnsParams{
		ConversationID: conversationID,
		Limit:          limit,
		Cutoff:         cutoff,
	})
	if err != nil {
		return nil, err
	}

	// ListTurns returns newest first so LIMIT keeps the most recent turns.
	// Callers want chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Clear deletes every turn of the conversation and zeroes its turn counter,
// returning how many turns were deleted. The active persona survives a clear.
func (s *Store) Clear(ctx context.Context, conversationID int64) (int64, error) {
	deleted, err := s.querier.DeleteTurns(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if err := s.querier.ResetStateCount(ctx, conversationID); err != nil {
		return deleted, err
	}

	s.logger.Info("cleared conversation",
		"conversation_id", conversationID,
		"deleted", deleted)
	return deleted, nil
}

// State returns the conversation state, creating the default row on first
// access.
func (s *Store) State(ctx context.Context, conversationID int64) (State, error) {
	state, err := s.querier.GetState(ctx, conversationID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return State{}, err
	}

	if err := s.querier.CreateState(ctx, conversationID, persona.Default); err != nil {
		return State{}, err
	}
	return s.querier.GetState(ctx, conversationID)
}

// SetPersona switches the conversation's active persona.
func (s *Store) SetPersona(ctx context.Context, conversationID int64, p persona.Persona) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", persona.ErrUnknown, p)
	}
	if err := s.querier.SetStatePersona(ctx, conversationID, p); err != nil {
		return err
	}

	s.logger.Info("persona switched",
		"conversation_id", conversationID,
		"persona", p)
	return nil
}
