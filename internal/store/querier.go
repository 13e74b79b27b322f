package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ormelin/croupier/internal/persona"
)

// DBTX is the subset of pgx operations the querier needs. Both *pgxpool.Pool
// and pgx.Tx satisfy it, so the same SQL runs inside and outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InsertTurnParams are the fields written for a new turn.
type InsertTurnParams struct {
	ConversationID int64
	ParticipantID  *int64
	MessageRef     *int64
	Role           Role
	Content        string
	Persona        persona.Persona
	CreatedAt      time.Time
}

// ListTurnsParams select turns for a conversation.
// Cutoff is the oldest permitted creation time; the zero value disables the
// recency filter.
type ListTurnsParams struct {
	ConversationID int64
	Limit          int
	Cutoff         time.Time
}

// Querier defines the row-store operations the conversation Store depends
// on. The interface is defined here, by the consumer, so tests can substitute
// a mock and production code can run the same queries inside a transaction.
type Querier interface {
	InsertTurn(ctx context.Context, arg InsertTurnParams) (int64, error)
	ListTurns(ctx context.Context, arg ListTurnsParams) ([]Turn, error)
	CountTurns(ctx context.Context, conversationID int64) (int64, error)

	// TrimTurns deletes all turns beyond the newest keep, oldest first.
	// Recency order is creation time, ties broken by insertion id.
	TrimTurns(ctx context.Context, conversationID int64, keep int) (int64, error)

	// DeleteTurns removes every turn of the conversation.
	DeleteTurns(ctx context.Context, conversationID int64) (int64, error)

	GetState(ctx context.Context, conversationID int64) (State, error)

	// CreateState inserts a default state row if none exists.
	CreateState(ctx context.Context, conversationID int64, p persona.Persona) error

	// TouchStateCount upserts the turn counter and activity timestamp,
	// preserving the current persona (default persona on insert).
	TouchStateCount(ctx context.Context, conversationID int64, count int) error

	// SetStatePersona upserts the persona and activity timestamp, preserving
	// the current turn counter (zero on insert).
	SetStatePersona(ctx context.Context, conversationID int64, p persona.Persona) error

	// ResetStateCount zeroes the turn counter, keeping the persona.
	ResetStateCount(ctx context.Context, conversationID int64) error
}

// PGQuerier implements Querier with hand-written pgx SQL.
type PGQuerier struct {
	db DBTX
}

// NewPGQuerier creates a querier over the given connection source.
func NewPGQuerier(db DBTX) *PGQuerier {
	return &PGQuerier{db: db}
}

func (q *PGQuerier) InsertTurn(ctx context.Context, arg InsertTurnParams) (int64, error) {
	const sql = `
		INSERT INTO turns (conversation_id, participant_id, message_ref, role, content, persona, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id int64
	err := q.db.QueryRow(ctx, sql,
		arg.ConversationID,
		arg.ParticipantID,
		arg.MessageRef,
		string(arg.Role),
		arg.Content,
		string(arg.Persona),
		arg.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting turn: %w", err)
	}
	return id, nil
}

func (q *PGQuerier) ListTurns(ctx context.Context, arg ListTurnsParams) ([]Turn, error) {
	const sql = `
		SELECT id, conversation_id, participant_id, message_ref, role, content, persona, created_at
		FROM turns
		WHERE conversation_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	rows, err := q.db.Query(ctx, sql, arg.ConversationID, arg.Cutoff, arg.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var role, p string
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.ParticipantID, &t.MessageRef,
			&role, &t.Content, &p, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Role = Role(role)
		t.Persona = persona.Persona(p)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}
	return turns, nil
}

func (q *PGQuerier) CountTurns(ctx context.Context, conversationID int64) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM turns WHERE conversation_id = $1`,
		conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting turns: %w", err)
	}
	return count, nil
}

func (q *PGQuerier) TrimTurns(ctx context.Context, conversationID int64, keep int) (int64, error) {
	const sql = `
		DELETE FROM turns
		WHERE conversation_id = $1
		AND id NOT IN (
			SELECT id FROM turns
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		)`

	tag, err := q.db.Exec(ctx, sql, conversationID, keep)
	if err != nil {
		return 0, fmt.Errorf("trimming turns: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *PGQuerier) DeleteTurns(ctx context.Context, conversationID int64) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM turns WHERE conversation_id = $1`,
		conversationID,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting turns: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *PGQuerier) GetState(ctx context.Context, conversationID int64) (State, error) {
	const sql = `
		SELECT conversation_id, current_persona, turn_count, last_activity
		FROM conversation_states
		WHERE conversation_id = $1`

	var s State
	var p string
	err := q.db.QueryRow(ctx, sql, conversationID).Scan(
		&s.ConversationID, &p, &s.TurnCount, &s.LastActivity)
	if err != nil {
		return State{}, fmt.Errorf("getting state: %w", err)
	}
	s.Persona = persona.Persona(p)
	return s, nil
}

func (q *PGQuerier) CreateState(ctx context.Context, conversationID int64, p persona.Persona) error {
	const sql = `
		INSERT INTO conversation_states (conversation_id, current_persona, turn_count, last_activity)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (conversation_id) DO NOTHING`

	if _, err := q.db.Exec(ctx, sql, conversationID, string(p)); err != nil {
		return fmt.Errorf("creating state: %w", err)
	}
	return nil
}

func (q *PGQuerier) TouchStateCount(ctx context.Context, conversationID int64, count int) error {
	const sql = `
		INSERT INTO conversation_states (conversation_id, current_persona, turn_count, last_activity)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (conversation_id) DO UPDATE
		SET turn_count = EXCLUDED.turn_count, last_activity = now()`

	if _, err := q.db.Exec(ctx, sql, conversationID, string(persona.Default), count); err != nil {
		return fmt.Errorf("updating state count: %w", err)
	}
	return nil
}

func (q *PGQuerier) SetStatePersona(ctx context.Context, conversationID int64, p persona.Persona) error {
	const sql = `
		INSERT INTO conversation_states (conversation_id, current_persona, turn_count, last_activity)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (conversation_id) DO UPDATE
		SET current_persona = EXCLUDED.current_persona, last_activity = now()`

	if _, err := q.db.Exec(ctx, sql, conversationID, string(p)); err != nil {
		return fmt.Errorf("updating state persona: %w", err)
	}
	return nil
}

func (q *PGQuerier) ResetStateCount(ctx context.Context, conversationID int64) error {
	const sql = `
		UPDATE conversation_states
		SET turn_count = 0, last_activity = now()
		WHERE conversation_id = $1`

	if _, err := q.db.Exec(ctx, sql, conversationID); err != nil {
		return fmt.Errorf("resetting state count: %w", err)
	}
	return nil
}
