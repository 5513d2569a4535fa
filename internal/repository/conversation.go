package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lvhr/airea/internal/domain"
)

// ConversationRepository is the durable, append-only conversation turn log.
type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

// Append stores a turn with the next sequence number for its conversation
// and returns that number. Sequence assignment happens under a
// per-conversation advisory lock, so concurrent submissions for one
// conversation cannot interleave and sequences are gap-free. Retrying with
// the same idempotency key returns the sequence of the already-stored turn
// without writing a duplicate.
func (r *ConversationRepository) Append(ctx context.Context, turn *domain.ConversationTurn) (int64, error) {
	if err := domain.ValidateConversationTurn(turn); err != nil {
		return 0, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, persistenceErr(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		turn.ConversationID,
	); err != nil {
		return 0, persistenceErr(err)
	}

	var seq int64
	err = tx.QueryRow(ctx,
		`SELECT sequence FROM conversation_turns WHERE idempotency_key = $1`,
		turn.IdempotencyKey,
	).Scan(&seq)
	if err == nil {
		return seq, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, persistenceErr(err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO conversation_turns
		     (conversation_id, sequence, idempotency_key, user_message, context_ref, response, created_at)
		 VALUES ($1,
		         (SELECT COALESCE(MAX(sequence), 0) + 1 FROM conversation_turns WHERE conversation_id = $1),
		         $2, $3, $4, $5, $6)
		 RETURNING sequence`,
		turn.ConversationID,
		turn.IdempotencyKey,
		turn.UserMessage,
		turn.ContextRef,
		turn.Response,
		turn.CreatedAt,
	).Scan(&seq)
	if err != nil {
		return 0, persistenceErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, persistenceErr(err)
	}
	return seq, nil
}

// ListRecent returns the most recent turns of a conversation, oldest first,
// for building conversation-history context.
func (r *ConversationRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]*domain.ConversationTurn, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := r.pool.Query(ctx,
		`SELECT conversation_id, sequence, idempotency_key, user_message, context_ref, response, created_at
		 FROM conversation_turns
		 WHERE conversation_id = $1
		 ORDER BY sequence DESC
		 LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, persistenceErr(err)
	}
	defer rows.Close()

	var turns []*domain.ConversationTurn
	for rows.Next() {
		var t domain.ConversationTurn
		if err := rows.Scan(&t.ConversationID, &t.Sequence, &t.IdempotencyKey,
			&t.UserMessage, &t.ContextRef, &t.Response, &t.CreatedAt); err != nil {
			return nil, persistenceErr(err)
		}
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr(err)
	}

	// Reverse into chronological order for prompt assembly.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func persistenceErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
}
