package tasks

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flightclaims/claims-engine/internal/platform/database"
)

// SentEvents enforces exactly-once side effects over an at-least-once
// queue: a task is only ever actually run the first time its idempotency
// key is seen, via the unique constraint on sent_events(idempotency_key).
type SentEvents struct {
	*database.BaseStore
}

func NewSentEvents(db *sqlx.DB) *SentEvents {
	return &SentEvents{BaseStore: database.NewBaseStore(db, "sent_events")}
}

// Claim reports whether this is the first delivery of idempotencyKey. A
// redelivered message (same key, already recorded) returns false so the
// worker can ack it without re-running the side effect.
func (s *SentEvents) Claim(ctx context.Context, idempotencyKey, taskName string) (firstDelivery bool, err error) {
	const query = `
		INSERT INTO sent_events (idempotency_key, task_name)
		VALUES ($1, $2)
		ON CONFLICT (idempotency_key) DO NOTHING`
	result, err := s.Querier(ctx).ExecContext(ctx, query, idempotencyKey, taskName)
	if err != nil {
		return false, fmt.Errorf("tasks: claim idempotency key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("tasks: claim rows affected: %w", err)
	}
	return affected > 0, nil
}
