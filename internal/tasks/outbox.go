package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/flightclaims/claims-engine/internal/platform/database"
)

// OutboxRow is one pending (or dispatched) row of task_outbox.
type OutboxRow struct {
	ID             uuid.UUID
	Queue          string
	TaskName       string
	Payload        json.RawMessage
	IdempotencyKey string
	AvailableAt    time.Time
	Attempts       int
}

// OutboxStore reads and marks rows of task_outbox — the table claim and
// document services write to inside their own transactions so a side
// effect is only ever scheduled once the transition that triggers it has
// actually committed.
type OutboxStore struct {
	*database.BaseStore
}

func NewOutboxStore(db *sqlx.DB) *OutboxStore {
	return &OutboxStore{BaseStore: database.NewBaseStore(db, "task_outbox")}
}

// FetchPending claims up to limit undispatched, due rows, skipping rows
// already locked by another dispatcher instance so two replicas never
// double-send the same task.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int) ([]OutboxRow, error) {
	const query = `
		SELECT id, queue, task_name, payload, idempotency_key, available_at, attempts
		FROM task_outbox
		WHERE dispatched_at IS NULL AND dead_lettered_at IS NULL AND available_at <= now()
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`
	rows, err := s.Querier(ctx).QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("tasks: fetch pending outbox rows: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var r OutboxRow
		if err := rows.Scan(&r.ID, &r.Queue, &r.TaskName, &r.Payload, &r.IdempotencyKey, &r.AvailableAt, &r.Attempts); err != nil {
			return nil, fmt.Errorf("tasks: scan outbox row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tasks: fetch pending outbox rows: %w", err)
	}
	return out, nil
}

// MarkDispatched records that row id has been handed to the queue, so
// the next poll never picks it up again.
func (s *OutboxStore) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE task_outbox SET dispatched_at = now() WHERE id = $1`
	if _, err := s.Querier(ctx).ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("tasks: mark dispatched: %w", err)
	}
	return nil
}

// Insert writes a new outbox row directly — used by the cron scheduler
// for time-triggered tasks (draft reminders, discard notices) that have no
// claim transition to ride along with.
func (s *OutboxStore) Insert(ctx context.Context, queue, taskName string, payload interface{}, idempotencyKey string, availableAt time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("tasks: marshal payload: %w", err)
	}
	const query = `
		INSERT INTO task_outbox (queue, task_name, payload, idempotency_key, available_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.Querier(ctx).ExecContext(ctx, query, queue, taskName, body, idempotencyKey, availableAt); err != nil {
		return fmt.Errorf("tasks: insert outbox row: %w", err)
	}
	return nil
}
