package tasks

import (
	"context"
	"time"

	"github.com/flightclaims/claims-engine/internal/platform/logging"
)

// Dispatcher drains task_outbox into the durable queue. It never runs a
// task's side effect itself — it only hands the message to Queue and
// marks the row dispatched. FetchPending and MarkDispatched run inside
// one transaction per batch (FOR UPDATE SKIP LOCKED held for its
// duration), so two dispatcher replicas never claim the same row; the
// enqueue itself is still at-least-once, since Redis isn't part of that
// transaction — a crash between enqueue and commit just means the row
// is picked up again next poll, and the worker's sent_events idempotency
// check absorbs the duplicate.
type Dispatcher struct {
	outbox   *OutboxStore
	queue    Queue
	batch    int
	interval time.Duration
	logger   *logging.Logger
}

func NewDispatcher(outbox *OutboxStore, queue Queue, batch int, interval time.Duration, logger *logging.Logger) *Dispatcher {
	if batch <= 0 {
		batch = 50
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Dispatcher{outbox: outbox, queue: queue, batch: batch, interval: interval, logger: logger}
}

// Run polls task_outbox until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.drainOnce(ctx); err != nil && d.logger != nil {
				d.logger.Error(ctx, "outbox drain failed", err, nil)
			}
		}
	}
}

func (d *Dispatcher) drainOnce(ctx context.Context) error {
	return d.outbox.WithTx(ctx, func(txCtx context.Context) error {
		rows, err := d.outbox.FetchPending(txCtx, d.batch)
		if err != nil {
			return err
		}
		for _, row := range rows {
			msg := Message{
				TaskName:       row.TaskName,
				Args:           row.Payload,
				IdempotencyKey: row.IdempotencyKey,
			}
			if err := d.queue.Enqueue(txCtx, row.Queue, msg); err != nil {
				if d.logger != nil {
					d.logger.Error(ctx, "enqueue outbox row failed", err, map[string]interface{}{"task_name": row.TaskName})
				}
				continue
			}
			if err := d.outbox.MarkDispatched(txCtx, row.ID); err != nil {
				return err
			}
		}
		return nil
	})
}
