package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/flightclaims/claims-engine/internal/platform/logging"
	"github.com/flightclaims/claims-engine/internal/platform/resilience"
)

// MaxAttempts bounds how many times in total (the first run included) a
// task is run before it is dead-lettered regardless of what the handler
// itself asked for.
const MaxAttempts = 3

// Handler runs one task's side effect and reports how the worker should
// proceed — the explicit result value standing in for the exception-based
// retry logic a dynamically typed runtime would otherwise rely on.
type Handler func(ctx context.Context, msg Message) RetryDecision

// Registry maps task names to the handler that runs them.
type Registry map[string]Handler

// Pool runs a fixed number of goroutines pulling from one named queue,
// enforcing idempotent delivery and bounded retries.
type Pool struct {
	queueName   string
	queue       Queue
	sentEvents  *SentEvents
	registry    Registry
	concurrency int
	backoff     resilience.RetryConfig
	logger      *logging.Logger
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	QueueName   string
	Concurrency int
	Backoff     resilience.RetryConfig
}

// DefaultPoolConfig matches the document-pipeline/WebDAV retry shape: the
// same backoff curve, reused rather than re-tuned per queue.
func DefaultPoolConfig(queueName string) PoolConfig {
	return PoolConfig{
		QueueName:   queueName,
		Concurrency: 4,
		Backoff:     resilience.DefaultRetryConfig(),
	}
}

func NewPool(cfg PoolConfig, queue Queue, sentEvents *SentEvents, registry Registry, logger *logging.Logger) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{
		queueName:   cfg.QueueName,
		queue:       queue,
		sentEvents:  sentEvents,
		registry:    registry,
		concurrency: concurrency,
		backoff:     cfg.Backoff,
		logger:      logger,
	}
}

// Run starts concurrency worker goroutines and blocks until ctx is
// canceled and every goroutine has drained its current message.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := p.queue.Dequeue(ctx, p.queueName, 5*time.Second)
		if errors.Is(err, ErrQueueEmpty) {
			continue
		}
		if err != nil {
			if p.logger != nil {
				p.logger.Error(ctx, "dequeue failed", err, map[string]interface{}{"queue": p.queueName})
			}
			continue
		}
		p.process(ctx, *msg)
	}
}

func (p *Pool) process(ctx context.Context, msg Message) {
	first, err := p.sentEvents.Claim(ctx, msg.IdempotencyKey, msg.TaskName)
	if err != nil {
		if p.logger != nil {
			p.logger.Error(ctx, "idempotency claim failed", err, map[string]interface{}{"task_name": msg.TaskName})
		}
		// Leave the message in-flight on the processing list. Nothing in
		// this package moves in-flight messages back onto the queue, so it
		// is not redelivered automatically.
		return
	}
	if !first {
		_ = p.queue.Ack(ctx, p.queueName, msg)
		return
	}

	handler, ok := p.registry[msg.TaskName]
	if !ok {
		if p.logger != nil {
			p.logger.Error(ctx, "no handler registered", errors.New(msg.TaskName), map[string]interface{}{"queue": p.queueName})
		}
		_ = p.queue.DeadLetter(ctx, p.queueName, msg)
		return
	}

	decision := handler(ctx, msg)

	switch {
	case decision.isDone():
		_ = p.queue.Ack(ctx, p.queueName, msg)
	case decision.shouldRetry && msg.Attempt+1 < MaxAttempts:
		delay := decision.after
		if delay <= 0 {
			delay = resilience.BackoffForAttempt(msg.Attempt, p.backoff)
		}
		_ = p.queue.Requeue(ctx, p.queueName, msg, delay)
	default:
		_ = p.queue.DeadLetter(ctx, p.queueName, msg)
	}
}
