package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrQueueEmpty is returned by Dequeue when nothing was available before
// the poll timeout elapsed.
var ErrQueueEmpty = errors.New("tasks: queue empty")

// Queue is the durable, per-name task list a worker pool consumes from.
type Queue interface {
	// Enqueue pushes msg onto queueName, available immediately.
	Enqueue(ctx context.Context, queueName string, msg Message) error
	// Dequeue blocks up to timeout for the next available message,
	// moving it onto an in-flight list so a worker crash doesn't lose it
	// silently — Ack or Requeue must follow.
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Message, error)
	// Ack removes msg from the in-flight list once its handler
	// completed (successfully or permanently failed).
	Ack(ctx context.Context, queueName string, msg Message) error
	// Requeue removes msg from the in-flight list and schedules it to
	// become available again after delay.
	Requeue(ctx context.Context, queueName string, msg Message, delay time.Duration) error
	// DeadLetter removes msg from the in-flight list and appends it to
	// the queue's dead-letter list for operator inspection.
	DeadLetter(ctx context.Context, queueName string, msg Message) error
}

// RedisQueue implements Queue with the standard Redis reliable-queue
// pattern: LPUSH onto the main list, BRPOPLPUSH into a processing list so
// an in-flight message survives a worker crash, and a sorted set for
// delayed (retry/scheduled) messages that a poller promotes once due.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func mainKey(queueName string) string       { return "tasks:" + queueName }
func processingKey(queueName string) string { return "tasks:" + queueName + ":processing" }
func delayedKey(queueName string) string    { return "tasks:" + queueName + ":delayed" }
func deadKey(queueName string) string       { return "tasks:" + queueName + ":dead" }

func (q *RedisQueue) Enqueue(ctx context.Context, queueName string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("tasks: marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, mainKey(queueName), body).Err(); err != nil {
		return fmt.Errorf("tasks: enqueue: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Message, error) {
	if err := q.promoteDue(ctx, queueName); err != nil {
		return nil, err
	}
	body, err := q.client.BRPopLPush(ctx, mainKey(queueName), processingKey(queueName), timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("tasks: dequeue: %w", err)
	}
	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, fmt.Errorf("tasks: unmarshal message: %w", err)
	}
	return &msg, nil
}

func (q *RedisQueue) Ack(ctx context.Context, queueName string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("tasks: marshal message: %w", err)
	}
	if err := q.client.LRem(ctx, processingKey(queueName), 1, body).Err(); err != nil {
		return fmt.Errorf("tasks: ack: %w", err)
	}
	return nil
}

func (q *RedisQueue) Requeue(ctx context.Context, queueName string, msg Message, delay time.Duration) error {
	if err := q.Ack(ctx, queueName, msg); err != nil {
		return err
	}
	msg.Attempt++
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("tasks: marshal message: %w", err)
	}
	score := float64(time.Now().Add(delay).Unix())
	if err := q.client.ZAdd(ctx, delayedKey(queueName), &redis.Z{Score: score, Member: body}).Err(); err != nil {
		return fmt.Errorf("tasks: requeue: %w", err)
	}
	return nil
}

func (q *RedisQueue) DeadLetter(ctx context.Context, queueName string, msg Message) error {
	if err := q.Ack(ctx, queueName, msg); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("tasks: marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, deadKey(queueName), body).Err(); err != nil {
		return fmt.Errorf("tasks: dead-letter: %w", err)
	}
	return nil
}

// promoteDue moves every delayed message whose score has elapsed back
// onto the main queue, so a retried or scheduled-for task becomes
// eligible for Dequeue without a separate scheduler process.
func (q *RedisQueue) promoteDue(ctx context.Context, queueName string) error {
	now := float64(time.Now().Unix())
	key := delayedKey(queueName)
	due, err := q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return fmt.Errorf("tasks: scan delayed: %w", err)
	}
	for _, body := range due {
		pipe := q.client.TxPipeline()
		pipe.LPush(ctx, mainKey(queueName), body)
		pipe.ZRem(ctx, key, body)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("tasks: promote delayed: %w", err)
		}
	}
	return nil
}
