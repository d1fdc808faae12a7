// Package queue implements the webhook job queue on Redis lists.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "webhook-jobs:"

// RedisQueue pushes webhook jobs onto per-queue Redis lists. Workers
// consume with BRPOP, so each job is delivered to exactly one worker.
type RedisQueue struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisQueue creates a Redis-backed job queue.
func NewRedisQueue(client *redis.Client, logger zerolog.Logger) *RedisQueue {
	return &RedisQueue{client: client, logger: logger}
}

// Enqueue serializes the job and pushes it onto the named queue.
func (q *RedisQueue) Enqueue(ctx context.Context, queueName string, job *domain.WebhookJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to serialize webhook job: %w", err)
	}

	if err := q.client.LPush(ctx, keyPrefix+queueName, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue webhook job: %w", err)
	}

	q.logger.Debug().
		Str("jobId", job.ID).
		Str("topic", job.Topic).
		Str("shop", job.ShopDomain).
		Str("queue", queueName).
		Msg("Webhook job enqueued")

	return nil
}

var _ ports.JobQueue = (*RedisQueue)(nil)
