package queue

import (
	"context"
	"encoding/json"
	"time"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const popTimeout = 5 * time.Second

// Worker consumes webhook jobs from one or more Redis queues and
// dispatches each to the first registered handler that claims its topic.
type Worker struct {
	client   *redis.Client
	queues   []string
	handlers []ports.JobHandler
	logger   zerolog.Logger
	done     chan struct{}
}

// NewWorker creates a worker reading from the given queue names.
func NewWorker(client *redis.Client, queues []string, logger zerolog.Logger) *Worker {
	return &Worker{
		client: client,
		queues: queues,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Register adds a job handler. Handlers are consulted in registration
// order.
func (w *Worker) Register(handler ports.JobHandler) {
	w.handlers = append(w.handlers, handler)
}

// Start runs the consume loop in a goroutine until the context is
// cancelled.
func (w *Worker) Start(ctx context.Context) {
	keys := make([]string, len(w.queues))
	for i, q := range w.queues {
		keys[i] = keyPrefix + q
	}

	go func() {
		defer close(w.done)
		w.logger.Info().
			Strs("queues", w.queues).
			Msg("Webhook worker started")

		for {
			if ctx.Err() != nil {
				w.logger.Info().Msg("Webhook worker stopped")
				return
			}

			result, err := w.client.BRPop(ctx, popTimeout, keys...).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					w.logger.Info().Msg("Webhook worker stopped")
					return
				}
				w.logger.Error().Err(err).Msg("Failed to pop webhook job")
				time.Sleep(time.Second)
				continue
			}

			// BRPop returns [key, value].
			if len(result) == 2 {
				w.process(ctx, []byte(result[1]))
			}
		}
	}()
}

// Wait blocks until the consume loop has exited.
func (w *Worker) Wait() {
	<-w.done
}

func (w *Worker) process(ctx context.Context, payload []byte) {
	var job domain.WebhookJob
	if err := json.Unmarshal(payload, &job); err != nil {
		w.logger.Error().Err(err).Msg("Failed to decode webhook job, dropping")
		return
	}

	for _, handler := range w.handlers {
		if !handler.CanHandle(job.Topic) {
			continue
		}

		if err := handler.Handle(ctx, &job); err != nil {
			w.logger.Error().
				Err(err).
				Str("jobId", job.ID).
				Str("topic", job.Topic).
				Str("shop", job.ShopDomain).
				Msg("Webhook job failed")
			return
		}

		w.logger.Info().
			Str("jobId", job.ID).
			Str("topic", job.Topic).
			Str("shop", job.ShopDomain).
			Msg("Webhook job processed")
		return
	}

	w.logger.Warn().
		Str("jobId", job.ID).
		Str("topic", job.Topic).
		Msg("No handler registered for webhook topic")
}
