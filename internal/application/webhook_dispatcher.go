package application

import (
	"context"
	"fmt"

	"shopify-auth-gateway/internal/config"
	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/infrastructure/metrics"
	"shopify-auth-gateway/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WebhookDispatcher turns verified webhook deliveries into queued jobs
// according to the configured topic routing table.
type WebhookDispatcher struct {
	routes map[string]config.WebhookRoute
	queue  ports.JobQueue
	logger zerolog.Logger
}

// NewWebhookDispatcher creates a dispatcher over the given routing table.
func NewWebhookDispatcher(routes map[string]config.WebhookRoute, queue ports.JobQueue, logger zerolog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{routes: routes, queue: queue, logger: logger}
}

// Dispatch enqueues a job for the topic. Unrouted topics are acknowledged
// and dropped so Shopify does not retry deliveries nobody consumes; the
// returned job is nil in that case.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, topic, shopDomain string, payload []byte) (*domain.WebhookJob, error) {
	route, ok := d.routes[topic]
	if !ok {
		d.logger.Info().
			Str("topic", topic).
			Str("shop", shopDomain).
			Msg("No route for webhook topic, dropping")
		metrics.WebhookJobs.WithLabelValues("ignored").Inc()
		return nil, nil
	}

	job := &domain.WebhookJob{
		ID:         uuid.New().String(),
		Topic:      topic,
		ShopDomain: shopDomain,
		Queue:      route.Queue,
		Payload:    payload,
		EnqueuedAt: domain.Now(),
	}

	if err := d.queue.Enqueue(ctx, route.Queue, job); err != nil {
		metrics.WebhookJobs.WithLabelValues("enqueue_failed").Inc()
		return nil, fmt.Errorf("failed to dispatch %s webhook for shop %s: %w", topic, shopDomain, err)
	}

	metrics.WebhookJobs.WithLabelValues("queued").Inc()
	return job, nil
}
