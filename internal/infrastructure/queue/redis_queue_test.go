package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/infrastructure/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

// recordingHandler collects handled jobs.
type recordingHandler struct {
	mu     sync.Mutex
	topic  string
	jobs   []*domain.WebhookJob
	notify chan struct{}
}

func newRecordingHandler(topic string) *recordingHandler {
	return &recordingHandler{topic: topic, notify: make(chan struct{}, 16)}
}

func (h *recordingHandler) CanHandle(topic string) bool { return topic == h.topic }

func (h *recordingHandler) Handle(_ context.Context, job *domain.WebhookJob) error {
	h.mu.Lock()
	h.jobs = append(h.jobs, job)
	h.mu.Unlock()
	h.notify <- struct{}{}
	return nil
}

func (h *recordingHandler) handled() []*domain.WebhookJob {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*domain.WebhookJob(nil), h.jobs...)
}

func TestEnqueueAndConsumeRoundTrip(t *testing.T) {
	client := newTestRedis(t)
	q := queue.NewRedisQueue(client, zerolog.Nop())

	handler := newRecordingHandler("app/uninstalled")
	worker := queue.NewWorker(client, []string{"webhooks"}, zerolog.Nop())
	worker.Register(handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	job := &domain.WebhookJob{
		ID:         "job-1",
		Topic:      "app/uninstalled",
		ShopDomain: "test-store.myshopify.com",
		Queue:      "webhooks",
		Payload:    []byte(`{"domain":"test-store.myshopify.com"}`),
		EnqueuedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, q.Enqueue(ctx, "webhooks", job))

	select {
	case <-handler.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not consumed")
	}

	handled := handler.handled()
	require.Len(t, handled, 1)
	require.Equal(t, job.ID, handled[0].ID)
	require.Equal(t, job.Topic, handled[0].Topic)
	require.Equal(t, job.ShopDomain, handled[0].ShopDomain)
	require.JSONEq(t, string(job.Payload), string(handled[0].Payload))

	cancel()
	worker.Wait()
}

func TestWorkerConsumesMultipleQueues(t *testing.T) {
	client := newTestRedis(t)
	q := queue.NewRedisQueue(client, zerolog.Nop())

	uninstall := newRecordingHandler("app/uninstalled")
	redact := newRecordingHandler("shop/redact")
	worker := queue.NewWorker(client, []string{"webhooks", "gdpr"}, zerolog.Nop())
	worker.Register(uninstall)
	worker.Register(redact)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	require.NoError(t, q.Enqueue(ctx, "webhooks", &domain.WebhookJob{ID: "a", Topic: "app/uninstalled", Queue: "webhooks"}))
	require.NoError(t, q.Enqueue(ctx, "gdpr", &domain.WebhookJob{ID: "b", Topic: "shop/redact", Queue: "gdpr"}))

	for _, h := range []*recordingHandler{uninstall, redact} {
		select {
		case <-h.notify:
		case <-time.After(5 * time.Second):
			t.Fatalf("handler for %s did not run", h.topic)
		}
	}

	require.Len(t, uninstall.handled(), 1)
	require.Len(t, redact.handled(), 1)
}

func TestWorkerSkipsUnroutedTopic(t *testing.T) {
	client := newTestRedis(t)
	q := queue.NewRedisQueue(client, zerolog.Nop())

	handler := newRecordingHandler("app/uninstalled")
	worker := queue.NewWorker(client, []string{"webhooks"}, zerolog.Nop())
	worker.Register(handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	require.NoError(t, q.Enqueue(ctx, "webhooks", &domain.WebhookJob{ID: "x", Topic: "orders/create", Queue: "webhooks"}))
	require.NoError(t, q.Enqueue(ctx, "webhooks", &domain.WebhookJob{ID: "y", Topic: "app/uninstalled", Queue: "webhooks"}))

	select {
	case <-handler.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("routed job was not consumed")
	}

	handled := handler.handled()
	require.Len(t, handled, 1)
	require.Equal(t, "y", handled[0].ID)
}
