package application

import (
	"context"
	"fmt"
	"strings"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/ports"

	"github.com/rs/zerolog"
)

// WebhookSubscriptionService registers the gateway's webhook subscriptions
// with the Shopify Admin API after a shop installs.
type WebhookSubscriptionService struct {
	client ports.AdminClient
	topics []string
	appURL string
	logger zerolog.Logger
}

// NewWebhookSubscriptionService creates the bootstrap service. topics are
// the webhook topics the gateway wants delivered; appURL is the public
// base URL deliveries should target.
func NewWebhookSubscriptionService(client ports.AdminClient, topics []string, appURL string, logger zerolog.Logger) *WebhookSubscriptionService {
	return &WebhookSubscriptionService{
		client: client,
		topics: topics,
		appURL: strings.TrimRight(appURL, "/"),
		logger: logger,
	}
}

// EnsureSubscriptions creates any missing webhook subscriptions for the
// shop. Existing subscriptions for a topic are left alone regardless of
// their address, so manually registered endpoints survive. Idempotent.
func (s *WebhookSubscriptionService) EnsureSubscriptions(ctx context.Context, shop *domain.Shop) error {
	if shop.AccessToken == "" {
		return fmt.Errorf("shop %s has no access token for webhook registration", shop.Domain)
	}

	existing, err := s.client.ListWebhooks(ctx, shop.Domain, shop.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to list webhooks for shop %s: %w", shop.Domain, err)
	}

	subscribed := make(map[string]bool, len(existing))
	for _, hook := range existing {
		subscribed[hook.Topic] = true
	}

	address := s.appURL + "/webhooks/shopify"
	created := 0
	for _, topic := range s.topics {
		if subscribed[topic] {
			continue
		}
		hook, err := s.client.CreateWebhook(ctx, shop.Domain, shop.AccessToken, topic, address)
		if err != nil {
			return fmt.Errorf("failed to create %s webhook for shop %s: %w", topic, shop.Domain, err)
		}
		created++
		s.logger.Info().
			Str("shop", shop.Domain).
			Str("topic", topic).
			Uint64("webhookId", hook.ID).
			Msg("Webhook subscription created")
	}

	if created == 0 {
		s.logger.Debug().
			Str("shop", shop.Domain).
			Msg("All webhook subscriptions already present")
	}
	return nil
}
