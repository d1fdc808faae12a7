package shopify

import (
	"context"
	"fmt"

	"shopify-auth-gateway/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

// adminClient is the Admin REST adapter used for webhook subscription
// management. GraphQL execution has its own client; this one only covers
// the REST surface the subscription bootstrap needs.
type adminClient struct {
	app    goshopify.App
	logger zerolog.Logger
}

// NewAdminClient creates an Admin REST client adapter.
func NewAdminClient(apiKey, apiSecret string, logger zerolog.Logger) ports.AdminClient {
	return &adminClient{
		app: goshopify.App{
			ApiKey:    apiKey,
			ApiSecret: apiSecret,
		},
		logger: logger,
	}
}

func (c *adminClient) createClient(shopDomain, accessToken string) (*goshopify.Client, error) {
	client, err := goshopify.NewClient(c.app, shopDomain, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func (c *adminClient) ListWebhooks(ctx context.Context, shopDomain, accessToken string) ([]ports.WebhookInfo, error) {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	webhooks, err := client.Webhook.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}

	infos := make([]ports.WebhookInfo, 0, len(webhooks))
	for _, webhook := range webhooks {
		infos = append(infos, ports.WebhookInfo{
			ID:      webhook.Id,
			Topic:   webhook.Topic,
			Address: webhook.Address,
		})
	}
	return infos, nil
}

func (c *adminClient) CreateWebhook(ctx context.Context, shopDomain, accessToken, topic, address string) (*ports.WebhookInfo, error) {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	created, err := client.Webhook.Create(ctx, goshopify.Webhook{
		Topic:   topic,
		Address: address,
		Format:  "json",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}
	return &ports.WebhookInfo{
		ID:      created.Id,
		Topic:   created.Topic,
		Address: created.Address,
	}, nil
}
