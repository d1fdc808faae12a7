// Package webhook_handlers contains the job handlers consumed by the
// webhook worker.
package webhook_handlers

import (
	"context"
	"fmt"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/ports"

	"github.com/rs/zerolog"
)

// AppUninstalledHandler tombstones the shop and wipes its credentials when
// the app is removed from a store.
type AppUninstalledHandler struct {
	repository ports.ShopRepository
	logger     zerolog.Logger
}

// NewAppUninstalledHandler creates the uninstall handler.
func NewAppUninstalledHandler(repository ports.ShopRepository, logger zerolog.Logger) *AppUninstalledHandler {
	return &AppUninstalledHandler{repository: repository, logger: logger}
}

// CanHandle returns true for the app/uninstalled topic.
func (h *AppUninstalledHandler) CanHandle(topic string) bool {
	return topic == domain.WebhookTopicAppUninstalled
}

// Handle marks the shop uninstalled. Deliveries for unknown or already
// tombstoned shops are acknowledged without effect, since Shopify retries
// webhooks and uninstall events can arrive more than once.
func (h *AppUninstalledHandler) Handle(ctx context.Context, job *domain.WebhookJob) error {
	shop, err := h.repository.GetWithTrashed(ctx, job.ShopDomain)
	if err != nil {
		return fmt.Errorf("failed to load shop %s: %w", job.ShopDomain, err)
	}
	if shop == nil {
		h.logger.Info().
			Str("shop", job.ShopDomain).
			Msg("Uninstall webhook for unknown shop, ignoring")
		return nil
	}
	if shop.Trashed() {
		h.logger.Info().
			Str("shop", job.ShopDomain).
			Msg("Uninstall webhook for already tombstoned shop, ignoring")
		return nil
	}

	shop.MarkAsUninstalled()
	if err := h.repository.Save(ctx, shop); err != nil {
		return fmt.Errorf("failed to persist uninstall for shop %s: %w", job.ShopDomain, err)
	}

	h.logger.Info().
		Str("shop", shop.Domain).
		Msg("Shop marked as uninstalled, credentials cleared")
	return nil
}

var _ ports.JobHandler = (*AppUninstalledHandler)(nil)
