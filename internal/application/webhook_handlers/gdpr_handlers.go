package webhook_handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/ports"

	"github.com/rs/zerolog"
)

// CustomerDataCallback lets the host application act on the customer GDPR
// webhooks. The gateway itself stores no customer data, so these events
// are forwarded rather than handled in place.
type CustomerDataCallback func(ctx context.Context, shopDomain string, payload json.RawMessage) error

// ShopRedactHandler permanently deletes the shop record when Shopify
// requests shop data erasure. Sent 48 hours after uninstall.
type ShopRedactHandler struct {
	repository ports.ShopRepository
	logger     zerolog.Logger
}

func NewShopRedactHandler(repository ports.ShopRepository, logger zerolog.Logger) *ShopRedactHandler {
	return &ShopRedactHandler{repository: repository, logger: logger}
}

func (h *ShopRedactHandler) CanHandle(topic string) bool {
	return topic == domain.WebhookTopicShopRedact
}

func (h *ShopRedactHandler) Handle(ctx context.Context, job *domain.WebhookJob) error {
	if err := h.repository.HardDelete(ctx, job.ShopDomain); err != nil {
		return fmt.Errorf("failed to redact shop %s: %w", job.ShopDomain, err)
	}
	h.logger.Info().
		Str("shop", job.ShopDomain).
		Msg("Shop record permanently deleted on redaction request")
	return nil
}

// CustomersRedactHandler forwards customer erasure requests to the host
// callback.
type CustomersRedactHandler struct {
	callback CustomerDataCallback
	logger   zerolog.Logger
}

func NewCustomersRedactHandler(callback CustomerDataCallback, logger zerolog.Logger) *CustomersRedactHandler {
	return &CustomersRedactHandler{callback: callback, logger: logger}
}

func (h *CustomersRedactHandler) CanHandle(topic string) bool {
	return topic == domain.WebhookTopicCustomersRedact
}

func (h *CustomersRedactHandler) Handle(ctx context.Context, job *domain.WebhookJob) error {
	h.logger.Info().
		Str("shop", job.ShopDomain).
		Msg("Customer redaction request received")
	if h.callback == nil {
		return nil
	}
	return h.callback(ctx, job.ShopDomain, job.Payload)
}

// CustomersDataRequestHandler forwards customer data access requests to
// the host callback.
type CustomersDataRequestHandler struct {
	callback CustomerDataCallback
	logger   zerolog.Logger
}

func NewCustomersDataRequestHandler(callback CustomerDataCallback, logger zerolog.Logger) *CustomersDataRequestHandler {
	return &CustomersDataRequestHandler{callback: callback, logger: logger}
}

func (h *CustomersDataRequestHandler) CanHandle(topic string) bool {
	return topic == domain.WebhookTopicCustomersDataRequest
}

func (h *CustomersDataRequestHandler) Handle(ctx context.Context, job *domain.WebhookJob) error {
	h.logger.Info().
		Str("shop", job.ShopDomain).
		Msg("Customer data request received")
	if h.callback == nil {
		return nil
	}
	return h.callback(ctx, job.ShopDomain, job.Payload)
}

var (
	_ ports.JobHandler = (*ShopRedactHandler)(nil)
	_ ports.JobHandler = (*CustomersRedactHandler)(nil)
	_ ports.JobHandler = (*CustomersDataRequestHandler)(nil)
)
