package ports

import (
	"context"
	"net/http"

	"shopify-auth-gateway/internal/domain"
)

// EncryptionService provides encryption for sensitive data at rest. The
// repository applies it at its read/write edge so token secrets never hit
// storage in plaintext.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Verifier cryptographically validates an inbound request for one protocol
// and produces a verified shop-identity claim or a typed
// *domain.VerificationError.
type Verifier interface {
	Verify(r *http.Request) (*domain.VerifiedIdentity, error)
}

// RefreshResult is the raw answer of the external refresh endpoint.
// StillValid means the endpoint short-circuited because the current access
// token does not need renewal yet.
type RefreshResult struct {
	StillValid bool
	Bundle     *domain.TokenBundle
}

// TokenEndpoint abstracts the external token endpoint used for both the
// initial token exchange and subsequent refresh rotations. Rejections are
// returned as *domain.ExchangeError.
type TokenEndpoint interface {
	Exchange(ctx context.Context, shopDomain, identityToken, accessMode string) (*domain.TokenBundle, error)
	Refresh(ctx context.Context, shopDomain string, current domain.TokenBundle) (*RefreshResult, error)
}

// TokenRefresher renews a shop's access token in place. Implemented by the
// application token service; consumed by the GraphQL client so it can
// recover from authentication-class failures.
type TokenRefresher interface {
	Refresh(ctx context.Context, shop *domain.Shop) (domain.RefreshOutcome, error)
}

// JobQueue submits async work. Queue mechanics (partitioning, delivery) are
// owned by the infrastructure implementation.
type JobQueue interface {
	Enqueue(ctx context.Context, queue string, job *domain.WebhookJob) error
}

// JobHandler processes dequeued webhook jobs. Mirrors the dispatcher
// registration model: the worker asks each handler whether it can take a
// topic.
type JobHandler interface {
	CanHandle(topic string) bool
	Handle(ctx context.Context, job *domain.WebhookJob) error
}

// WebhookInfo describes a webhook subscription registered with the Shopify
// Admin API.
type WebhookInfo struct {
	ID      uint64
	Topic   string
	Address string
}

// AdminClient is the thin Admin REST surface needed to keep webhook
// subscriptions registered for an installed shop.
type AdminClient interface {
	ListWebhooks(ctx context.Context, shopDomain, accessToken string) ([]WebhookInfo, error)
	CreateWebhook(ctx context.Context, shopDomain, accessToken, topic, address string) (*WebhookInfo, error)
}
