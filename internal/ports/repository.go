package ports

import (
	"context"
	"time"

	"shopify-auth-gateway/internal/domain"
)

// ShopRepository defines the interface for shop credential persistence.
//
// Save must apply the whole record as a single atomic write: token rotation
// depends on the access token, refresh token and both expiries landing
// together, since a partial write would leave a replayable stale refresh
// token behind.
type ShopRepository interface {
	// Get retrieves a shop by domain, excluding tombstoned records.
	// Returns nil, nil when no live record exists.
	Get(ctx context.Context, shopDomain string) (*domain.Shop, error)

	// GetWithTrashed retrieves a shop by domain including tombstoned
	// records. Returns nil, nil when no record exists at all.
	GetWithTrashed(ctx context.Context, shopDomain string) (*domain.Shop, error)

	// Save upserts the shop record keyed by domain.
	Save(ctx context.Context, shop *domain.Shop) error

	// ListTrashedBefore returns tombstoned shops whose deletion marker is
	// at or before the cutoff. Used by the retention sweep.
	ListTrashedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Shop, error)

	// HardDelete permanently removes the record. Used by the shop-redaction
	// workflow and the retention sweep.
	HardDelete(ctx context.Context, shopDomain string) error
}
