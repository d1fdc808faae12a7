package application

import (
	"context"
	"fmt"
	"time"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/ports"

	"github.com/rs/zerolog"
)

// CleanupService purges tombstoned shops once their retention window has
// lapsed. Scheduled by the retention sweep cron.
type CleanupService struct {
	repository    ports.ShopRepository
	retentionDays int
	logger        zerolog.Logger
}

// NewCleanupService creates the retention sweep service.
func NewCleanupService(repository ports.ShopRepository, retentionDays int, logger zerolog.Logger) *CleanupService {
	return &CleanupService{
		repository:    repository,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// PurgeUninstalledShops hard-deletes every tombstoned shop whose deletion
// marker is older than the retention window. Returns the number purged.
func (s *CleanupService) PurgeUninstalledShops(ctx context.Context) (int, error) {
	cutoff := domain.Now().AddDate(0, 0, -s.retentionDays)

	shops, err := s.repository.ListTrashedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list shops for retention sweep: %w", err)
	}

	purged := 0
	for _, shop := range shops {
		if err := s.repository.HardDelete(ctx, shop.Domain); err != nil {
			s.logger.Error().
				Err(err).
				Str("shop", shop.Domain).
				Msg("Failed to purge shop, will retry next sweep")
			continue
		}
		purged++
		s.logger.Info().
			Str("shop", shop.Domain).
			Time("deletedAt", derefTime(shop.DeletedAt)).
			Msg("Purged tombstoned shop past retention window")
	}

	if purged > 0 || len(shops) > 0 {
		s.logger.Info().
			Int("purged", purged).
			Int("candidates", len(shops)).
			Time("cutoff", cutoff).
			Msg("Retention sweep completed")
	}
	return purged, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
