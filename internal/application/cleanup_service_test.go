package application_test

import (
	"context"
	"testing"
	"time"

	"shopify-auth-gateway/internal/application"
	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/infrastructure/repository/repofake"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func trashShop(t *testing.T, repo *repofake.ShopRepository, shopDomain string, deletedAt time.Time) {
	t.Helper()
	shop := domain.NewShop(shopDomain)
	shop.MarkAsUninstalled()
	shop.DeletedAt = &deletedAt
	require.NoError(t, repo.Save(context.Background(), shop))
}

func TestPurgeRemovesShopsPastRetention(t *testing.T) {
	repo := repofake.NewShopRepository()
	service := application.NewCleanupService(repo, 90, zerolog.Nop())

	trashShop(t, repo, "ancient.myshopify.com", time.Now().AddDate(0, 0, -120))
	trashShop(t, repo, "recent.myshopify.com", time.Now().AddDate(0, 0, -10))

	live := domain.NewShop("live.myshopify.com")
	require.NoError(t, repo.Save(context.Background(), live))

	purged, err := service.PurgeUninstalledShops(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, purged)

	gone, err := repo.GetWithTrashed(context.Background(), "ancient.myshopify.com")
	require.NoError(t, err)
	require.Nil(t, gone)

	kept, err := repo.GetWithTrashed(context.Background(), "recent.myshopify.com")
	require.NoError(t, err)
	require.NotNil(t, kept, "shops inside the retention window survive the sweep")

	stillLive, err := repo.Get(context.Background(), "live.myshopify.com")
	require.NoError(t, err)
	require.NotNil(t, stillLive)
}

func TestPurgeWithNothingToDo(t *testing.T) {
	repo := repofake.NewShopRepository()
	service := application.NewCleanupService(repo, 90, zerolog.Nop())

	purged, err := service.PurgeUninstalledShops(context.Background())
	require.NoError(t, err)
	require.Zero(t, purged)
}
