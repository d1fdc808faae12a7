package webhook_handlers_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"shopify-auth-gateway/internal/application/webhook_handlers"
	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/infrastructure/repository/repofake"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testShop = "test-store.myshopify.com"

func uninstallJob() *domain.WebhookJob {
	return &domain.WebhookJob{
		ID:         "job-1",
		Topic:      domain.WebhookTopicAppUninstalled,
		ShopDomain: testShop,
		Payload:    []byte(`{"domain":"` + testShop + `"}`),
		EnqueuedAt: time.Now(),
	}
}

func installedShop(t *testing.T, repo *repofake.ShopRepository) *domain.Shop {
	t.Helper()
	shop := domain.NewShop(testShop)
	shop.AccessToken = "access"
	shop.RefreshToken = "refresh"
	require.NoError(t, repo.Save(context.Background(), shop))
	return shop
}

func TestHandleUninstallTombstonesShop(t *testing.T) {
	repo := repofake.NewShopRepository()
	installedShop(t, repo)
	handler := webhook_handlers.NewAppUninstalledHandler(repo, zerolog.Nop())

	require.True(t, handler.CanHandle(domain.WebhookTopicAppUninstalled))
	require.NoError(t, handler.Handle(context.Background(), uninstallJob()))

	shop, err := repo.GetWithTrashed(context.Background(), testShop)
	require.NoError(t, err)
	require.True(t, shop.Trashed())
	require.Empty(t, shop.AccessToken)
	require.Empty(t, shop.RefreshToken)
}

func TestHandleUninstallForUnknownShopIsNoop(t *testing.T) {
	repo := repofake.NewShopRepository()
	handler := webhook_handlers.NewAppUninstalledHandler(repo, zerolog.Nop())

	require.NoError(t, handler.Handle(context.Background(), uninstallJob()))
}

func TestHandleUninstallIsIdempotent(t *testing.T) {
	repo := repofake.NewShopRepository()
	installedShop(t, repo)
	handler := webhook_handlers.NewAppUninstalledHandler(repo, zerolog.Nop())

	require.NoError(t, handler.Handle(context.Background(), uninstallJob()))
	first, err := repo.GetWithTrashed(context.Background(), testShop)
	require.NoError(t, err)

	require.NoError(t, handler.Handle(context.Background(), uninstallJob()))
	second, err := repo.GetWithTrashed(context.Background(), testShop)
	require.NoError(t, err)
	require.Equal(t, first.DeletedAt, second.DeletedAt, "replayed deliveries keep the original tombstone")
}

func TestShopRedactHandlerDeletesRecord(t *testing.T) {
	repo := repofake.NewShopRepository()
	shop := installedShop(t, repo)
	shop.MarkAsUninstalled()
	require.NoError(t, repo.Save(context.Background(), shop))

	handler := webhook_handlers.NewShopRedactHandler(repo, zerolog.Nop())
	require.True(t, handler.CanHandle(domain.WebhookTopicShopRedact))

	job := &domain.WebhookJob{
		ID:         "job-2",
		Topic:      domain.WebhookTopicShopRedact,
		ShopDomain: testShop,
		Payload:    []byte(`{"shop_domain":"` + testShop + `"}`),
	}
	require.NoError(t, handler.Handle(context.Background(), job))

	gone, err := repo.GetWithTrashed(context.Background(), testShop)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestCustomerHandlersForwardToCallback(t *testing.T) {
	var gotShop string
	var gotPayload json.RawMessage
	callback := func(_ context.Context, shopDomain string, payload json.RawMessage) error {
		gotShop = shopDomain
		gotPayload = payload
		return nil
	}

	handler := webhook_handlers.NewCustomersRedactHandler(callback, zerolog.Nop())
	require.True(t, handler.CanHandle(domain.WebhookTopicCustomersRedact))

	job := &domain.WebhookJob{
		ID:         "job-3",
		Topic:      domain.WebhookTopicCustomersRedact,
		ShopDomain: testShop,
		Payload:    []byte(`{"customer":{"id":42}}`),
	}
	require.NoError(t, handler.Handle(context.Background(), job))
	require.Equal(t, testShop, gotShop)
	require.JSONEq(t, `{"customer":{"id":42}}`, string(gotPayload))
}

func TestCustomerHandlersTolerateNilCallback(t *testing.T) {
	handler := webhook_handlers.NewCustomersDataRequestHandler(nil, zerolog.Nop())
	require.True(t, handler.CanHandle(domain.WebhookTopicCustomersDataRequest))

	job := &domain.WebhookJob{ID: "job-4", Topic: domain.WebhookTopicCustomersDataRequest, ShopDomain: testShop}
	require.NoError(t, handler.Handle(context.Background(), job))
}
