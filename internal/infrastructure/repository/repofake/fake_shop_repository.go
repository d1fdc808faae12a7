// Package repofake provides an in-memory ShopRepository for tests.
package repofake

import (
	"context"
	"sync"
	"time"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/ports"
)

// ShopRepository keeps shops in a map keyed by domain. Safe for
// concurrent use.
type ShopRepository struct {
	mu    sync.RWMutex
	shops map[string]*domain.Shop

	// SaveErr, when set, is returned by Save. Lets tests exercise
	// persistence failures.
	SaveErr error

	// SaveCount tracks how many times Save was called.
	SaveCount int
}

func NewShopRepository() *ShopRepository {
	return &ShopRepository{shops: make(map[string]*domain.Shop)}
}

func (r *ShopRepository) Get(_ context.Context, shopDomain string) (*domain.Shop, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	shop, ok := r.shops[shopDomain]
	if !ok || shop.Trashed() {
		return nil, nil
	}
	return copyShop(shop), nil
}

func (r *ShopRepository) GetWithTrashed(_ context.Context, shopDomain string) (*domain.Shop, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	shop, ok := r.shops[shopDomain]
	if !ok {
		return nil, nil
	}
	return copyShop(shop), nil
}

func (r *ShopRepository) Save(_ context.Context, shop *domain.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SaveCount++
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.shops[shop.Domain] = copyShop(shop)
	return nil
}

func (r *ShopRepository) ListTrashedBefore(_ context.Context, cutoff time.Time) ([]*domain.Shop, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var shops []*domain.Shop
	for _, shop := range r.shops {
		if shop.DeletedAt != nil && !shop.DeletedAt.After(cutoff) {
			shops = append(shops, copyShop(shop))
		}
	}
	return shops, nil
}

func (r *ShopRepository) HardDelete(_ context.Context, shopDomain string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.shops, shopDomain)
	return nil
}

func copyShop(shop *domain.Shop) *domain.Shop {
	clone := *shop
	if shop.Metadata != nil {
		clone.Metadata = make(map[string]string, len(shop.Metadata))
		for k, v := range shop.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

var _ ports.ShopRepository = (*ShopRepository)(nil)
