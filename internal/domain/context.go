package domain

import "context"

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	shopContextKey     contextKey = "shopify_shop"
	identityContextKey contextKey = "shopify_identity"
)

// WithShop binds the authenticated shop to the request context. Downstream
// code receives the identity explicitly through the context, never from
// ambient state.
func WithShop(ctx context.Context, shop *Shop) context.Context {
	return context.WithValue(ctx, shopContextKey, shop)
}

// ShopFromContext returns the authenticated shop, or nil when the request
// was not authenticated (e.g. the app/uninstalled webhook).
func ShopFromContext(ctx context.Context) *Shop {
	shop, _ := ctx.Value(shopContextKey).(*Shop)
	return shop
}

// WithIdentity binds the verified identity claim to the request context.
func WithIdentity(ctx context.Context, identity *VerifiedIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext returns the verified identity claim, if any.
func IdentityFromContext(ctx context.Context) *VerifiedIdentity {
	identity, _ := ctx.Value(identityContextKey).(*VerifiedIdentity)
	return identity
}
