package application

import (
	"context"
	"net/http"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/infrastructure/metrics"
	"shopify-auth-gateway/internal/ports"

	"github.com/rs/zerolog"
)

// ResolutionPolicy controls what happens when a verified domain has no
// usable shop record.
type ResolutionPolicy int

const (
	// ResolveCreateOrRestore creates an unknown shop and restores a
	// tombstoned one. First-contact surfaces use this.
	ResolveCreateOrRestore ResolutionPolicy = iota
	// ResolveRequireExisting rejects unknown and tombstoned shops.
	ResolveRequireExisting
)

// protocolRule is the per-protocol wiring of the orchestrator.
type protocolRule struct {
	verifier ports.Verifier
	policy   ResolutionPolicy
	// exchangeable marks protocols whose identity token can be traded for
	// an API access token.
	exchangeable bool
	// requireToken demands a stored access token once resolution succeeds.
	requireToken bool
}

// AuthResult is the positive outcome of request authentication. Shop may
// be tombstoned on the uninstall webhook path, which accepts deliveries
// for shops that have already left.
type AuthResult struct {
	Protocol domain.Protocol
	Identity *domain.VerifiedIdentity
	Shop     *domain.Shop
}

// AuthService runs the shared authentication pipeline: verify the request
// cryptographically, resolve the shop record under the protocol's policy,
// perform token exchange when the protocol allows it, and require an
// access token where one is needed. Every failure is wrapped in
// *domain.AuthError carrying protocol and shop context.
type AuthService struct {
	rules     map[domain.Protocol]protocolRule
	shops     ports.ShopRepository
	tokens    *TokenService
	onInstall func(shop *domain.Shop)
	logger    zerolog.Logger
}

// NewAuthService wires the orchestrator. Verifiers are supplied per
// protocol; resolution policy and exchangeability follow the protocol's
// trust model.
func NewAuthService(
	shops ports.ShopRepository,
	tokens *TokenService,
	embeddedApp, adminExtension, customerExtension, appProxy, webhook, flowAction ports.Verifier,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		rules: map[domain.Protocol]protocolRule{
			domain.ProtocolEmbeddedApp: {
				verifier: embeddedApp, policy: ResolveCreateOrRestore, exchangeable: true, requireToken: true,
			},
			domain.ProtocolAdminUIExtension: {
				verifier: adminExtension, policy: ResolveCreateOrRestore, exchangeable: true, requireToken: true,
			},
			domain.ProtocolCustomerAccountUIExtension: {
				verifier: customerExtension, policy: ResolveRequireExisting, requireToken: false,
			},
			domain.ProtocolAppProxy: {
				verifier: appProxy, policy: ResolveRequireExisting, requireToken: true,
			},
			domain.ProtocolWebhook: {
				verifier: webhook, policy: ResolveRequireExisting, requireToken: false,
			},
			domain.ProtocolFlowAction: {
				verifier: flowAction, policy: ResolveRequireExisting, requireToken: true,
			},
		},
		shops:  shops,
		tokens: tokens,
		logger: logger,
	}
}

// OnFirstInstall registers a callback invoked after a shop completes its
// first token exchange. Used for webhook subscription bootstrap; the
// callback runs on the request goroutine and should hand off quickly.
func (s *AuthService) OnFirstInstall(fn func(shop *domain.Shop)) {
	s.onInstall = fn
}

// Authenticate runs the pipeline for one protocol against an inbound
// request.
func (s *AuthService) Authenticate(ctx context.Context, protocol domain.Protocol, r *http.Request) (*AuthResult, error) {
	result, err := s.authenticate(ctx, protocol, r)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(string(protocol), "failure").Inc()
		return nil, err
	}
	metrics.AuthAttempts.WithLabelValues(string(protocol), "success").Inc()
	return result, nil
}

func (s *AuthService) authenticate(ctx context.Context, protocol domain.Protocol, r *http.Request) (*AuthResult, error) {
	rule, ok := s.rules[protocol]
	if !ok || rule.verifier == nil {
		return nil, &domain.AuthError{Protocol: protocol, Err: &domain.VerificationError{
			Protocol: protocol, Reason: domain.ReasonInvalidToken, Detail: "no verifier configured",
		}}
	}

	identity, err := rule.verifier.Verify(r)
	if err != nil {
		return nil, &domain.AuthError{Protocol: protocol, Err: err}
	}

	// The uninstall webhook is accepted even when the record is already
	// tombstoned, so it resolves through GetWithTrashed instead of the
	// protocol rule. A delivery for a domain that was never installed is
	// still ignored like any other unknown-shop webhook.
	if protocol == domain.ProtocolWebhook && r.Header.Get("X-Shopify-Topic") == domain.WebhookTopicAppUninstalled {
		shop, err := s.shops.GetWithTrashed(ctx, identity.ShopDomain)
		if err != nil {
			return nil, &domain.AuthError{Protocol: protocol, ShopDomain: identity.ShopDomain, Err: err}
		}
		if shop == nil {
			return nil, &domain.AuthError{Protocol: protocol, ShopDomain: identity.ShopDomain, Err: &domain.ResolutionError{
				Protocol: protocol, Reason: domain.ReasonShopNotFound, ShopDomain: identity.ShopDomain,
			}}
		}
		return &AuthResult{Protocol: protocol, Identity: identity, Shop: shop}, nil
	}

	shop, err := s.resolve(ctx, protocol, rule.policy, identity)
	if err != nil {
		return nil, &domain.AuthError{Protocol: protocol, ShopDomain: identity.ShopDomain, Err: err}
	}

	if rule.exchangeable && shop.AccessToken == "" {
		firstExchange := shop.AccessTokenLastRefreshedAt == nil
		if err := s.tokens.Exchange(ctx, shop, identity.IdentityToken); err != nil {
			return nil, &domain.AuthError{Protocol: protocol, ShopDomain: shop.Domain, Err: err}
		}
		if firstExchange && s.onInstall != nil {
			s.onInstall(shop)
		}
	}

	if rule.requireToken && shop.AccessToken == "" {
		return nil, &domain.AuthError{Protocol: protocol, ShopDomain: shop.Domain, Err: &domain.MissingAccessTokenError{
			Protocol: protocol, ShopDomain: shop.Domain,
		}}
	}

	return &AuthResult{Protocol: protocol, Identity: identity, Shop: shop}, nil
}

func (s *AuthService) resolve(ctx context.Context, protocol domain.Protocol, policy ResolutionPolicy, identity *domain.VerifiedIdentity) (*domain.Shop, error) {
	if policy == ResolveRequireExisting {
		shop, err := s.shops.Get(ctx, identity.ShopDomain)
		if err != nil {
			return nil, err
		}
		if shop == nil {
			reason := domain.ReasonShopNotFound
			if trashed, err := s.shops.GetWithTrashed(ctx, identity.ShopDomain); err == nil && trashed != nil {
				reason = domain.ReasonShopUninstalled
			}
			return nil, &domain.ResolutionError{Protocol: protocol, Reason: reason, ShopDomain: identity.ShopDomain}
		}
		return shop, nil
	}

	shop, err := s.shops.GetWithTrashed(ctx, identity.ShopDomain)
	if err != nil {
		return nil, err
	}

	switch {
	case shop == nil:
		shop = domain.NewShop(identity.ShopDomain)
		s.logger.Info().Str("shop", shop.Domain).Msg("First contact, creating shop record")
	case shop.Trashed():
		shop.MarkAsReinstalled("")
		s.logger.Info().Str("shop", shop.Domain).Msg("Tombstoned shop returned, restoring record")
	default:
		return shop, nil
	}

	if err := s.shops.Save(ctx, shop); err != nil {
		return nil, err
	}
	return shop, nil
}
