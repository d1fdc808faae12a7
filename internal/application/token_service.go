package application

import (
	"context"
	"errors"
	"fmt"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/infrastructure/metrics"
	"shopify-auth-gateway/internal/ports"

	"github.com/rs/zerolog"
)

// invalidGrantCodes are token endpoint rejections that mean the refresh
// token is terminally dead. Any of these clears stored credentials; every
// other rejection is treated as transient.
var invalidGrantCodes = map[string]bool{
	"invalid_grant":         true,
	"refresh_token_expired": true,
}

// TokenService owns the access token lifecycle: the initial exchange of a
// session token for an API token, refresh rotation, and credential
// clearing. It implements ports.TokenRefresher.
type TokenService struct {
	repository   ports.ShopRepository
	endpoint     ports.TokenEndpoint
	accessMode   string
	logLifecycle bool
	logger       zerolog.Logger
}

// NewTokenService creates the token lifecycle service. accessMode selects
// online or offline tokens for the initial exchange.
func NewTokenService(repository ports.ShopRepository, endpoint ports.TokenEndpoint, accessMode string, logLifecycle bool, logger zerolog.Logger) *TokenService {
	return &TokenService{
		repository:   repository,
		endpoint:     endpoint,
		accessMode:   accessMode,
		logLifecycle: logLifecycle,
		logger:       logger,
	}
}

// Exchange trades a verified session token for an API access token and
// persists the resulting bundle on the shop. The rotation counter restarts
// because exchange begins a new token lineage.
func (s *TokenService) Exchange(ctx context.Context, shop *domain.Shop, identityToken string) error {
	bundle, err := s.endpoint.Exchange(ctx, shop.Domain, identityToken, s.accessMode)
	if err != nil {
		return fmt.Errorf("token exchange for shop %s: %w", shop.Domain, err)
	}

	shop.ApplyExchange(*bundle)
	if err := s.repository.Save(ctx, shop); err != nil {
		return fmt.Errorf("failed to persist exchanged token for shop %s: %w", shop.Domain, err)
	}

	s.lifecycleEvent(shop, "token_exchanged")
	return nil
}

// Refresh rotates the shop's access token using its stored refresh token.
// The returned outcome is always meaningful even when err is non-nil:
//
//   - Refreshed: both tokens rotated and persisted atomically.
//   - StillValid: the endpoint declined because the current token has
//     enough life left; nothing was mutated.
//   - Failed: transient; nothing was mutated, the caller may retry.
//   - Invalidated: the refresh token is dead; all credentials were cleared
//     and the shop must re-authenticate through a fresh exchange.
func (s *TokenService) Refresh(ctx context.Context, shop *domain.Shop) (domain.RefreshOutcome, error) {
	outcome, err := s.refresh(ctx, shop)
	metrics.TokenRefreshes.WithLabelValues(outcome.String()).Inc()
	return outcome, err
}

func (s *TokenService) refresh(ctx context.Context, shop *domain.Shop) (domain.RefreshOutcome, error) {
	if shop.RefreshToken == "" {
		return domain.RefreshOutcome{
			Kind:   domain.RefreshOutcomeFailed,
			Reason: domain.RefreshFailureNoRefreshToken,
		}, fmt.Errorf("shop %s has no refresh token", shop.Domain)
	}

	if shop.IsRefreshTokenExpired() {
		if err := s.invalidate(ctx, shop, "refresh_token_expired"); err != nil {
			return domain.RefreshOutcome{Kind: domain.RefreshOutcomeFailed, Reason: domain.RefreshFailureEndpoint}, err
		}
		return domain.RefreshOutcome{Kind: domain.RefreshOutcomeInvalidated, Reason: "refresh_token_expired"}, nil
	}

	current := domain.TokenBundle{
		Token:                 shop.AccessToken,
		ExpiresAt:             shop.AccessTokenExpiresAt,
		RefreshToken:          shop.RefreshToken,
		RefreshTokenExpiresAt: shop.RefreshTokenExpiresAt,
	}

	result, err := s.endpoint.Refresh(ctx, shop.Domain, current)
	if err != nil {
		var exchangeErr *domain.ExchangeError
		if errors.As(err, &exchangeErr) && invalidGrantCodes[exchangeErr.Code] {
			if clearErr := s.invalidate(ctx, shop, exchangeErr.Code); clearErr != nil {
				return domain.RefreshOutcome{Kind: domain.RefreshOutcomeFailed, Reason: domain.RefreshFailureEndpoint}, clearErr
			}
			return domain.RefreshOutcome{Kind: domain.RefreshOutcomeInvalidated, Reason: exchangeErr.Code}, nil
		}
		return domain.RefreshOutcome{
			Kind:   domain.RefreshOutcomeFailed,
			Reason: domain.RefreshFailureEndpoint,
		}, fmt.Errorf("token refresh for shop %s: %w", shop.Domain, err)
	}

	if result.StillValid {
		return domain.RefreshOutcome{Kind: domain.RefreshOutcomeStillValid}, nil
	}

	shop.ApplyRefresh(*result.Bundle)
	if err := s.repository.Save(ctx, shop); err != nil {
		return domain.RefreshOutcome{
			Kind:   domain.RefreshOutcomeFailed,
			Reason: domain.RefreshFailureEndpoint,
		}, fmt.Errorf("failed to persist rotated tokens for shop %s: %w", shop.Domain, err)
	}

	s.lifecycleEvent(shop, "token_refreshed")
	return domain.RefreshOutcome{Kind: domain.RefreshOutcomeRefreshed}, nil
}

// ClearTokens removes all stored credentials for the shop. Idempotent.
func (s *TokenService) ClearTokens(ctx context.Context, shop *domain.Shop) error {
	shop.ClearTokens()
	if err := s.repository.Save(ctx, shop); err != nil {
		return fmt.Errorf("failed to clear tokens for shop %s: %w", shop.Domain, err)
	}
	s.lifecycleEvent(shop, "tokens_cleared")
	return nil
}

func (s *TokenService) invalidate(ctx context.Context, shop *domain.Shop, reason string) error {
	shop.ClearTokens()
	if err := s.repository.Save(ctx, shop); err != nil {
		return fmt.Errorf("failed to clear invalidated tokens for shop %s: %w", shop.Domain, err)
	}
	s.logger.Warn().
		Str("shop", shop.Domain).
		Str("reason", reason).
		Msg("Refresh token invalidated, credentials cleared")
	return nil
}

// lifecycleEvent records a token lifecycle transition. Only metadata is
// logged, never token values.
func (s *TokenService) lifecycleEvent(shop *domain.Shop, event string) {
	if !s.logLifecycle {
		return
	}
	entry := s.logger.Info().
		Str("shop", shop.Domain).
		Str("event", event).
		Int("refreshCount", shop.TokenRefreshCount)
	if shop.AccessTokenExpiresAt != nil {
		entry = entry.Time("accessTokenExpiresAt", *shop.AccessTokenExpiresAt)
	}
	entry.Msg("Token lifecycle event")
}

var _ ports.TokenRefresher = (*TokenService)(nil)
