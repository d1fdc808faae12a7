package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/ports"

	"github.com/rs/zerolog"
)

// Token-exchange grant parameters (RFC 8693 profile used by Shopify).
const (
	grantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	grantTypeRefreshToken  = "refresh_token"
	subjectTokenTypeID     = "urn:ietf:params:oauth:token-type:id-token"
	tokenTypeOffline       = "urn:shopify:params:oauth:token-type:offline-access-token"
	tokenTypeOnline        = "urn:shopify:params:oauth:token-type:online-access-token"
)

// stillValidBuffer mirrors the endpoint's short-circuit: an access token
// with more than this much lifetime left is not worth a refresh round trip.
const stillValidBuffer = 60 * time.Second

// TokenEndpoint talks to Shopify's per-shop token endpoint
// (https://<domain>/admin/oauth/access_token) for both the initial token
// exchange and subsequent refresh rotations.
type TokenEndpoint struct {
	apiKey    string
	apiSecret string
	client    *http.Client
	logger    zerolog.Logger

	// BaseURL overrides the per-shop endpoint URL. Tests point it at a
	// local server; leave empty in production.
	BaseURL string
}

// NewTokenEndpoint creates the HTTP token endpoint client.
func NewTokenEndpoint(apiKey, apiSecret string, logger zerolog.Logger) *TokenEndpoint {
	return &TokenEndpoint{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	Scope                 string `json:"scope"`
	ExpiresIn             *int64 `json:"expires_in"`
	RefreshToken          string `json:"refresh_token"`
	RefreshTokenExpiresIn *int64 `json:"refresh_token_expires_in"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange converts a verified identity token into an access token bundle.
func (e *TokenEndpoint) Exchange(ctx context.Context, shopDomain, identityToken, accessMode string) (*domain.TokenBundle, error) {
	requested := tokenTypeOffline
	if accessMode == domain.AccessModeOnline {
		requested = tokenTypeOnline
	}

	payload := map[string]string{
		"client_id":            e.apiKey,
		"client_secret":        e.apiSecret,
		"grant_type":           grantTypeTokenExchange,
		"subject_token":        identityToken,
		"subject_token_type":   subjectTokenTypeID,
		"requested_token_type": requested,
	}

	bundle, err := e.post(ctx, shopDomain, payload)
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("shop", shopDomain).
		Str("access_mode", accessMode).
		Bool("has_refresh_token", bundle.RefreshToken != "").
		Msg("Token exchange completed")

	return bundle, nil
}

// Refresh rotates the bundle using the current refresh token. When the
// access token still has more than a minute of life left the call
// short-circuits with StillValid and makes no network round trip.
func (e *TokenEndpoint) Refresh(ctx context.Context, shopDomain string, current domain.TokenBundle) (*ports.RefreshResult, error) {
	if current.ExpiresAt != nil && time.Until(*current.ExpiresAt) > stillValidBuffer {
		return &ports.RefreshResult{StillValid: true}, nil
	}

	payload := map[string]string{
		"client_id":     e.apiKey,
		"client_secret": e.apiSecret,
		"grant_type":    grantTypeRefreshToken,
		"refresh_token": current.RefreshToken,
	}

	bundle, err := e.post(ctx, shopDomain, payload)
	if err != nil {
		return nil, err
	}

	return &ports.RefreshResult{Bundle: bundle}, nil
}

func (e *TokenEndpoint) post(ctx context.Context, shopDomain string, payload map[string]string) (*domain.TokenBundle, error) {
	endpoint := fmt.Sprintf("https://%s/admin/oauth/access_token", shopDomain)
	if e.BaseURL != "" {
		endpoint = e.BaseURL + "/admin/oauth/access_token"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp tokenErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil || errResp.Error == "" {
			errResp.Error = fmt.Sprintf("http_%d", resp.StatusCode)
			errResp.ErrorDescription = string(respBody)
		}
		return nil, &domain.ExchangeError{Code: errResp.Error, Detail: errResp.ErrorDescription}
	}

	var tr tokenResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, &domain.ExchangeError{Code: "no_access_token", Detail: "token endpoint returned no access token"}
	}

	bundle := &domain.TokenBundle{
		Token:        tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn != nil {
		expires := domain.Now().Add(time.Duration(*tr.ExpiresIn) * time.Second)
		bundle.ExpiresAt = &expires
	}
	if tr.RefreshTokenExpiresIn != nil {
		expires := domain.Now().Add(time.Duration(*tr.RefreshTokenExpiresIn) * time.Second)
		bundle.RefreshTokenExpiresAt = &expires
	}

	return bundle, nil
}

var _ ports.TokenEndpoint = (*TokenEndpoint)(nil)
