package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/infrastructure/metrics"
	"shopify-auth-gateway/internal/ports"

	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// GraphQLClient executes Admin API GraphQL operations with the shop's
// current access token. On an authentication-class failure it refreshes the
// token once and retries once; whatever the retry returns is final.
type GraphQLClient struct {
	apiVersion string
	refresher  ports.TokenRefresher
	limiter    *RateLimiter
	client     *http.Client
	logger     zerolog.Logger

	// BaseURL overrides the per-shop admin endpoint when non-empty.
	BaseURL string
}

// NewGraphQLClient creates an Admin API GraphQL client.
func NewGraphQLClient(apiVersion string, refresher ports.TokenRefresher, limiter *RateLimiter, logger zerolog.Logger) *GraphQLClient {
	return &GraphQLClient{
		apiVersion: apiVersion,
		refresher:  refresher,
		limiter:    limiter,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors gqlerror.List              `json:"errors"`
}

// Execute runs a query or mutation for the shop and returns the raw data
// object. Error shapes:
//   - *domain.TokenRefreshRequiredError: credentials are stale and could
//     not be refreshed; the caller must trigger re-authentication.
//   - *GraphQLError / *GraphQLUserError: response-level errors, never
//     retried.
//   - any other error: transport failure, propagated immediately.
func (c *GraphQLClient) Execute(ctx context.Context, shop *domain.Shop, query string, variables map[string]any) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, shop.Domain); err != nil {
			return nil, err
		}
	}

	data, err := c.do(ctx, shop, query, variables)
	var authErr *authRequestError
	if !errors.As(err, &authErr) {
		return data, err
	}

	c.logger.Info().
		Str("shop", shop.Domain).
		Int("status", authErr.status).
		Msg("GraphQL authentication error detected, attempting token refresh")

	outcome, refreshErr := c.refresher.Refresh(ctx, shop)
	if refreshErr != nil ||
		(outcome.Kind != domain.RefreshOutcomeRefreshed && outcome.Kind != domain.RefreshOutcomeStillValid) {
		return nil, &domain.TokenRefreshRequiredError{ShopDomain: shop.Domain}
	}

	// One retry with the rotated token, then we are done either way.
	metrics.GraphQLRetries.Inc()
	return c.do(ctx, shop, query, variables)
}

func (c *GraphQLClient) do(ctx context.Context, shop *domain.Shop, query string, variables map[string]any) (json.RawMessage, error) {
	endpoint := c.endpointFor(shop.Domain)

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", shop.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphql request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read graphql response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &authRequestError{status: resp.StatusCode, body: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		if isAuthenticationSignal(string(respBody)) {
			return nil, &authRequestError{status: resp.StatusCode, body: string(respBody)}
		}
		return nil, fmt.Errorf("graphql request returned status %d: %s", resp.StatusCode, respBody)
	}

	var parsed graphqlResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode graphql response: %w", err)
	}

	if len(parsed.Errors) > 0 {
		return nil, &GraphQLError{Errors: parsed.Errors}
	}

	if err := findUserErrors(parsed.Data); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(parsed.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode graphql data: %w", err)
	}
	return raw, nil
}

func (c *GraphQLClient) endpointFor(shopDomain string) string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shopDomain, c.apiVersion)
}

// findUserErrors scans each mutation result for a non-empty userErrors
// field.
func findUserErrors(data map[string]json.RawMessage) error {
	for mutation, raw := range data {
		var result struct {
			UserErrors []UserError `json:"userErrors"`
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			continue
		}
		if len(result.UserErrors) > 0 {
			return &GraphQLUserError{Mutation: mutation, Errors: result.UserErrors}
		}
	}
	return nil
}
