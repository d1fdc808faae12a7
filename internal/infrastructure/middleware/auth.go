// Package middleware adapts the authentication pipeline to chi handler
// chains and owns the per-protocol failure responses.
package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"shopify-auth-gateway/internal/application"
	"shopify-auth-gateway/internal/domain"

	"github.com/rs/zerolog"
)

// RetryInvalidSessionHeader tells App Bridge to mint a fresh session token
// and replay the request.
const RetryInvalidSessionHeader = "X-Shopify-Retry-Invalid-Session-Request"

// Auth builds per-protocol authentication middleware around the shared
// orchestrator.
type Auth struct {
	service    *application.AuthService
	bouncePath string
	logger     zerolog.Logger
}

// NewAuth creates the middleware factory. bouncePath is where embedded
// document requests are redirected to obtain a fresh session token.
func NewAuth(service *application.AuthService, bouncePath string, logger zerolog.Logger) *Auth {
	return &Auth{service: service, bouncePath: bouncePath, logger: logger}
}

// Protocol returns middleware that authenticates requests under the given
// protocol and binds the verified shop and identity into the request
// context.
func (a *Auth) Protocol(protocol domain.Protocol) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := a.service.Authenticate(r.Context(), protocol, r)
			if err != nil {
				a.reject(w, r, protocol, err)
				return
			}

			ctx := r.Context()
			if result.Identity != nil {
				ctx = domain.WithIdentity(ctx, result.Identity)
			}
			if result.Shop != nil {
				ctx = domain.WithShop(ctx, result.Shop)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Auth) reject(w http.ResponseWriter, r *http.Request, protocol domain.Protocol, err error) {
	shopDomain := ""
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		shopDomain = authErr.ShopDomain
	}

	a.logger.Warn().
		Str("protocol", string(protocol)).
		Str("shop", shopDomain).
		Str("path", r.URL.Path).
		Err(err).
		Msg("Request authentication failed")

	var refreshRequired *domain.TokenRefreshRequiredError
	if errors.As(err, &refreshRequired) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error":           "token refresh required",
			"requiresRefresh": true,
			"shop":            refreshRequired.ShopDomain,
		})
		return
	}

	// Webhook deliveries for shops we no longer know are acknowledged, not
	// rejected. Shopify retries non-2xx responses and the record will never
	// come back.
	var resolutionErr *domain.ResolutionError
	if protocol == domain.ProtocolWebhook && errors.As(err, &resolutionErr) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	switch protocol {
	case domain.ProtocolEmbeddedApp:
		a.rejectEmbedded(w, r, shopDomain)
	case domain.ProtocolAppProxy:
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "signature verification failed"})
	default:
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
	}
}

// rejectEmbedded splits embedded-app failures by request style. Document
// loads can follow a redirect to the bounce page, where App Bridge mints a
// fresh session token. Fetch calls cannot follow cross-frame redirects, so
// they get a 401 with the retry header and App Bridge replays them.
func (a *Auth) rejectEmbedded(w http.ResponseWriter, r *http.Request, shopDomain string) {
	if isDocumentRequest(r) {
		// Document loads arrive with shop and host query parameters even
		// when the session token is missing entirely. Prefer those so the
		// bounce page can rebuild the App Bridge context.
		shop := r.URL.Query().Get("shop")
		if shop == "" {
			shop = shopDomain
		}
		params := url.Values{
			"shop":           {shop},
			"shopify-reload": {r.URL.RequestURI()},
		}
		if host := r.URL.Query().Get("host"); host != "" {
			params.Set("host", host)
		}
		http.Redirect(w, r, a.bouncePath+"?"+params.Encode(), http.StatusFound)
		return
	}

	w.Header().Set(RetryInvalidSessionHeader, "1")
	writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid session token"})
}

func isDocumentRequest(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
