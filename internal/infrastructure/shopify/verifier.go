package shopify

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/ports"

	"github.com/golang-jwt/jwt/v5"
)

// Header names used by Shopify webhook-family requests.
const (
	HeaderHmacSHA256 = "X-Shopify-Hmac-Sha256"
	HeaderShopDomain = "X-Shopify-Shop-Domain"
	HeaderTopic      = "X-Shopify-Topic"
)

// SessionTokenVerifier validates App Bridge session tokens carried by
// embedded-app and UI-extension requests. The token is an HS256 JWT signed
// with the app secret; the audience must equal the API key and the dest
// claim (https://<domain>/admin) names the shop.
type SessionTokenVerifier struct {
	protocol domain.Protocol
	parser   *jwt.Parser
	secret   []byte
}

// NewSessionTokenVerifier creates a verifier for one session-token protocol.
func NewSessionTokenVerifier(protocol domain.Protocol, apiKey, apiSecret string) *SessionTokenVerifier {
	return &SessionTokenVerifier{
		protocol: protocol,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithAudience(apiKey),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
		secret: []byte(apiSecret),
	}
}

// Verify implements ports.Verifier.
func (v *SessionTokenVerifier) Verify(r *http.Request) (*domain.VerifiedIdentity, error) {
	raw := extractSessionToken(r)
	if raw == "" {
		return nil, &domain.VerificationError{
			Protocol: v.protocol,
			Reason:   domain.ReasonMissingHeader,
			Detail:   "no session token in Authorization header or id_token parameter",
		}
	}

	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, &domain.VerificationError{
			Protocol: v.protocol,
			Reason:   domain.ReasonInvalidToken,
			Detail:   "session token signature or expiry check failed",
		}
	}

	dest, _ := claims["dest"].(string)
	if dest == "" {
		return nil, &domain.VerificationError{
			Protocol: v.protocol,
			Reason:   domain.ReasonMissingClaim,
			Detail:   "session token missing dest claim",
		}
	}

	shopDomain, err := shopDomainFromDest(dest)
	if err != nil {
		return nil, &domain.VerificationError{
			Protocol: v.protocol,
			Reason:   domain.ReasonMissingClaim,
			Detail:   "could not extract shop domain from dest claim",
		}
	}

	// The issuer must name the same shop as dest; a mismatch means the
	// token was minted for a different store.
	if iss, _ := claims["iss"].(string); iss != "" {
		issHost := hostOf(iss)
		if issHost != "" && issHost != shopDomain {
			return nil, &domain.VerificationError{
				Protocol: v.protocol,
				Reason:   domain.ReasonInvalidToken,
				Detail:   "issuer does not match dest shop",
			}
		}
	}

	identity := &domain.VerifiedIdentity{
		ShopDomain:    shopDomain,
		IdentityToken: raw,
	}
	if sub, _ := claims["sub"].(string); sub != "" {
		identity.ExtensionUserID = sub
	}
	return identity, nil
}

func extractSessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("id_token")
}

// shopDomainFromDest parses the dest claim (https://<domain>/admin) and
// returns the shop domain.
func shopDomainFromDest(dest string) (string, error) {
	u, err := url.Parse(dest)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("dest claim %q has no host", dest)
	}
	return u.Host, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// WebhookVerifier recomputes an HMAC-SHA256 over the exact raw request body
// and compares it constant-time against the X-Shopify-Hmac-Sha256 header.
//
// The shop domain is read from X-Shopify-Shop-Domain, which is not bound
// into the signature. That is an accepted trust boundary: the orchestrator
// always resolves the domain against the credential store, so a forged
// header can at most select a shop that already trusts this app.
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier creates a webhook HMAC verifier.
func NewWebhookVerifier(apiSecret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(apiSecret)}
}

// Verify implements ports.Verifier.
func (v *WebhookVerifier) Verify(r *http.Request) (*domain.VerifiedIdentity, error) {
	signature := r.Header.Get(HeaderHmacSHA256)
	if signature == "" {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolWebhook,
			Reason:   domain.ReasonMissingHeader,
			Detail:   "missing " + HeaderHmacSHA256 + " header",
		}
	}

	body, err := readAndRestoreBody(r)
	if err != nil {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolWebhook,
			Reason:   domain.ReasonInvalidSignature,
			Detail:   "could not read request body",
		}
	}

	if !verifyBodyHmac(v.secret, body, signature) {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolWebhook,
			Reason:   domain.ReasonInvalidSignature,
		}
	}

	shopDomain := r.Header.Get(HeaderShopDomain)
	if shopDomain == "" {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolWebhook,
			Reason:   domain.ReasonMissingHeader,
			Detail:   "missing " + HeaderShopDomain + " header",
		}
	}

	return &domain.VerifiedIdentity{ShopDomain: shopDomain}, nil
}

// AppProxyVerifier validates storefront app-proxy requests: a hex
// HMAC-SHA256 in the signature query parameter, computed over the sorted
// remaining parameters concatenated as key=value pairs with no separators.
// The timestamp parameter must be present and within the freshness window,
// checked before the signature so a stale-but-correctly-signed request is
// reported as a freshness failure.
type AppProxyVerifier struct {
	secret    []byte
	tolerance time.Duration
}

// NewAppProxyVerifier creates an app-proxy signature verifier with the
// given timestamp tolerance.
func NewAppProxyVerifier(apiSecret string, tolerance time.Duration) *AppProxyVerifier {
	return &AppProxyVerifier{secret: []byte(apiSecret), tolerance: tolerance}
}

// Verify implements ports.Verifier.
func (v *AppProxyVerifier) Verify(r *http.Request) (*domain.VerifiedIdentity, error) {
	params := r.URL.Query()

	ts := params.Get("timestamp")
	if ts == "" {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolAppProxy,
			Reason:   domain.ReasonTimestampExpired,
			Detail:   "timestamp parameter missing",
		}
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolAppProxy,
			Reason:   domain.ReasonTimestampExpired,
			Detail:   "timestamp parameter not a unix timestamp",
		}
	}
	if skew := domain.Now().Sub(time.Unix(unix, 0)); skew > v.tolerance || skew < -v.tolerance {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolAppProxy,
			Reason:   domain.ReasonTimestampExpired,
			Detail:   "timestamp outside freshness window",
		}
	}

	signature := params.Get("signature")
	if signature == "" {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolAppProxy,
			Reason:   domain.ReasonInvalidSignature,
			Detail:   "signature parameter missing",
		}
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(canonicalProxyParams(params)))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolAppProxy,
			Reason:   domain.ReasonInvalidSignature,
		}
	}

	shopDomain := params.Get("shop")
	if shopDomain == "" {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolAppProxy,
			Reason:   domain.ReasonMissingClaim,
			Detail:   "shop parameter missing",
		}
	}

	return &domain.VerifiedIdentity{
		ShopDomain: shopDomain,
		CustomerID: params.Get("logged_in_customer_id"),
	}, nil
}

// canonicalProxyParams builds Shopify's app-proxy signing string: params
// sorted by key, multi-values comma-joined, signature excluded, pairs
// concatenated with no separators.
func canonicalProxyParams(params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == "signature" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(strings.Join(params[key], ","))
	}
	return b.String()
}

// FlowActionVerifier validates Shopify Flow action requests: the same
// body-HMAC family as webhooks, with the shop domain carried directly in
// the payload rather than in a signed claim.
type FlowActionVerifier struct {
	secret []byte
}

// NewFlowActionVerifier creates a flow-action verifier.
func NewFlowActionVerifier(apiSecret string) *FlowActionVerifier {
	return &FlowActionVerifier{secret: []byte(apiSecret)}
}

// Verify implements ports.Verifier.
func (v *FlowActionVerifier) Verify(r *http.Request) (*domain.VerifiedIdentity, error) {
	signature := r.Header.Get(HeaderHmacSHA256)
	if signature == "" {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolFlowAction,
			Reason:   domain.ReasonMissingHeader,
			Detail:   "missing " + HeaderHmacSHA256 + " header",
		}
	}

	body, err := readAndRestoreBody(r)
	if err != nil {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolFlowAction,
			Reason:   domain.ReasonInvalidSignature,
			Detail:   "could not read request body",
		}
	}

	if !verifyBodyHmac(v.secret, body, signature) {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolFlowAction,
			Reason:   domain.ReasonInvalidSignature,
		}
	}

	var payload struct {
		ShopifyDomain string `json:"shopify_domain"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.ShopifyDomain == "" {
		return nil, &domain.VerificationError{
			Protocol: domain.ProtocolFlowAction,
			Reason:   domain.ReasonMissingClaim,
			Detail:   "payload missing shopify_domain",
		}
	}

	return &domain.VerifiedIdentity{ShopDomain: payload.ShopifyDomain}, nil
}

// verifyBodyHmac compares a base64 HMAC-SHA256 of the body against the
// provided signature, constant-time.
func verifyBodyHmac(secret, body []byte, signature string) bool {
	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}

// readAndRestoreBody drains the request body and puts an identical reader
// back so downstream handlers can read it again.
func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

var _ ports.Verifier = (*SessionTokenVerifier)(nil)
var _ ports.Verifier = (*WebhookVerifier)(nil)
var _ ports.Verifier = (*AppProxyVerifier)(nil)
var _ ports.Verifier = (*FlowActionVerifier)(nil)
