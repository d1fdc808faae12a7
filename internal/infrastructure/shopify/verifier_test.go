package shopify_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"shopify-auth-gateway/internal/domain"
	shopifyinfra "shopify-auth-gateway/internal/infrastructure/shopify"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey    = "test-api-key"
	testAPISecret = "test-api-secret"
	testShop      = "test-store.myshopify.com"
)

func signSessionToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func sessionClaims(overrides map[string]any) jwt.MapClaims {
	claims := jwt.MapClaims{
		"iss":  "https://" + testShop + "/admin",
		"dest": "https://" + testShop + "/admin",
		"aud":  testAPIKey,
		"exp":  time.Now().Add(time.Minute).Unix(),
		"nbf":  time.Now().Add(-time.Minute).Unix(),
		"iat":  time.Now().Add(-time.Minute).Unix(),
		"sub":  "user-42",
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return claims
}

func requireVerificationReason(t *testing.T, err error, reason domain.VerificationReason) {
	t.Helper()
	var verr *domain.VerificationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, reason, verr.Reason)
}

func TestSessionTokenVerifierAcceptsValidToken(t *testing.T) {
	v := shopifyinfra.NewSessionTokenVerifier(domain.ProtocolEmbeddedApp, testAPIKey, testAPISecret)
	raw := signSessionToken(t, testAPISecret, sessionClaims(nil))

	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	identity, err := v.Verify(r)
	require.NoError(t, err)
	require.Equal(t, testShop, identity.ShopDomain)
	require.Equal(t, raw, identity.IdentityToken)
	require.Equal(t, "user-42", identity.ExtensionUserID)
}

func TestSessionTokenVerifierAcceptsIdTokenQueryParam(t *testing.T) {
	v := shopifyinfra.NewSessionTokenVerifier(domain.ProtocolEmbeddedApp, testAPIKey, testAPISecret)
	raw := signSessionToken(t, testAPISecret, sessionClaims(nil))

	r, _ := http.NewRequest(http.MethodGet, "/?id_token="+raw, nil)

	identity, err := v.Verify(r)
	require.NoError(t, err)
	require.Equal(t, testShop, identity.ShopDomain)
}

func TestSessionTokenVerifierRejectsBadSignature(t *testing.T) {
	v := shopifyinfra.NewSessionTokenVerifier(domain.ProtocolEmbeddedApp, testAPIKey, testAPISecret)
	raw := signSessionToken(t, "wrong-secret", sessionClaims(nil))

	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	_, err := v.Verify(r)
	requireVerificationReason(t, err, domain.ReasonInvalidToken)
}

func TestSessionTokenVerifierRejectsExpiredToken(t *testing.T) {
	v := shopifyinfra.NewSessionTokenVerifier(domain.ProtocolEmbeddedApp, testAPIKey, testAPISecret)
	raw := signSessionToken(t, testAPISecret, sessionClaims(map[string]any{
		"exp": time.Now().Add(-time.Hour).Unix(),
	}))

	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	_, err := v.Verify(r)
	requireVerificationReason(t, err, domain.ReasonInvalidToken)
}

func TestSessionTokenVerifierRejectsWrongAudience(t *testing.T) {
	v := shopifyinfra.NewSessionTokenVerifier(domain.ProtocolEmbeddedApp, testAPIKey, testAPISecret)
	raw := signSessionToken(t, testAPISecret, sessionClaims(map[string]any{
		"aud": "someone-elses-app",
	}))

	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	_, err := v.Verify(r)
	requireVerificationReason(t, err, domain.ReasonInvalidToken)
}

func TestSessionTokenVerifierRejectsMissingDest(t *testing.T) {
	v := shopifyinfra.NewSessionTokenVerifier(domain.ProtocolEmbeddedApp, testAPIKey, testAPISecret)
	raw := signSessionToken(t, testAPISecret, sessionClaims(map[string]any{
		"dest": nil,
	}))

	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	_, err := v.Verify(r)
	requireVerificationReason(t, err, domain.ReasonMissingClaim)
}

func TestSessionTokenVerifierRejectsIssuerMismatch(t *testing.T) {
	v := shopifyinfra.NewSessionTokenVerifier(domain.ProtocolEmbeddedApp, testAPIKey, testAPISecret)
	raw := signSessionToken(t, testAPISecret, sessionClaims(map[string]any{
		"iss": "https://other-store.myshopify.com/admin",
	}))

	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	_, err := v.Verify(r)
	requireVerificationReason(t, err, domain.ReasonInvalidToken)
}

func TestSessionTokenVerifierRejectsMissingToken(t *testing.T) {
	v := shopifyinfra.NewSessionTokenVerifier(domain.ProtocolEmbeddedApp, testAPIKey, testAPISecret)

	r, _ := http.NewRequest(http.MethodGet, "/", nil)

	_, err := v.Verify(r)
	requireVerificationReason(t, err, domain.ReasonMissingHeader)
}

func webhookSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerifierAcceptsValidSignature(t *testing.T) {
	v := shopifyinfra.NewWebhookVerifier(testAPISecret)
	body := []byte(`{"id":123}`)

	r, _ := http.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader(body))
	r.Header.Set(shopifyinfra.HeaderHmacSHA256, webhookSignature(testAPISecret, body))
	r.Header.Set(shopifyinfra.HeaderShopDomain, testShop)

	identity, err := v.Verify(r)
	require.NoError(t, err)
	require.Equal(t, testShop, identity.ShopDomain)
}

func TestWebhookVerifierRestoresBodyForDownstream(t *testing.T) {
	v := shopifyinfra.NewWebhookVerifier(testAPISecret)
	body := []byte(`{"id":123}`)

	r, _ := http.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader(body))
	r.Header.Set(shopifyinfra.HeaderHmacSHA256, webhookSignature(testAPISecret, body))
	r.Header.Set(shopifyinfra.HeaderShopDomain, testShop)

	_, err := v.Verify(r)
	require.NoError(t, err)

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(r.Body)
	require.NoError(t, err)
	require.Equal(t, body, buf.Bytes())
}

func TestWebhookVerifierRejectsTamperedBody(t *testing.T) {
	v := shopifyinfra.NewWebhookVerifier(testAPISecret)
	body := []byte(`{"id":123}`)

	r, _ := http.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader([]byte(`{"id":999}`)))
	r.Header.Set(shopifyinfra.HeaderHmacSHA256, webhookSignature(testAPISecret, body))
	r.Header.Set(shopifyinfra.HeaderShopDomain, testShop)

	_, err := v.Verify(r)
	requireVerificationReason(t, err, domain.ReasonInvalidSignature)
}

func TestWebhookVerifierRejectsMissingHmacHeader(t *testing.T) {
	v := shopifyinfra.NewWebhookVerifier(testAPISecret)

	r, _ := http.NewRequest(http.MethodPost, "/webhooks/shopify", strings.NewReader("{}"))

	_, err := v.Verify(r)
	requireVerificationReason(t, err, domain.ReasonMissingHeader)
}

func TestWebhookVerifierRejectsMissingShopHeader(t *testing.T) {
	v := shopifyinfra.NewWebhookVerifier(testAPISecret)
	body := []byte(`{}`)

	r, _ := http.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader(body))
	r.Header.Set(shopifyinfra.HeaderHmacSHA256, webhookSignature(testAPISecret, body))

	_, err := v.Verify(r)
	requireVerificationReason(t, err, domain.ReasonMissingHeader)
}

// signProxyParams computes the app-proxy signature over the sorted,
// separator-free key=value concatenation.
func signProxyParams(secret string, params url.Values) string {
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

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func proxyRequest(t *testing.T, params url.Values) *http.Request {
	t.Helper()
	r, err := http.NewRequest(http.MethodGet, "/proxy/data?"+params.Encode(), nil)
	require.NoError(t, err)
	return r
}

func TestAppProxyVerifierAcceptsValidSignature(t *testing.T) {
	v := shopifyinfra.NewAppProxyVerifier(testAPISecret, 90*time.Second)

	params := url.Values{
		"shop":                  {testShop},
		"timestamp":             {strconv.FormatInt(time.Now().Unix(), 10)},
		"logged_in_customer_id": {"cust-7"},
		"path_prefix":           {"/apps/gateway"},
	}
	params.Set("signature", signProxyParams(testAPISecret, params))

	identity, err := v.Verify(proxyRequest(t, params))
	require.NoError(t, err)
	require.Equal(t, testShop, identity.ShopDomain)
	require.Equal(t, "cust-7", identity.CustomerID)
}

func TestAppProxyVerifierJoinsArrayParamsWithCommas(t *testing.T) {
	v := shopifyinfra.NewAppProxyVerifier(testAPISecret, 90*time.Second)

	params := url.Values{
		"shop":      {testShop},
		"timestamp": {strconv.FormatInt(time.Now().Unix(), 10)},
		"ids":       {"1", "2", "3"},
	}
	params.Set("signature", signProxyParams(testAPISecret, params))

	_, err := v.Verify(proxyRequest(t, params))
	require.NoError(t, err)
}

func TestAppProxyVerifierRejectsTamperedParams(t *testing.T) {
	v := shopifyinfra.NewAppProxyVerifier(testAPISecret, 90*time.Second)

	params := url.Values{
		"shop":      {testShop},
		"timestamp": {strconv.FormatInt(time.Now().Unix(), 10)},
	}
	params.Set("signature", signProxyParams(testAPISecret, params))
	params.Set("shop", "evil-store.myshopify.com")

	_, err := v.Verify(proxyRequest(t, params))
	requireVerificationReason(t, err, domain.ReasonInvalidSignature)
}

func TestAppProxyVerifierReportsStaleTimestampBeforeSignature(t *testing.T) {
	v := shopifyinfra.NewAppProxyVerifier(testAPISecret, 90*time.Second)

	// Correctly signed but ten minutes old: the failure must be reported
	// as a freshness problem, not a signature problem.
	params := url.Values{
		"shop":      {testShop},
		"timestamp": {strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)},
	}
	params.Set("signature", signProxyParams(testAPISecret, params))

	_, err := v.Verify(proxyRequest(t, params))
	requireVerificationReason(t, err, domain.ReasonTimestampExpired)
}

func TestAppProxyVerifierRejectsFutureTimestamp(t *testing.T) {
	v := shopifyinfra.NewAppProxyVerifier(testAPISecret, 90*time.Second)

	params := url.Values{
		"shop":      {testShop},
		"timestamp": {strconv.FormatInt(time.Now().Add(10*time.Minute).Unix(), 10)},
	}
	params.Set("signature", signProxyParams(testAPISecret, params))

	_, err := v.Verify(proxyRequest(t, params))
	requireVerificationReason(t, err, domain.ReasonTimestampExpired)
}

func TestAppProxyVerifierRejectsMissingTimestamp(t *testing.T) {
	v := shopifyinfra.NewAppProxyVerifier(testAPISecret, 90*time.Second)

	params := url.Values{"shop": {testShop}}
	params.Set("signature", signProxyParams(testAPISecret, params))

	_, err := v.Verify(proxyRequest(t, params))
	requireVerificationReason(t, err, domain.ReasonTimestampExpired)
}

func TestAppProxyVerifierHonorsConfiguredTolerance(t *testing.T) {
	v := shopifyinfra.NewAppProxyVerifier(testAPISecret, 10*time.Minute)

	params := url.Values{
		"shop":      {testShop},
		"timestamp": {strconv.FormatInt(time.Now().Add(-5*time.Minute).Unix(), 10)},
	}
	params.Set("signature", signProxyParams(testAPISecret, params))

	_, err := v.Verify(proxyRequest(t, params))
	require.NoError(t, err)
}

func TestFlowActionVerifierAcceptsValidRequest(t *testing.T) {
	v := shopifyinfra.NewFlowActionVerifier(testAPISecret)
	body := []byte(`{"shopify_domain":"` + testShop + `","action_run_id":"run-1"}`)

	r, _ := http.NewRequest(http.MethodPost, "/flow/action", bytes.NewReader(body))
	r.Header.Set(shopifyinfra.HeaderHmacSHA256, webhookSignature(testAPISecret, body))

	identity, err := v.Verify(r)
	require.NoError(t, err)
	require.Equal(t, testShop, identity.ShopDomain)
}

func TestFlowActionVerifierRejectsPayloadWithoutShopDomain(t *testing.T) {
	v := shopifyinfra.NewFlowActionVerifier(testAPISecret)
	body := []byte(`{"action_run_id":"run-1"}`)

	r, _ := http.NewRequest(http.MethodPost, "/flow/action", bytes.NewReader(body))
	r.Header.Set(shopifyinfra.HeaderHmacSHA256, webhookSignature(testAPISecret, body))

	_, err := v.Verify(r)
	requireVerificationReason(t, err, domain.ReasonMissingClaim)
}

func TestFlowActionVerifierRejectsBadSignature(t *testing.T) {
	v := shopifyinfra.NewFlowActionVerifier(testAPISecret)
	body := []byte(`{"shopify_domain":"` + testShop + `"}`)

	r, _ := http.NewRequest(http.MethodPost, "/flow/action", bytes.NewReader(body))
	r.Header.Set(shopifyinfra.HeaderHmacSHA256, webhookSignature("wrong-secret", body))

	_, err := v.Verify(r)
	requireVerificationReason(t, err, domain.ReasonInvalidSignature)
}

func TestVerificationErrorsCarryProtocol(t *testing.T) {
	v := shopifyinfra.NewWebhookVerifier(testAPISecret)
	r, _ := http.NewRequest(http.MethodPost, "/webhooks/shopify", strings.NewReader("{}"))

	_, err := v.Verify(r)
	var verr *domain.VerificationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, domain.ProtocolWebhook, verr.Protocol)
}
