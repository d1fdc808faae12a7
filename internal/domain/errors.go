package domain

import "fmt"

// Protocol identifies which verification protocol a request entered through.
type Protocol string

const (
	ProtocolEmbeddedApp                Protocol = "embedded-app"
	ProtocolAdminUIExtension           Protocol = "admin-ui-extension"
	ProtocolCustomerAccountUIExtension Protocol = "customer-account-ui-extension"
	ProtocolAppProxy                   Protocol = "app-proxy"
	ProtocolWebhook                    Protocol = "webhook"
	ProtocolFlowAction                 Protocol = "flow-action"
)

// VerifiedIdentity is the positive result of request verification. The
// caller never receives a shop record here; resolving the domain against
// storage is a separate orchestrator step.
type VerifiedIdentity struct {
	ShopDomain      string
	IdentityToken   string // raw session token, when the protocol carries one
	ExtensionUserID string
	CustomerID      string // app proxy logged_in_customer_id, when present
}

// VerificationReason classifies why request verification failed.
type VerificationReason string

const (
	ReasonInvalidSignature VerificationReason = "invalid_signature"
	ReasonInvalidToken     VerificationReason = "invalid_token"
	ReasonMissingClaim     VerificationReason = "missing_claim"
	ReasonTimestampExpired VerificationReason = "timestamp_expired"
	ReasonMissingHeader    VerificationReason = "missing_header"
)

// VerificationError is a terminal cryptographic/structural failure for the
// current request.
type VerificationError struct {
	Protocol Protocol
	Reason   VerificationReason
	Detail   string
}

func (e *VerificationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s verification failed: %s", e.Protocol, e.Reason)
	}
	return fmt.Sprintf("%s verification failed: %s: %s", e.Protocol, e.Reason, e.Detail)
}

// ResolutionReason distinguishes "never installed" from "installed then
// removed".
type ResolutionReason string

const (
	ReasonShopNotFound    ResolutionReason = "shop_not_found"
	ReasonShopUninstalled ResolutionReason = "shop_uninstalled"
)

// ResolutionError is returned when a verified domain cannot be resolved to
// a usable shop record.
type ResolutionError struct {
	Protocol   Protocol
	Reason     ResolutionReason
	ShopDomain string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %s for shop %s", e.Protocol, e.Reason, e.ShopDomain)
}

// ExchangeError is a rejection from the external token endpoint. It never
// mutates stored credentials.
type ExchangeError struct {
	Code   string
	Detail string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token endpoint rejected request: %s: %s", e.Code, e.Detail)
}

// MissingAccessTokenError is raised when authentication completed but the
// shop still has no access token to act with.
type MissingAccessTokenError struct {
	Protocol   Protocol
	ShopDomain string
}

func (e *MissingAccessTokenError) Error() string {
	return fmt.Sprintf("%s: shop %s has no access token", e.Protocol, e.ShopDomain)
}

// AuthError wraps any failure produced by an authentication orchestrator
// with the protocol and shop context needed for logging and response
// shaping.
type AuthError struct {
	Protocol   Protocol
	ShopDomain string
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Protocol, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TokenRefreshRequiredError signals that an automatic refresh failed and
// the client must re-authenticate from scratch. It is distinct from an
// ordinary request failure so callers can trigger a client-side
// re-authentication flow.
type TokenRefreshRequiredError struct {
	ShopDomain string
}

func (e *TokenRefreshRequiredError) Error() string {
	return fmt.Sprintf("token refresh required for shop %s", e.ShopDomain)
}
