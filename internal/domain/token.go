package domain

import "time"

// Token exchange access modes.
const (
	AccessModeOnline  = "online"
	AccessModeOffline = "offline"
)

// TokenBundle is the set of credentials issued by the token endpoint.
// RefreshToken fields may be empty depending on app configuration; a nil
// expiry means the token does not expire.
type TokenBundle struct {
	Token                 string
	ExpiresAt             *time.Time
	RefreshToken          string
	RefreshTokenExpiresAt *time.Time
}

// RefreshOutcomeKind enumerates the terminal states of a refresh attempt.
type RefreshOutcomeKind int

const (
	// RefreshOutcomeRefreshed means both tokens were rotated and persisted.
	RefreshOutcomeRefreshed RefreshOutcomeKind = iota
	// RefreshOutcomeStillValid means the current access token needs no
	// renewal; nothing was mutated. Safe for concurrent callers to share.
	RefreshOutcomeStillValid
	// RefreshOutcomeFailed is a transient failure; nothing was mutated and
	// the caller may retry later.
	RefreshOutcomeFailed
	// RefreshOutcomeInvalidated means the refresh token is terminally dead;
	// all token fields were cleared and the shop must re-authenticate.
	RefreshOutcomeInvalidated
)

// Refresh failure reasons carried by RefreshOutcomeFailed.
const (
	RefreshFailureNoRefreshToken = "no_refresh_token"
	RefreshFailureEndpoint       = "endpoint_error"
)

// RefreshOutcome is the result of TokenService.Refresh.
type RefreshOutcome struct {
	Kind   RefreshOutcomeKind
	Reason string
}

func (o RefreshOutcome) String() string {
	switch o.Kind {
	case RefreshOutcomeRefreshed:
		return "refreshed"
	case RefreshOutcomeStillValid:
		return "still_valid"
	case RefreshOutcomeInvalidated:
		return "invalidated"
	default:
		return "failed"
	}
}
