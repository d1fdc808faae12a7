package domain

import "time"

// Now returns the current time. It can be overridden in tests.
var Now = time.Now

// Shop is the persisted credential record for a single Shopify store.
// Domain is the unique, immutable identifier (<name>.myshopify.com).
// Token fields are stored encrypted; the repository handles the
// encrypt/decrypt boundary, so the domain entity always carries plaintext.
type Shop struct {
	ID                         string
	Domain                     string
	AccessToken                string
	AccessTokenExpiresAt       *time.Time
	RefreshToken               string
	RefreshTokenExpiresAt      *time.Time
	AccessTokenLastRefreshedAt *time.Time
	TokenRefreshCount          int
	InstalledAt                *time.Time
	UninstalledAt              *time.Time
	DeletedAt                  *time.Time
	Metadata                   map[string]string
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// NewShop creates a freshly installed shop record with no tokens yet.
func NewShop(shopDomain string) *Shop {
	now := Now()
	return &Shop{
		Domain:      shopDomain,
		InstalledAt: &now,
	}
}

// Trashed reports whether the shop is soft-deleted.
func (s *Shop) Trashed() bool {
	return s.DeletedAt != nil
}

// IsInstalled reports whether the shop is currently installed.
func (s *Shop) IsInstalled() bool {
	return s.InstalledAt != nil && s.UninstalledAt == nil && s.DeletedAt == nil
}

// IsRefreshTokenExpired reports whether the stored refresh token has passed
// its expiry. A nil expiry means a non-expiring refresh token.
func (s *Shop) IsRefreshTokenExpired() bool {
	if s.RefreshTokenExpiresAt == nil {
		return false
	}
	return !s.RefreshTokenExpiresAt.After(Now())
}

// ClearTokens nulls all token and expiry fields. Idempotent.
func (s *Shop) ClearTokens() {
	s.AccessToken = ""
	s.AccessTokenExpiresAt = nil
	s.RefreshToken = ""
	s.RefreshTokenExpiresAt = nil
}

// MarkAsUninstalled clears all token material, records the uninstall time
// and tombstones the record. Tokens are cleared before the tombstone is set
// so a soft-deleted shop never carries live secrets.
func (s *Shop) MarkAsUninstalled() {
	now := Now()
	s.ClearTokens()
	s.AccessTokenLastRefreshedAt = nil
	s.TokenRefreshCount = 0
	s.UninstalledAt = &now
	s.DeletedAt = &now
}

// MarkAsReinstalled restores a tombstoned shop: clears the tombstone and the
// uninstall marker and stamps a fresh install time. The access token is set
// only when one is supplied; the usual flow leaves it empty until token
// exchange completes.
func (s *Shop) MarkAsReinstalled(accessToken string) {
	now := Now()
	s.DeletedAt = nil
	s.UninstalledAt = nil
	s.InstalledAt = &now
	if accessToken != "" {
		s.AccessToken = accessToken
	}
}

// ApplyExchange stores the bundle obtained from a full token exchange.
// The rotation counter resets because exchange starts a new token lineage.
func (s *Shop) ApplyExchange(bundle TokenBundle) {
	now := Now()
	s.AccessToken = bundle.Token
	s.AccessTokenExpiresAt = bundle.ExpiresAt
	s.RefreshToken = bundle.RefreshToken
	s.RefreshTokenExpiresAt = bundle.RefreshTokenExpiresAt
	s.AccessTokenLastRefreshedAt = &now
	s.TokenRefreshCount = 0
}

// ApplyRefresh rotates both tokens from a successful refresh. The newly
// issued refresh token always replaces the old one; the old bundle must
// never be retained.
func (s *Shop) ApplyRefresh(bundle TokenBundle) {
	now := Now()
	s.AccessToken = bundle.Token
	s.AccessTokenExpiresAt = bundle.ExpiresAt
	s.RefreshToken = bundle.RefreshToken
	s.RefreshTokenExpiresAt = bundle.RefreshTokenExpiresAt
	s.AccessTokenLastRefreshedAt = &now
	s.TokenRefreshCount++
}
