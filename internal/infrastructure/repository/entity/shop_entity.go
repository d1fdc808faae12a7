package entity

import (
	"time"

	"shopify-auth-gateway/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoShopDoc represents a shop credential record in MongoDB. Token fields
// hold ciphertext; the repository owns the encrypt/decrypt boundary.
type MongoShopDoc struct {
	ID                         primitive.ObjectID `bson:"_id,omitempty"`
	Domain                     string             `bson:"domain"`
	AccessToken                string             `bson:"accessToken,omitempty"`
	AccessTokenExpiresAt       *time.Time         `bson:"accessTokenExpiresAt,omitempty"`
	RefreshToken               string             `bson:"refreshToken,omitempty"`
	RefreshTokenExpiresAt      *time.Time         `bson:"refreshTokenExpiresAt,omitempty"`
	AccessTokenLastRefreshedAt *time.Time         `bson:"accessTokenLastRefreshedAt,omitempty"`
	TokenRefreshCount          int                `bson:"tokenRefreshCount"`
	InstalledAt                *time.Time         `bson:"installedAt,omitempty"`
	UninstalledAt              *time.Time         `bson:"uninstalledAt,omitempty"`
	DeletedAt                  *time.Time         `bson:"deletedAt,omitempty"`
	Metadata                   map[string]string  `bson:"metadata,omitempty"`
	CreatedAt                  time.Time          `bson:"createdAt"`
	UpdatedAt                  time.Time          `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity. Token fields
// still carry ciphertext at this point.
func (d *MongoShopDoc) ToDomain() *domain.Shop {
	return &domain.Shop{
		ID:                         d.ID.Hex(),
		Domain:                     d.Domain,
		AccessToken:                d.AccessToken,
		AccessTokenExpiresAt:       d.AccessTokenExpiresAt,
		RefreshToken:               d.RefreshToken,
		RefreshTokenExpiresAt:      d.RefreshTokenExpiresAt,
		AccessTokenLastRefreshedAt: d.AccessTokenLastRefreshedAt,
		TokenRefreshCount:          d.TokenRefreshCount,
		InstalledAt:                d.InstalledAt,
		UninstalledAt:              d.UninstalledAt,
		DeletedAt:                  d.DeletedAt,
		Metadata:                   d.Metadata,
		CreatedAt:                  d.CreatedAt,
		UpdatedAt:                  d.UpdatedAt,
	}
}

// MongoShopDocFromDomain converts a domain entity to a MongoDB document.
func MongoShopDocFromDomain(shop *domain.Shop) *MongoShopDoc {
	doc := &MongoShopDoc{
		Domain:                     shop.Domain,
		AccessToken:                shop.AccessToken,
		AccessTokenExpiresAt:       shop.AccessTokenExpiresAt,
		RefreshToken:               shop.RefreshToken,
		RefreshTokenExpiresAt:      shop.RefreshTokenExpiresAt,
		AccessTokenLastRefreshedAt: shop.AccessTokenLastRefreshedAt,
		TokenRefreshCount:          shop.TokenRefreshCount,
		InstalledAt:                shop.InstalledAt,
		UninstalledAt:              shop.UninstalledAt,
		DeletedAt:                  shop.DeletedAt,
		Metadata:                   shop.Metadata,
		CreatedAt:                  shop.CreatedAt,
		UpdatedAt:                  shop.UpdatedAt,
	}

	if shop.ID != "" {
		if objID, err := primitive.ObjectIDFromHex(shop.ID); err == nil {
			doc.ID = objID
		}
	}

	return doc
}
