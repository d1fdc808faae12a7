package repository

import (
	"context"
	"fmt"
	"time"

	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/infrastructure/repository/entity"
	"shopify-auth-gateway/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoShopRepository implements ports.ShopRepository using MongoDB. Each
// Save is a single-document replace, which MongoDB applies atomically, so
// token rotations never land partially. Token fields are encrypted on the
// way in and decrypted on the way out.
type MongoShopRepository struct {
	collection *mongo.Collection
	encryption ports.EncryptionService
}

// NewMongoShopRepository creates the MongoDB shop repository.
func NewMongoShopRepository(db *mongo.Database, encryption ports.EncryptionService) *MongoShopRepository {
	return &MongoShopRepository{
		collection: db.Collection("shops"),
		encryption: encryption,
	}
}

// Get retrieves a live (non-tombstoned) shop by domain.
func (r *MongoShopRepository) Get(ctx context.Context, shopDomain string) (*domain.Shop, error) {
	return r.findOne(ctx, bson.M{"domain": shopDomain, "deletedAt": nil})
}

// GetWithTrashed retrieves a shop by domain, tombstoned or not.
func (r *MongoShopRepository) GetWithTrashed(ctx context.Context, shopDomain string) (*domain.Shop, error) {
	return r.findOne(ctx, bson.M{"domain": shopDomain})
}

func (r *MongoShopRepository) findOne(ctx context.Context, filter bson.M) (*domain.Shop, error) {
	var doc entity.MongoShopDoc
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}

	shop := doc.ToDomain()
	if err := r.decryptTokens(shop); err != nil {
		return nil, err
	}
	return shop, nil
}

// Save upserts the shop keyed by domain. The whole record is replaced in
// one write so that token rotation and clearing are atomic.
func (r *MongoShopRepository) Save(ctx context.Context, shop *domain.Shop) error {
	doc := entity.MongoShopDocFromDomain(shop)
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	if err := r.encryptTokens(doc); err != nil {
		return err
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"domain": shop.Domain}

	_, err := r.collection.ReplaceOne(ctx, filter, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to save shop: %w", err)
	}
	return nil
}

// ListTrashedBefore returns tombstoned shops deleted at or before the
// cutoff.
func (r *MongoShopRepository) ListTrashedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Shop, error) {
	filter := bson.M{"deletedAt": bson.M{"$ne": nil, "$lte": cutoff}}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tombstoned shops: %w", err)
	}
	defer cursor.Close(ctx)

	var shops []*domain.Shop
	for cursor.Next(ctx) {
		var doc entity.MongoShopDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode shop: %w", err)
		}
		shop := doc.ToDomain()
		if err := r.decryptTokens(shop); err != nil {
			return nil, err
		}
		shops = append(shops, shop)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return shops, nil
}

// HardDelete permanently removes the shop record.
func (r *MongoShopRepository) HardDelete(ctx context.Context, shopDomain string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"domain": shopDomain})
	if err != nil {
		return fmt.Errorf("failed to delete shop: %w", err)
	}
	return nil
}

func (r *MongoShopRepository) encryptTokens(doc *entity.MongoShopDoc) error {
	var err error
	if doc.AccessToken != "" {
		if doc.AccessToken, err = r.encryption.Encrypt(doc.AccessToken); err != nil {
			return fmt.Errorf("failed to encrypt access token: %w", err)
		}
	}
	if doc.RefreshToken != "" {
		if doc.RefreshToken, err = r.encryption.Encrypt(doc.RefreshToken); err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}
	return nil
}

func (r *MongoShopRepository) decryptTokens(shop *domain.Shop) error {
	var err error
	if shop.AccessToken != "" {
		if shop.AccessToken, err = r.encryption.Decrypt(shop.AccessToken); err != nil {
			return fmt.Errorf("failed to decrypt access token: %w", err)
		}
	}
	if shop.RefreshToken != "" {
		if shop.RefreshToken, err = r.encryption.Decrypt(shop.RefreshToken); err != nil {
			return fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
	}
	return nil
}

var _ ports.ShopRepository = (*MongoShopRepository)(nil)
