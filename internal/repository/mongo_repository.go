package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// cartDocument is the stored shape of a cart. Prices are kept as decimal
// strings since bson has no codec for decimal.Decimal.
type cartDocument struct {
	UserID    string          `bson:"user_id"`
	Items     []entryDocument `bson:"items"`
	CreatedAt time.Time       `bson:"created_at"`
	UpdatedAt time.Time       `bson:"updated_at"`
}

type entryDocument struct {
	ProductID string    `bson:"product_id"`
	Name      string    `bson:"name"`
	Price     string    `bson:"price"`
	ImageURL  string    `bson:"image_url"`
	Qty       int       `bson:"qty"`
	AddedAt   time.Time `bson:"added_at"`
}

func toCartDocument(c *domain.Cart) cartDocument {
	doc := cartDocument{
		UserID:    c.UserID,
		Items:     make([]entryDocument, len(c.Items)),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for i, e := range c.Items {
		doc.Items[i] = entryDocument{
			ProductID: e.ProductID,
			Name:      e.Name,
			Price:     e.Price.String(),
			ImageURL:  e.ImageURL,
			Qty:       e.Qty,
			AddedAt:   e.AddedAt,
		}
	}
	return doc
}

func (d cartDocument) toDomain() (*domain.Cart, error) {
	cart := &domain.Cart{
		UserID:    d.UserID,
		Items:     make([]domain.CartEntry, len(d.Items)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for i, e := range d.Items {
		price, err := decimal.NewFromString(e.Price)
		if err != nil {
			return nil, fmt.Errorf("cart %s item %s has invalid price %q: %w", d.UserID, e.ProductID, e.Price, err)
		}
		cart.Items[i] = domain.CartEntry{
			ProductID: e.ProductID,
			Name:      e.Name,
			Price:     price,
			ImageURL:  e.ImageURL,
			Qty:       e.Qty,
			AddedAt:   e.AddedAt,
		}
	}
	return cart, nil
}

type mongoRepository struct {
	collection *mongo.Collection
}

// NewMongoRepository uses the "carts" collection, creating its indexes.
func NewMongoRepository(ctx context.Context, db *mongo.Database, ttl time.Duration) (CartRepository, error) {
	repo := &mongoRepository{
		collection: db.Collection("carts"),
	}
	if err := repo.createIndexes(ctx, ttl); err != nil {
		return nil, err
	}
	return repo, nil
}

func (m *mongoRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return doc.toDomain()
}

// SaveCart replaces the stored items and keeps the original creation time.
func (m *mongoRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	doc := toCartDocument(cart)

	update := bson.M{
		"$set": bson.M{
			"items":      doc.Items,
			"updated_at": doc.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": doc.CreatedAt},
	}
	opts := options.Update().SetUpsert(true)

	_, err := m.collection.UpdateOne(ctx, bson.M{"user_id": cart.UserID}, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *mongoRepository) DeleteCart(ctx context.Context, userID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *mongoRepository) createIndexes(ctx context.Context, ttl time.Duration) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ttl / time.Second)),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
