package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCartTTL is how long an untouched cart survives before mongo reaps it.
const DefaultCartTTL = 90 * 24 * time.Hour

type MongoConfig struct {
	URI      string
	Database string
	CartTTL  time.Duration
}

// MongoCarts is the mongo-backed CartRepository together with the client
// that owns its connection pool.
type MongoCarts struct {
	CartRepository
	client *mongo.Client
}

// ConnectMongoDB dials mongo, verifies the connection and prepares the carts
// collection (unique user_id, TTL on updated_at) before returning.
func ConnectMongoDB(ctx context.Context, cfg MongoConfig) (*MongoCarts, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	carts, err := openCarts(ctx, client, cfg)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return &MongoCarts{CartRepository: carts, client: client}, nil
}

func openCarts(ctx context.Context, client *mongo.Client, cfg MongoConfig) (CartRepository, error) {
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	ttl := cfg.CartTTL
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return NewMongoRepository(ctx, client.Database(cfg.Database), ttl)
}

func (c *MongoCarts) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
