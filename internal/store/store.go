package store

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
)

// StockLedger is the authoritative per-product stock source.
//
// Decrement and Restock are keyed by order id: each order is decremented at
// most once and restocked at most once. Restock returns exactly what the
// decrement took; a Restock that arrives first blocks any later Decrement.
// The returned bool reports whether stock moved in this call.
type StockLedger interface {
	// GetProduct returns a single live product or a not-found error.
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	// GetProducts returns live products for ids in request order. Missing
	// ids are omitted rather than reported.
	GetProducts(ctx context.Context, ids []string) ([]domain.Product, error)

	// Decrement takes the order's quantities out of tracked stock, clamping
	// at zero. Untracked and deleted products are skipped.
	Decrement(ctx context.Context, orderID string, items []domain.OrderItem) (bool, error)

	// Restock puts back what the order's decrement took. items is the
	// order's line list; the recorded movement decides the quantities.
	Restock(ctx context.Context, orderID string, items []domain.OrderItem) (bool, error)

	// SetProduct creates or replaces a catalog row (seeding and tests).
	SetProduct(ctx context.Context, p domain.Product) error

	Close() error
}

type movementKind string

const (
	movementDecrement movementKind = "DECREMENT"
	movementRestock   movementKind = "RESTOCK"
)
