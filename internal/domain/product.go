package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultMinimumStockThreshold = 5

// Product is the catalog view the core reads. A nil Stock means the product
// is not stock-tracked and is always purchasable.
type Product struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Price                 decimal.Decimal `json:"price"`
	ImageURL              string          `json:"image_url"`
	Stock                 *int            `json:"stock"`
	MinimumStockThreshold int             `json:"minimum_stock_threshold"`
	CreatedAt             time.Time       `json:"created_at"`
}

// TrackedStock is a helper for building products with a tracked stock level.
func TrackedStock(n int) *int {
	return &n
}

func (p Product) Tracked() bool {
	return p.Stock != nil
}

// Threshold returns the low-stock display threshold, falling back to the default.
func (p Product) Threshold() int {
	if p.MinimumStockThreshold <= 0 {
		return DefaultMinimumStockThreshold
	}
	return p.MinimumStockThreshold
}

func (p Product) IsOutOfStock() bool {
	return p.Stock != nil && *p.Stock <= 0
}

func (p Product) IsLowStock() bool {
	return p.Stock != nil && *p.Stock > 0 && *p.Stock <= p.Threshold()
}

// IndexProducts keys products by id for reconciliation lookups.
func IndexProducts(products []Product) map[string]Product {
	out := make(map[string]Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out
}
