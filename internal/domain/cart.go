package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartEntry captures the product name, price and image at the time it was
// added; checkout totals use this captured price.
type CartEntry struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"image_url"`
	Qty       int             `json:"qty"`
	AddedAt   time.Time       `json:"added_at"`
}

// Cart is owned by a single shopper session. Items are unique by ProductID.
type Cart struct {
	ID        string      `json:"id,omitempty"`
	UserID    string      `json:"user_id"`
	Items     []CartEntry `json:"items"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (c Cart) ProductIDs() []string {
	ids := make([]string, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	return ids
}

func (c Cart) find(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c Cart) withItems(items []CartEntry) Cart {
	c.Items = items
	return c
}

func copyEntries(items []CartEntry) []CartEntry {
	out := make([]CartEntry, len(items))
	copy(out, items)
	return out
}

type AdjustmentReason string

const (
	AdjustmentRemovedMissing    AdjustmentReason = "REMOVED_MISSING"
	AdjustmentRemovedOutOfStock AdjustmentReason = "REMOVED_OUT_OF_STOCK"
	AdjustmentCapped            AdjustmentReason = "CAPPED"
)

// Adjustment describes one correction made by Reconcile.
type Adjustment struct {
	ProductID   string           `json:"product_id"`
	Name        string           `json:"name"`
	Reason      AdjustmentReason `json:"reason"`
	PreviousQty int              `json:"previous_qty"`
	NewQty      int              `json:"new_qty"`
}

type ReconcileReport struct {
	Changed     bool         `json:"changed"`
	Adjustments []Adjustment `json:"adjustments,omitempty"`
}

// Reconcile corrects entries against live products: entries whose product is
// gone or exhausted are dropped, tracked quantities are capped to stock and
// untracked products are left alone. It never raises a quantity, so applying
// it twice with the same products yields no further change.
func Reconcile(entries []CartEntry, live map[string]Product) ([]CartEntry, ReconcileReport) {
	out := make([]CartEntry, 0, len(entries))
	var report ReconcileReport

	for _, entry := range entries {
		product, ok := live[entry.ProductID]
		if !ok {
			report.add(entry, AdjustmentRemovedMissing, 0)
			continue
		}
		if product.IsOutOfStock() {
			report.add(entry, AdjustmentRemovedOutOfStock, 0)
			continue
		}
		if product.Tracked() && entry.Qty > *product.Stock {
			report.add(entry, AdjustmentCapped, *product.Stock)
			entry.Qty = *product.Stock
		}
		out = append(out, entry)
	}

	return out, report
}

func (r *ReconcileReport) add(entry CartEntry, reason AdjustmentReason, newQty int) {
	r.Changed = true
	r.Adjustments = append(r.Adjustments, Adjustment{
		ProductID:   entry.ProductID,
		Name:        entry.Name,
		Reason:      reason,
		PreviousQty: entry.Qty,
		NewQty:      newQty,
	})
}

// AddToCart inserts product or increments its entry by qty.
func AddToCart(cart Cart, product Product, qty int, now time.Time) (Cart, error) {
	if qty <= 0 {
		return cart, ErrInvalidQuantity
	}

	idx := cart.find(product.ID)
	inCart := 0
	if idx >= 0 {
		inCart = cart.Items[idx].Qty
	}

	if err := checkStock(product, inCart, qty); err != nil {
		return cart, err
	}

	items := copyEntries(cart.Items)
	if idx >= 0 {
		items[idx].Qty += qty
		return cart.withItems(items), nil
	}

	items = append(items, CartEntry{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		ImageURL:  product.ImageURL,
		Qty:       qty,
		AddedAt:   now,
	})
	return cart.withItems(items), nil
}

// SetQuantity replaces the quantity of an existing entry, applying the same
// stock guard as AddToCart.
func SetQuantity(cart Cart, product Product, qty int) (Cart, error) {
	if qty <= 0 {
		return cart, ErrInvalidQuantity
	}
	idx := cart.find(product.ID)
	if idx < 0 {
		return cart, NotFoundError("cart item", product.ID)
	}

	current := cart.Items[idx].Qty
	if qty > current {
		if err := checkStock(product, current, qty-current); err != nil {
			return cart, err
		}
	}

	items := copyEntries(cart.Items)
	items[idx].Qty = qty
	return cart.withItems(items), nil
}

// RemoveFromCart drops the entry for productID, reporting whether one existed.
func RemoveFromCart(cart Cart, productID string) (Cart, bool) {
	idx := cart.find(productID)
	if idx < 0 {
		return cart, false
	}
	items := make([]CartEntry, 0, len(cart.Items)-1)
	items = append(items, cart.Items[:idx]...)
	items = append(items, cart.Items[idx+1:]...)
	return cart.withItems(items), true
}

func checkStock(product Product, inCart, requested int) error {
	if !product.Tracked() {
		return nil
	}
	available := *product.Stock
	if available <= 0 {
		return &StockError{
			Kind:      ErrOutOfStock,
			ProductID: product.ID,
			Requested: requested,
			InCart:    inCart,
		}
	}
	if inCart+requested > available {
		return &StockError{
			Kind:       ErrStockExceeded,
			ProductID:  product.ID,
			Requested:  requested,
			InCart:     inCart,
			Available:  available,
			MaxAddable: max(available-inCart, 0),
		}
	}
	return nil
}

// Checkout snapshots a reconciled cart into order items and a total computed
// from the prices captured in the cart.
func Checkout(cart Cart) ([]OrderItem, decimal.Decimal, error) {
	if len(cart.Items) == 0 {
		return nil, decimal.Zero, ErrEmptyCart
	}

	items := make([]OrderItem, 0, len(cart.Items))
	total := decimal.Zero
	for _, entry := range cart.Items {
		item := OrderItem{
			ProductID: entry.ProductID,
			Name:      entry.Name,
			Price:     entry.Price,
			Qty:       entry.Qty,
		}
		items = append(items, item)
		total = total.Add(item.Subtotal())
	}
	return items, total, nil
}
