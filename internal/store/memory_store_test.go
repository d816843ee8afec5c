package store

import (
	"context"
	"sync"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s StockLedger) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SetProduct(ctx, domain.Product{ID: "a", Name: "A", Price: decimal.NewFromInt(10), Stock: domain.TrackedStock(5)}))
	require.NoError(t, s.SetProduct(ctx, domain.Product{ID: "b", Name: "B", Price: decimal.NewFromInt(20), Stock: domain.TrackedStock(1)}))
	require.NoError(t, s.SetProduct(ctx, domain.Product{ID: "gift", Name: "Gift", Price: decimal.NewFromInt(500)}))
}

func stockOf(t *testing.T, s StockLedger, id string) *int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

// ledgerContract runs the behaviour every StockLedger must share.
func ledgerContract(t *testing.T, newLedger func(t *testing.T) StockLedger) {
	ctx := context.Background()

	t.Run("GetProducts omits missing ids and keeps order", func(t *testing.T) {
		s := newLedger(t)
		seed(t, s)

		products, err := s.GetProducts(ctx, []string{"b", "missing", "a"})
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, "b", products[0].ID)
		assert.Equal(t, "a", products[1].ID)
		assert.True(t, decimal.NewFromInt(20).Equal(products[0].Price))
	})

	t.Run("GetProduct not found", func(t *testing.T) {
		s := newLedger(t)
		_, err := s.GetProduct(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Decrement is idempotent and clamps", func(t *testing.T) {
		s := newLedger(t)
		seed(t, s)
		items := []domain.OrderItem{{ProductID: "a", Qty: 2}, {ProductID: "b", Qty: 3}, {ProductID: "gift", Qty: 9}, {ProductID: "gone", Qty: 1}}

		applied, err := s.Decrement(ctx, "order-1", items)
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = s.Decrement(ctx, "order-1", items)
		require.NoError(t, err)
		assert.False(t, applied)

		assert.Equal(t, 3, *stockOf(t, s, "a"))
		assert.Equal(t, 0, *stockOf(t, s, "b"))
		assert.Nil(t, stockOf(t, s, "gift"))
	})

	t.Run("Restock applies once", func(t *testing.T) {
		s := newLedger(t)
		seed(t, s)
		items := []domain.OrderItem{{ProductID: "a", Qty: 2}}

		_, err := s.Decrement(ctx, "order-1", items)
		require.NoError(t, err)
		applied, err := s.Restock(ctx, "order-1", items)
		require.NoError(t, err)
		assert.True(t, applied)
		applied, err = s.Restock(ctx, "order-1", items)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, 5, *stockOf(t, s, "a"))

		applied, err = s.Decrement(ctx, "order-1", items)
		require.NoError(t, err)
		assert.False(t, applied, "a restocked order is never decremented again")
	})

	t.Run("restock after clamped decrement restores the pre-order level", func(t *testing.T) {
		s := newLedger(t)
		seed(t, s)
		items := []domain.OrderItem{{ProductID: "a", Qty: 7}, {ProductID: "b", Qty: 3}, {ProductID: "gift", Qty: 1}}

		_, err := s.Decrement(ctx, "order-1", items)
		require.NoError(t, err)
		assert.Equal(t, 0, *stockOf(t, s, "a"))
		assert.Equal(t, 0, *stockOf(t, s, "b"))

		applied, err := s.Restock(ctx, "order-1", items)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, 5, *stockOf(t, s, "a"))
		assert.Equal(t, 1, *stockOf(t, s, "b"))
		assert.Nil(t, stockOf(t, s, "gift"))
	})

	t.Run("clamped decrement only returns its own share", func(t *testing.T) {
		s := newLedger(t)
		seed(t, s)

		// two orders of 4 against stock 5: the second only gets 1
		_, err := s.Decrement(ctx, "order-1", []domain.OrderItem{{ProductID: "a", Qty: 4}})
		require.NoError(t, err)
		_, err = s.Decrement(ctx, "order-2", []domain.OrderItem{{ProductID: "a", Qty: 4}})
		require.NoError(t, err)
		assert.Equal(t, 0, *stockOf(t, s, "a"))

		_, err = s.Restock(ctx, "order-2", []domain.OrderItem{{ProductID: "a", Qty: 4}})
		require.NoError(t, err)
		assert.Equal(t, 1, *stockOf(t, s, "a"))
	})

	t.Run("restock before decrement blocks the late decrement", func(t *testing.T) {
		s := newLedger(t)
		seed(t, s)
		items := []domain.OrderItem{{ProductID: "a", Qty: 3}}

		applied, err := s.Restock(ctx, "order-1", items)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, 5, *stockOf(t, s, "a"))

		applied, err = s.Decrement(ctx, "order-1", items)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, 5, *stockOf(t, s, "a"))

		applied, err = s.Restock(ctx, "order-1", items)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, 5, *stockOf(t, s, "a"))
	})
}

func TestMemoryStore_Ledger(t *testing.T) {
	ledgerContract(t, func(t *testing.T) StockLedger {
		s := NewMemoryStore()
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)

	p, err := s.GetProduct(context.Background(), "a")
	require.NoError(t, err)
	*p.Stock = 99

	assert.Equal(t, 5, *stockOf(t, s, "a"))
}

func TestMemoryStore_ConcurrentDecrements(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SetProduct(context.Background(), domain.Product{ID: "a", Stock: domain.TrackedStock(100)}))

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			_, _ = s.Decrement(context.Background(), orderID, []domain.OrderItem{{ProductID: "a", Qty: 1}})
		}(string(rune('A' + i%25)))
	}
	wg.Wait()

	// 25 distinct order ids, each applied once
	assert.Equal(t, 75, *stockOf(t, s, "a"))
}
