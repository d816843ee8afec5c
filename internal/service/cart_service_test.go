package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCart_Empty(t *testing.T) {
	f := newFixture(t)

	view, err := f.carts.GetCart(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", view.UserID)
	assert.Empty(t, view.Items)
	assert.Nil(t, view.Notice)
	assert.True(t, view.Total.IsZero())
}

func TestAddItem_ThenGetCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setProduct(t, "a", domain.TrackedStock(4), "100.50")
	f.setProduct(t, "gift", nil, "500")

	_, err := f.carts.AddItem(ctx, "user-1", "a", 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "user-1", "gift", 3)
	require.NoError(t, err)

	view, err := f.carts.GetCart(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Nil(t, view.Notice)
	assert.True(t, decimal.RequireFromString("1701.00").Equal(view.Total), view.Total.String())
	assert.True(t, view.Items[0].LowStock)
	assert.Equal(t, 4, *view.Items[0].Stock)
	assert.Nil(t, view.Items[1].Stock)
}

func TestAddItem_StockGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setProduct(t, "a", domain.TrackedStock(3), "10")
	f.setProduct(t, "gone", domain.TrackedStock(0), "10")

	_, err := f.carts.AddItem(ctx, "user-1", "gone", 1)
	assert.ErrorIs(t, err, domain.ErrOutOfStock)

	_, err = f.carts.AddItem(ctx, "user-1", "a", 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "user-1", "a", 2)
	require.ErrorIs(t, err, domain.ErrStockExceeded)
	var se *domain.StockError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.MaxAddable)

	_, err = f.carts.AddItem(ctx, "user-1", "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetCart_ReconcilesAndNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setProduct(t, "a", domain.TrackedStock(5), "10")
	f.setProduct(t, "b", domain.TrackedStock(5), "10")
	f.setProduct(t, "c", domain.TrackedStock(5), "10")

	for _, id := range []string{"a", "b", "c"} {
		_, err := f.carts.AddItem(ctx, "user-1", id, 5)
		require.NoError(t, err)
	}

	// stock moves underneath the cart
	f.setProduct(t, "a", domain.TrackedStock(2), "10")
	f.setProduct(t, "b", domain.TrackedStock(0), "10")

	view, err := f.carts.GetCart(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, view.Notice)
	assert.True(t, view.Notice.Changed)
	require.Len(t, view.Notice.Adjustments, 2)
	assert.Equal(t, domain.AdjustmentCapped, view.Notice.Adjustments[0].Reason)
	assert.Equal(t, domain.AdjustmentRemovedOutOfStock, view.Notice.Adjustments[1].Reason)
	require.Len(t, view.Items, 2)
	assert.Equal(t, 2, view.Items[0].Qty)

	stored, err := f.repo.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)

	again, err := f.carts.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, again.Notice)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Reconciliations.WithLabelValues("true")))
}

func TestGetCart_CacheErrorFallsBackToRepository(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setProduct(t, "a", nil, "10")
	_, err := f.carts.AddItem(ctx, "user-1", "a", 1)
	require.NoError(t, err)

	f.cache.err = errors.New("redis down")

	view, err := f.carts.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)
}

func TestCart_WritesInvalidateCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setProduct(t, "a", nil, "10")

	_, err := f.carts.AddItem(ctx, "user-1", "a", 1)
	require.NoError(t, err)
	_, err = f.carts.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, f.cache.cached("user-1"))

	_, err = f.carts.UpdateQuantity(ctx, "user-1", "a", 4)
	require.NoError(t, err)
	assert.False(t, f.cache.cached("user-1"))

	view, err := f.carts.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, view.Items[0].Qty)
}

func TestUpdateQuantityAndRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setProduct(t, "a", domain.TrackedStock(3), "10")

	_, err := f.carts.AddItem(ctx, "user-1", "a", 1)
	require.NoError(t, err)

	_, err = f.carts.UpdateQuantity(ctx, "user-1", "a", 5)
	assert.ErrorIs(t, err, domain.ErrStockExceeded)
	_, err = f.carts.UpdateQuantity(ctx, "user-1", "a", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	cart, err := f.carts.RemoveItem(ctx, "user-1", "a")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	_, err = f.carts.RemoveItem(ctx, "user-1", "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.NoError(t, f.carts.ClearCart(ctx, "user-1"))
	assert.NoError(t, f.carts.ClearCart(ctx, "nobody"))
}

func TestAddItem_ConcurrentSameUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setProduct(t, "a", domain.TrackedStock(100), "10")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.carts.AddItem(ctx, "user-1", "a", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	view, err := f.carts.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 20, view.Items[0].Qty)
}
