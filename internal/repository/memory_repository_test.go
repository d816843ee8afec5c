package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_Orders(t *testing.T) {
	runOrderContract(t, NewMemoryRepository())
}

func TestMemoryRepository_Returns(t *testing.T) {
	runReturnContract(t, NewMemoryRepository())
}

func TestMemoryRepository_Outbox(t *testing.T) {
	runOutboxContract(t, NewMemoryRepository())
}

func TestMemoryRepository_ProcessedEventsArePruned(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for range 3 {
		order := newTestOrder("user-1", "9876543210")
		require.NoError(t, repo.CreateOrder(ctx, order, placedEvent(t, order)))
	}
	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	for _, e := range events[:2] {
		require.NoError(t, repo.MarkEventAsProcessed(ctx, e.ID))
	}
	assert.Len(t, repo.outbox, 1)

	pending, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, events[2].ID, pending[0].ID)

	assert.Error(t, repo.MarkEventAsProcessed(ctx, events[0].ID))
}

func TestMemoryRepository_OrdersAreCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	order := newTestOrder("user-1", "9876543210")
	require.NoError(t, repo.CreateOrder(ctx, order, nil))

	got, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	got.OrderStatus = domain.OrderStatusCancelled
	got.TrackingEvents[0].Note = "mutated"

	again, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPlaced, again.OrderStatus)
	assert.Equal(t, "Order placed", again.TrackingEvents[0].Note)
}

func TestMemoryRepository_DeleteOrderDropsReturn(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	order := newTestOrder("user-1", "9876543210")
	deliver(t, order)
	require.NoError(t, repo.CreateOrder(ctx, order, nil))
	req, err := domain.FileReturn(order, "user-1", "broken", time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.CreateReturn(ctx, req, nil))

	require.NoError(t, repo.DeleteOrder(ctx, order.ID))

	_, err = repo.GetReturnByID(ctx, req.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryRepository_Carts(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.GetCart(ctx, "user-1")
	assert.ErrorIs(t, err, ErrCartNotFound)

	cart := &domain.Cart{UserID: "user-1", Items: []domain.CartEntry{{ProductID: "p-1", Price: decimal.NewFromInt(10), Qty: 2}}}
	require.NoError(t, repo.SaveCart(ctx, cart))
	created := cart.CreatedAt

	cart.Items[0].Qty = 3
	require.NoError(t, repo.SaveCart(ctx, cart))

	got, err := repo.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Items[0].Qty)
	assert.Equal(t, created, got.CreatedAt)

	require.NoError(t, repo.DeleteCart(ctx, "user-1"))
	assert.ErrorIs(t, repo.DeleteCart(ctx, "user-1"), ErrCartNotFound)
}
