package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type store interface {
	OrderRepository
	ReturnRepository
	OutboxRepository
}

func newTestOrder(userID, phone string) *domain.Order {
	items := []domain.OrderItem{{ProductID: "p-1", Name: "Whey Protein", Price: decimal.RequireFromString("899.50"), Qty: 2}}
	customer := domain.Customer{Name: "Asha", Phone: phone, Address: "12 MG Road", Pincode: "560001"}
	return domain.NewOrder(userID, customer, domain.PaymentMethodCOD, items, decimal.RequireFromString("1799.00"), time.Now().UTC().Truncate(time.Millisecond))
}

func deliver(t *testing.T, o *domain.Order) {
	t.Helper()
	for _, s := range []domain.OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusShipped, domain.OrderStatusOutForDelivery, domain.OrderStatusDelivered} {
		require.NoError(t, o.RequestTransition(s, "", time.Now().UTC()))
	}
}

func placedEvent(t *testing.T, o *domain.Order) *OutboxEvent {
	t.Helper()
	e, err := NewOutboxEvent(o.ID.String(), domain.EventOrderPlaced, domain.OrderPlacedEvent{OrderID: o.ID, Items: o.Items})
	require.NoError(t, err)
	return e
}

func runOrderContract(t *testing.T, repo store) {
	ctx := context.Background()

	t.Run("create and get order", func(t *testing.T) {
		order := newTestOrder("user-1", "9876543210")
		require.NoError(t, repo.CreateOrder(ctx, order, placedEvent(t, order)))

		got, err := repo.GetOrderByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.ID, got.ID)
		assert.Equal(t, domain.OrderStatusPlaced, got.OrderStatus)
		assert.Equal(t, domain.PaymentStatusPending, got.PaymentStatus)
		assert.Equal(t, "9876543210", got.Customer.Phone)
		assert.True(t, order.TotalAmount.Equal(got.TotalAmount))
		require.Len(t, got.TrackingEvents, 1)
		require.Len(t, got.Items, 1)
		assert.True(t, decimal.RequireFromString("899.50").Equal(got.Items[0].Price))
	})

	t.Run("get missing order", func(t *testing.T) {
		_, err := repo.GetOrderByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("update checks version", func(t *testing.T) {
		order := newTestOrder("user-2", "9000000002")
		require.NoError(t, repo.CreateOrder(ctx, order, nil))

		first, err := repo.GetOrderByID(ctx, order.ID)
		require.NoError(t, err)
		second, err := repo.GetOrderByID(ctx, order.ID)
		require.NoError(t, err)

		require.NoError(t, first.RequestTransition(domain.OrderStatusConfirmed, "ok", time.Now().UTC()))
		require.NoError(t, repo.UpdateOrder(ctx, first, nil))
		assert.Equal(t, int64(1), first.Version)

		require.NoError(t, second.RequestTransition(domain.OrderStatusCancelled, "late", time.Now().UTC()))
		err = repo.UpdateOrder(ctx, second, nil)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)

		got, err := repo.GetOrderByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusConfirmed, got.OrderStatus)
		assert.Len(t, got.TrackingEvents, 2)
	})

	t.Run("list by user and phone", func(t *testing.T) {
		a := newTestOrder("user-list", "9111111111")
		b := newTestOrder("", "9111111111")
		require.NoError(t, repo.CreateOrder(ctx, a, nil))
		require.NoError(t, repo.CreateOrder(ctx, b, nil))

		byUser, err := repo.ListOrdersByUserID(ctx, "user-list")
		require.NoError(t, err)
		assert.Len(t, byUser, 1)

		byPhone, err := repo.ListOrdersByPhone(ctx, "9111111111")
		require.NoError(t, err)
		assert.Len(t, byPhone, 2)

		none, err := repo.ListOrdersByUserID(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("user reports", func(t *testing.T) {
		for range 2 {
			o := newTestOrder("user-report", "9222222222")
			require.NoError(t, repo.CreateOrder(ctx, o, nil))
		}
		reports, err := repo.UserReports(ctx)
		require.NoError(t, err)

		var found *domain.UserReport
		for i := range reports {
			if reports[i].UserID == "user-report" {
				found = &reports[i]
			}
			assert.NotEmpty(t, reports[i].UserID)
		}
		require.NotNil(t, found)
		assert.Equal(t, 2, found.OrderCount)
		assert.True(t, decimal.RequireFromString("3598.00").Equal(found.TotalAmount), found.TotalAmount.String())
	})

	t.Run("delete order", func(t *testing.T) {
		order := newTestOrder("user-del", "9333333333")
		require.NoError(t, repo.CreateOrder(ctx, order, nil))
		require.NoError(t, repo.DeleteOrder(ctx, order.ID))
		_, err := repo.GetOrderByID(ctx, order.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteOrder(ctx, order.ID), domain.ErrNotFound)
	})
}

func runReturnContract(t *testing.T, repo store) {
	ctx := context.Background()

	t.Run("concurrent filings create exactly one request", func(t *testing.T) {
		order := newTestOrder("user-r1", "9444444444")
		deliver(t, order)
		require.NoError(t, repo.CreateOrder(ctx, order, nil))

		var wg sync.WaitGroup
		var created, duplicates atomic.Int32
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				req, err := domain.FileReturn(order, "user-r1", "damaged", time.Now().UTC())
				if err != nil {
					return
				}
				err = repo.CreateReturn(ctx, req, nil)
				switch {
				case err == nil:
					created.Add(1)
				case assert.ErrorIs(t, err, domain.ErrDuplicateReturn):
					duplicates.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), created.Load())
		assert.Equal(t, int32(7), duplicates.Load())

		got, err := repo.GetReturnByOrderID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReturnStatusPending, got.Status)
		assert.True(t, order.TotalAmount.Equal(got.RefundAmount))
	})

	t.Run("resolve is compare-and-set on PENDING", func(t *testing.T) {
		order := newTestOrder("user-r2", "9555555555")
		deliver(t, order)
		require.NoError(t, repo.CreateOrder(ctx, order, nil))
		req, err := domain.FileReturn(order, "user-r2", "wrong size", time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, repo.CreateReturn(ctx, req, nil))

		approve, err := repo.GetReturnByID(ctx, req.ID)
		require.NoError(t, err)
		reject, err := repo.GetReturnByID(ctx, req.ID)
		require.NoError(t, err)

		require.NoError(t, approve.Resolve(domain.ReturnStatusApproved, "ok", "admin-1", time.Now().UTC()))
		require.NoError(t, repo.ResolveReturn(ctx, approve, nil))

		require.NoError(t, reject.Resolve(domain.ReturnStatusRejected, "no", "admin-2", time.Now().UTC()))
		assert.ErrorIs(t, repo.ResolveReturn(ctx, reject, nil), domain.ErrAlreadyResolved)

		got, err := repo.GetReturnByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReturnStatusApproved, got.Status)
		assert.Equal(t, "admin-1", got.ReviewedBy)
		require.NotNil(t, got.ReviewedAt)

		approved := domain.ReturnStatusApproved
		list, err := repo.ListReturns(ctx, &approved)
		require.NoError(t, err)
		assert.NotEmpty(t, list)
		for _, r := range list {
			assert.Equal(t, domain.ReturnStatusApproved, r.Status)
		}

		mine, err := repo.ListReturnsByUserID(ctx, "user-r2")
		require.NoError(t, err)
		assert.Len(t, mine, 1)
	})

	t.Run("missing return", func(t *testing.T) {
		_, err := repo.GetReturnByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = repo.GetReturnByOrderID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func runOutboxContract(t *testing.T, repo store) {
	ctx := context.Background()

	order := newTestOrder("user-outbox", "9666666666")
	event := placedEvent(t, order)
	require.NoError(t, repo.CreateOrder(ctx, order, event))

	events, err := repo.GetUnprocessedEvents(ctx, 100)
	require.NoError(t, err)

	var found *OutboxEvent
	for _, e := range events {
		if e.ID == event.ID {
			found = e
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, domain.EventOrderPlaced, found.EventType)
	assert.Equal(t, order.ID.String(), found.AggregateID)
	assert.JSONEq(t, string(event.Payload), string(found.Payload))

	require.NoError(t, repo.MarkEventAsProcessed(ctx, event.ID))
	events, err = repo.GetUnprocessedEvents(ctx, 100)
	require.NoError(t, err)
	for _, e := range events {
		assert.NotEqual(t, event.ID, e.ID)
	}
}
