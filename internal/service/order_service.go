package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type PlaceOrderRequest struct {
	Customer      domain.Customer
	PaymentMethod domain.PaymentMethod
}

type OrderService struct {
	orders  repository.OrderRepository
	carts   *CartService
	ledger  store.StockLedger
	metrics *metrics.Metrics
	log     *slog.Logger
	locks   *keyedMutex
	now     func() time.Time
}

func NewOrderService(orders repository.OrderRepository, carts *CartService, ledger store.StockLedger, m *metrics.Metrics, log *slog.Logger) *OrderService {
	return &OrderService{
		orders:  orders,
		carts:   carts,
		ledger:  ledger,
		metrics: m,
		log:     log.With("component", "order_service"),
		locks:   newKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder turns the shopper's cart into a PLACED order. The OrderPlaced
// event is stored with the order; stock is decremented when it is consumed.
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, req PlaceOrderRequest) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.PlaceOrder")
	defer span.End()

	if err := req.Customer.Validate(); err != nil {
		return nil, err
	}
	method := req.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodCOD
	}

	var order *domain.Order
	err := s.carts.Checkout(ctx, userID, func(items []domain.OrderItem, total decimal.Decimal) error {
		order = domain.NewOrder(userID, req.Customer, method, items, total, s.now())

		event, err := repository.NewOutboxEvent(order.ID.String(), domain.EventOrderPlaced, domain.OrderPlacedEvent{
			OrderID:     order.ID,
			UserID:      userID,
			Items:       order.Items,
			TotalAmount: order.TotalAmount,
			PlacedAt:    order.CreatedAt,
		})
		if err != nil {
			return err
		}
		return s.orders.CreateOrder(ctx, order, event)
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrCartAdjusted) {
			s.log.InfoContext(ctx, "checkout aborted, cart adjusted", "user_id", userID)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID.String()))
	s.log.InfoContext(ctx, "order placed", "order_id", order.ID, "user_id", userID, "total", order.TotalAmount.String())
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.orders.GetOrderByID(ctx, id)
}

// GetOrderForUser hides orders owned by someone else behind not found.
func (s *OrderService) GetOrderForUser(ctx context.Context, userID string, id uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ownedBy(order, userID) {
		return nil, domain.NotFoundError("order", id.String())
	}
	return order, nil
}

// ownedBy never matches legacy phone-keyed orders; those are reachable only
// through the admin phone lookup.
func ownedBy(order *domain.Order, userID string) bool {
	return order.UserID != "" && order.UserID == userID
}

func (s *OrderService) ListOrdersByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.orders.ListOrdersByUserID(ctx, userID)
}

// ListOrdersByPhone finds orders placed before accounts were linked.
func (s *OrderService) ListOrdersByPhone(ctx context.Context, phone string) ([]*domain.Order, error) {
	return s.orders.ListOrdersByPhone(ctx, phone)
}

func (s *OrderService) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return s.orders.ListOrders(ctx)
}

// RequestTransition applies one edge of the shipping state machine. Requests
// for the same order are serialized in process; the repository version check
// rejects writers from other processes.
func (s *OrderService) RequestTransition(ctx context.Context, id uuid.UUID, target domain.OrderStatus, note string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.RequestTransition",
		trace.WithAttributes(attribute.String("order.id", id.String()), attribute.String("order.target", target.String())))
	defer span.End()

	unlock := s.locks.Lock(id.String())
	defer unlock()

	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := order.OrderStatus
	now := s.now()
	if err := order.RequestTransition(target, note, now); err != nil {
		s.metrics.ObserveTransition("rejected")
		s.log.InfoContext(ctx, "transition rejected", "order_id", id, "from", from, "to", target, "error", err)
		return nil, err
	}

	event, err := repository.NewOutboxEvent(id.String(), domain.EventOrderStatusChanged, domain.OrderStatusChangedEvent{
		OrderID:   id,
		From:      from,
		To:        target,
		Note:      note,
		ChangedAt: now,
	})
	if err != nil {
		return nil, err
	}

	if err := s.orders.UpdateOrder(ctx, order, event); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			s.metrics.ObserveTransition("conflict")
		}
		span.RecordError(err)
		return nil, err
	}

	s.metrics.ObserveTransition("applied")
	s.log.InfoContext(ctx, "order status changed", "order_id", id, "from", from, "to", target)
	return order, nil
}

// SetPaymentStatus replaces the payment status whatever the shipping status is.
func (s *OrderService) SetPaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) (*domain.Order, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := order.PaymentStatus
	now := s.now()
	if err := order.SetPaymentStatus(status, now); err != nil {
		return nil, err
	}

	event, err := repository.NewOutboxEvent(id.String(), domain.EventPaymentStatusChanged, domain.PaymentStatusChangedEvent{
		OrderID:   id,
		From:      from,
		To:        status,
		ChangedAt: now,
	})
	if err != nil {
		return nil, err
	}

	if err := s.orders.UpdateOrder(ctx, order, event); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "payment status changed", "order_id", id, "from", from, "to", status)
	return order, nil
}

func (s *OrderService) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	if err := s.orders.DeleteOrder(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "order deleted", "order_id", id)
	return nil
}

// Restock is the compensating workflow for cancelled and returned orders.
// It never runs on its own; an admin triggers it. Restocking an order twice,
// or one whose stock was never taken, changes nothing and reports false.
func (s *OrderService) Restock(ctx context.Context, id uuid.UUID) (bool, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !order.Compensable() {
		return false, fmt.Errorf("%w: order %s is %s", domain.ErrNotCompensable, id, order.OrderStatus)
	}

	applied, err := s.ledger.Restock(ctx, id.String(), order.Items)
	if err != nil {
		return false, fmt.Errorf("restock order %s: %w", id, err)
	}
	s.log.InfoContext(ctx, "restock requested", "order_id", id, "applied", applied)
	return applied, nil
}

func (s *OrderService) UserReports(ctx context.Context) ([]domain.UserReport, error) {
	return s.orders.UserReports(ctx)
}
