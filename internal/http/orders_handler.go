package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, userID string, req service.PlaceOrderRequest) (*domain.Order, error)
	GetOrderForUser(ctx context.Context, userID string, id uuid.UUID) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]*domain.Order, error)
}

type ReturnService interface {
	FileReturn(ctx context.Context, userID string, orderID uuid.UUID, reason string) (*domain.ReturnRequest, error)
	ListReturnsByUser(ctx context.Context, userID string) ([]*domain.ReturnRequest, error)
}

// OrdersHandler serves the shopper's side: checkout, order history and returns.
type OrdersHandler struct {
	orders      OrderService
	returns     ReturnService
	timeout     time.Duration
	maxBodySize int64
	log         *slog.Logger
}

func NewOrdersHandler(orders OrderService, returns ReturnService, timeout time.Duration, maxBodySize int64, log *slog.Logger) *OrdersHandler {
	return &OrdersHandler{orders: orders, returns: returns, timeout: timeout, maxBodySize: maxBodySize, log: log}
}

type CheckoutRequestDTO struct {
	Customer      domain.Customer `json:"customer"`
	PaymentMethod string          `json:"payment_method"`
}

type FileReturnRequestDTO struct {
	Reason string `json:"reason"`
}

// POST /api/v1/checkout
func (h *OrdersHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payment_method", err.Error())
		return
	}

	order, err := h.orders.PlaceOrder(ctx, getUserIDFromContext(ctx), service.PlaceOrderRequest{
		Customer:      req.Customer,
		PaymentMethod: method,
	})
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrdersByUser(ctx, getUserIDFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := parseID(w, r, "order_id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrderForUser(ctx, getUserIDFromContext(ctx), id)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// POST /api/v1/orders/{order_id}/returns
func (h *OrdersHandler) FileReturn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := parseID(w, r, "order_id")
	if !ok {
		return
	}
	var req FileReturnRequestDTO
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}

	ret, err := h.returns.FileReturn(ctx, getUserIDFromContext(ctx), id, req.Reason)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ret)
}

// GET /api/v1/returns
func (h *OrdersHandler) ListReturns(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	returns, err := h.returns.ListReturnsByUser(ctx, getUserIDFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	if returns == nil {
		returns = []*domain.ReturnRequest{}
	}
	respondJSON(w, http.StatusOK, returns)
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
