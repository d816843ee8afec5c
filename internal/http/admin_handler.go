package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

type AdminOrderService interface {
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByPhone(ctx context.Context, phone string) ([]*domain.Order, error)
	RequestTransition(ctx context.Context, id uuid.UUID, target domain.OrderStatus, note string) (*domain.Order, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) (*domain.Order, error)
	Restock(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	UserReports(ctx context.Context) ([]domain.UserReport, error)
}

type AdminReturnService interface {
	ListReturns(ctx context.Context, status *domain.ReturnStatus) ([]*domain.ReturnRequest, error)
	GetReturnForOrder(ctx context.Context, orderID uuid.UUID) (*domain.ReturnRequest, error)
	Resolve(ctx context.Context, returnID uuid.UUID, decision domain.ReturnStatus, notes, reviewer string) (*domain.ReturnRequest, error)
}

type AdminHandler struct {
	orders      AdminOrderService
	returns     AdminReturnService
	timeout     time.Duration
	maxBodySize int64
	log         *slog.Logger
}

func NewAdminHandler(orders AdminOrderService, returns AdminReturnService, timeout time.Duration, maxBodySize int64, log *slog.Logger) *AdminHandler {
	return &AdminHandler{orders: orders, returns: returns, timeout: timeout, maxBodySize: maxBodySize, log: log}
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type UpdatePaymentRequestDTO struct {
	PaymentStatus string `json:"payment_status"`
}

type ResolveReturnRequestDTO struct {
	AdminNotes string `json:"admin_notes"`
}

// OrderDetailDTO is the admin view of one order, with its return request
// when one was filed.
type OrderDetailDTO struct {
	*domain.Order
	Return *domain.ReturnRequest `json:"return_request,omitempty"`
}

type RestockResponseDTO struct {
	OrderID uuid.UUID `json:"order_id"`
	Applied bool      `json:"applied"`
}

// GET /api/v1/admin/orders?phone=
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		orders []*domain.Order
		err    error
	)
	if phone := strings.TrimSpace(r.URL.Query().Get("phone")); phone != "" {
		orders, err = h.orders.ListOrdersByPhone(ctx, phone)
	} else {
		orders, err = h.orders.ListOrders(ctx)
	}
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// GET /api/v1/admin/orders/{order_id}
func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := parseID(w, r, "order_id")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}

	ret, err := h.returns.GetReturnForOrder(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, OrderDetailDTO{Order: order, Return: ret})
}

// PATCH /api/v1/admin/orders/{order_id}/status
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := parseID(w, r, "order_id")
	if !ok {
		return
	}
	var req UpdateStatusRequestDTO
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		respondError(w, http.StatusBadRequest, "invalid_status", "status is required")
		return
	}
	target, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}

	note := strings.TrimSpace(req.Note)
	if note == "" {
		note = fmt.Sprintf("%s via admin UI", target)
	}

	order, err := h.orders.RequestTransition(ctx, id, target, note)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// PATCH /api/v1/admin/orders/{order_id}/payment
func (h *AdminHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := parseID(w, r, "order_id")
	if !ok {
		return
	}
	var req UpdatePaymentRequestDTO
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}
	if strings.TrimSpace(req.PaymentStatus) == "" {
		respondError(w, http.StatusBadRequest, "invalid_status", "payment_status is required")
		return
	}
	status, err := domain.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}

	order, err := h.orders.SetPaymentStatus(ctx, id, status)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// POST /api/v1/admin/orders/{order_id}/restock
func (h *AdminHandler) Restock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := parseID(w, r, "order_id")
	if !ok {
		return
	}
	applied, err := h.orders.Restock(ctx, id)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, RestockResponseDTO{OrderID: id, Applied: applied})
}

// DELETE /api/v1/admin/orders/{order_id}
func (h *AdminHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := parseID(w, r, "order_id")
	if !ok {
		return
	}
	if err := h.orders.DeleteOrder(ctx, id); err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/admin/returns?status=
func (h *AdminHandler) ListReturns(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var filter *domain.ReturnStatus
	if v := r.URL.Query().Get("status"); v != "" {
		status, err := domain.ParseReturnStatus(v)
		if err != nil {
			handleServiceError(ctx, h.log, w, err)
			return
		}
		filter = &status
	}

	returns, err := h.returns.ListReturns(ctx, filter)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	if returns == nil {
		returns = []*domain.ReturnRequest{}
	}
	respondJSON(w, http.StatusOK, returns)
}

// PATCH /api/v1/admin/returns/{return_id}/approve
func (h *AdminHandler) ApproveReturn(w http.ResponseWriter, r *http.Request) {
	h.resolveReturn(w, r, domain.ReturnStatusApproved)
}

// PATCH /api/v1/admin/returns/{return_id}/reject
func (h *AdminHandler) RejectReturn(w http.ResponseWriter, r *http.Request) {
	h.resolveReturn(w, r, domain.ReturnStatusRejected)
}

func (h *AdminHandler) resolveReturn(w http.ResponseWriter, r *http.Request, decision domain.ReturnStatus) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := parseID(w, r, "return_id")
	if !ok {
		return
	}
	var req ResolveReturnRequestDTO
	if r.ContentLength != 0 && !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}

	ret, err := h.returns.Resolve(ctx, id, decision, req.AdminNotes, getUserIDFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, ret)
}

// GET /api/v1/admin/reports
func (h *AdminHandler) Reports(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	reports, err := h.orders.UserReports(ctx)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	if reports == nil {
		reports = []domain.UserReport{}
	}
	respondJSON(w, http.StatusOK, reports)
}
