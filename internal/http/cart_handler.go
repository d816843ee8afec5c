package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
)

type CartService interface {
	GetCart(ctx context.Context, userID string) (*service.CartView, error)
	AddItem(ctx context.Context, userID, productID string, qty int) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, userID, productID string, qty int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

type CartHandler struct {
	carts       CartService
	timeout     time.Duration
	maxBodySize int64
	log         *slog.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, maxBodySize int64, log *slog.Logger) *CartHandler {
	return &CartHandler{carts: carts, timeout: timeout, maxBodySize: maxBodySize, log: log}
}

// AddItemRequestDTO adds one unit when quantity is omitted.
type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity,omitempty"`
}

const defaultAddQuantity = 1

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.carts.GetCart(ctx, getUserIDFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	qty := defaultAddQuantity
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if qty <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be greater than 0")
		return
	}

	cart, err := h.carts.AddItem(ctx, getUserIDFromContext(ctx), req.ProductID, qty)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cart)
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be greater than 0")
		return
	}

	cart, err := h.carts.UpdateQuantity(ctx, getUserIDFromContext(ctx), chi.URLParam(r, "product_id"), req.Quantity)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.RemoveItem(ctx, getUserIDFromContext(ctx), chi.URLParam(r, "product_id"))
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.carts.ClearCart(ctx, getUserIDFromContext(ctx)); err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
