package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
	"github.com/sony/gobreaker/v2"
)

type ErrorResponse struct {
	Error       string              `json:"error"`
	Code        string              `json:"code,omitempty"`
	Details     string              `json:"details,omitempty"`
	Allowed     []string            `json:"allowed,omitempty"`
	MaxAddable  *int                `json:"max_addable,omitempty"`
	Adjustments []domain.Adjustment `json:"adjustments,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// decodeJSON reads a bounded JSON body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// errorStatus maps a service error to its HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrOutOfStock):
		return http.StatusConflict, "out_of_stock"
	case errors.Is(err, domain.ErrStockExceeded):
		return http.StatusConflict, "stock_exceeded"
	case errors.Is(err, domain.ErrCartAdjusted):
		return http.StatusConflict, "cart_adjusted"
	case errors.Is(err, domain.ErrNotDeliverable):
		return http.StatusConflict, "not_deliverable"
	case errors.Is(err, domain.ErrDuplicateReturn):
		return http.StatusConflict, "duplicate_return"
	case errors.Is(err, domain.ErrAlreadyResolved):
		return http.StatusConflict, "already_resolved"
	case errors.Is(err, domain.ErrNotCompensable):
		return http.StatusConflict, "not_compensable"
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest, "empty_cart"
	case errors.Is(err, domain.ErrEmptyReason):
		return http.StatusBadRequest, "empty_reason"
	case errors.Is(err, domain.ErrReasonTooLong):
		return http.StatusBadRequest, "text_too_long"
	case errors.Is(err, domain.ErrInvalidCustomer):
		return http.StatusBadRequest, "invalid_customer"
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, domain.ErrInvalidDecision), errors.Is(err, domain.ErrInvalidStatusName):
		return http.StatusBadRequest, "invalid_status"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// handleServiceError writes err as an ErrorResponse. Business errors echo
// their message; infrastructure errors are logged and hidden.
func handleServiceError(ctx context.Context, log *slog.Logger, w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.ErrorContext(ctx, "request failed", "code", code, "error", err)
		respondError(w, status, code, http.StatusText(status))
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}

	var te *domain.TransitionError
	var se *domain.StockError
	var ae *domain.CartAdjustedError
	switch {
	case errors.As(err, &te):
		resp.Allowed = make([]string, len(te.Allowed))
		for i, s := range te.Allowed {
			resp.Allowed[i] = s.String()
		}
	case errors.As(err, &se):
		resp.MaxAddable = &se.MaxAddable
	case errors.As(err, &ae):
		resp.Adjustments = ae.Report.Adjustments
	}
	respondJSON(w, status, resp)
}
