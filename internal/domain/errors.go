package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds visible to callers. Every one of them is a recoverable
// validation failure; infrastructure errors are wrapped separately.
var (
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrStockExceeded     = errors.New("requested quantity exceeds available stock")
	ErrEmptyCart         = errors.New("cart is empty, nothing to checkout")
	ErrNotDeliverable    = errors.New("order has not been delivered")
	ErrDuplicateReturn   = errors.New("a return request already exists for this order")
	ErrEmptyReason       = errors.New("return reason is required")
	ErrAlreadyResolved   = errors.New("return request is already resolved")
	ErrNotFound          = errors.New("not found")

	ErrReasonTooLong     = errors.New("text exceeds the allowed length")
	ErrInvalidDecision   = errors.New("decision must be APPROVED or REJECTED")
	ErrInvalidCustomer   = errors.New("invalid customer details")
	ErrInvalidQuantity   = errors.New("quantity must be greater than 0")
	ErrCartAdjusted      = errors.New("cart was adjusted to current stock")
	ErrNotCompensable    = errors.New("order is not cancelled or returned")
	ErrVersionConflict   = errors.New("order was modified concurrently")
	ErrInvalidStatusName = errors.New("unknown status")
)

// TransitionError names the rejected edge and the edges that were available.
type TransitionError struct {
	Current OrderStatus
	Target  OrderStatus
	Allowed []OrderStatus
}

func (e *TransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		names := make([]string, len(e.Allowed))
		for i, s := range e.Allowed {
			names[i] = s.String()
		}
		allowed = strings.Join(names, ", ")
	}
	return fmt.Sprintf("cannot move from %s to %s; allowed: %s", e.Current, e.Target, allowed)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// StockError is returned by cart guards. MaxAddable is how many more units
// could still be added on top of InCart.
type StockError struct {
	Kind       error
	ProductID  string
	Requested  int
	InCart     int
	Available  int
	MaxAddable int
}

func (e *StockError) Error() string {
	if e.Kind == ErrOutOfStock {
		return fmt.Sprintf("product %s is out of stock", e.ProductID)
	}
	return fmt.Sprintf("only %d units of product %s available, %d already in cart; requested %d, at most %d more can be added",
		e.Available, e.ProductID, e.InCart, e.Requested, e.MaxAddable)
}

func (e *StockError) Is(target error) bool {
	return target == e.Kind
}

// CartAdjustedError is returned when checkout finds the cart out of date with
// live stock. The corrected cart has already been persisted.
type CartAdjustedError struct {
	Report ReconcileReport
}

func (e *CartAdjustedError) Error() string {
	return fmt.Sprintf("%s: %d item(s) changed, review the cart before checkout", ErrCartAdjusted, len(e.Report.Adjustments))
}

func (e *CartAdjustedError) Is(target error) bool {
	return target == ErrCartAdjusted
}

// NotFoundError names the missing entity.
func NotFoundError(entity, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
}
