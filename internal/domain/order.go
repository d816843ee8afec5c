package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	phonePattern   = regexp.MustCompile(`^[0-9]{10}$`)
	pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)
)

type Customer struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Pincode  string `json:"pincode"`
	Landmark string `json:"landmark,omitempty"`
}

// Normalize trims surrounding whitespace from every field.
func (c Customer) Normalize() Customer {
	return Customer{
		Name:     strings.TrimSpace(c.Name),
		Phone:    strings.TrimSpace(c.Phone),
		Address:  strings.TrimSpace(c.Address),
		Pincode:  strings.TrimSpace(c.Pincode),
		Landmark: strings.TrimSpace(c.Landmark),
	}
}

func (c Customer) Validate() error {
	c = c.Normalize()
	switch {
	case len(c.Name) < 3:
		return fmt.Errorf("%w: name must be at least 3 characters", ErrInvalidCustomer)
	case !phonePattern.MatchString(c.Phone):
		return fmt.Errorf("%w: phone must be 10 digits", ErrInvalidCustomer)
	case len(c.Address) < 5:
		return fmt.Errorf("%w: address must be at least 5 characters", ErrInvalidCustomer)
	case !pincodePattern.MatchString(c.Pincode):
		return fmt.Errorf("%w: pincode must be 6 digits", ErrInvalidCustomer)
	}
	return nil
}

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Qty)))
}

type TrackingEvent struct {
	Status    OrderStatus `json:"status"`
	Note      string      `json:"note"`
	Timestamp time.Time   `json:"timestamp"`
}

// Order carries two independent axes: OrderStatus, which only moves along
// the transition table, and PaymentStatus, which is unguarded.
type Order struct {
	ID             uuid.UUID       `json:"id"`
	UserID         string          `json:"user_id,omitempty"`
	Customer       Customer        `json:"customer"`
	Items          []OrderItem     `json:"items"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	OrderStatus    OrderStatus     `json:"order_status"`
	TrackingEvents []TrackingEvent `json:"tracking_events"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

const orderPlacedNote = "Order placed"

// NewOrder builds a PLACED order with its first tracking event.
func NewOrder(userID string, customer Customer, method PaymentMethod, items []OrderItem, total decimal.Decimal, now time.Time) *Order {
	return &Order{
		ID:            uuid.New(),
		UserID:        userID,
		Customer:      customer.Normalize(),
		Items:         items,
		TotalAmount:   total,
		PaymentMethod: method,
		PaymentStatus: PaymentStatusPending,
		OrderStatus:   OrderStatusPlaced,
		TrackingEvents: []TrackingEvent{
			{Status: OrderStatusPlaced, Note: orderPlacedNote, Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RequestTransition moves the order along one edge of the transition table
// and appends the matching tracking event. On rejection the order is left
// untouched.
func (o *Order) RequestTransition(target OrderStatus, note string, now time.Time) error {
	if !target.Valid() {
		return fmt.Errorf("%w: order status %s", ErrInvalidStatusName, target)
	}
	if !CanTransition(o.OrderStatus, target) {
		return &TransitionError{
			Current: o.OrderStatus,
			Target:  target,
			Allowed: AllowedTransitions(o.OrderStatus),
		}
	}

	o.OrderStatus = target
	o.TrackingEvents = append(o.TrackingEvents, TrackingEvent{
		Status:    target,
		Note:      note,
		Timestamp: now,
	})
	o.UpdatedAt = now
	return nil
}

// SetPaymentStatus replaces the payment status regardless of the shipping status.
func (o *Order) SetPaymentStatus(status PaymentStatus, now time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: payment status %s", ErrInvalidStatusName, status)
	}
	o.PaymentStatus = status
	o.UpdatedAt = now
	return nil
}

// Compensable reports whether stock taken by this order may be put back.
func (o *Order) Compensable() bool {
	return o.OrderStatus == OrderStatusCancelled || o.OrderStatus == OrderStatusReturned
}

// Clone returns a deep copy safe to hand across goroutines.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.TrackingEvents = append([]TrackingEvent(nil), o.TrackingEvents...)
	return &c
}
