package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types published on the order-events topic.
const (
	EventOrderPlaced          = "OrderPlaced"
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventPaymentStatusChanged = "PaymentStatusChanged"
	EventReturnFiled          = "ReturnFiled"
	EventReturnResolved       = "ReturnResolved"
)

type OrderPlacedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	UserID      string          `json:"user_id"`
	Items       []OrderItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PlacedAt    time.Time       `json:"placed_at"`
}

type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID   `json:"order_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	Note      string      `json:"note"`
	ChangedAt time.Time   `json:"changed_at"`
}

type PaymentStatusChangedEvent struct {
	OrderID   uuid.UUID     `json:"order_id"`
	From      PaymentStatus `json:"from"`
	To        PaymentStatus `json:"to"`
	ChangedAt time.Time     `json:"changed_at"`
}

type ReturnEvent struct {
	ReturnID     uuid.UUID       `json:"return_id"`
	OrderID      uuid.UUID       `json:"order_id"`
	Status       ReturnStatus    `json:"status"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	At           time.Time       `json:"at"`
}

// UserReport aggregates a shopper's orders for the admin reports view.
type UserReport struct {
	UserID      string          `json:"user_id"`
	OrderCount  int             `json:"order_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	LastOrderAt time.Time       `json:"last_order_at"`
}
