package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// OrderStatus is the shipping axis of an order. The zero value is
// OrderStatusPlaced, so orders persisted without a status read as PLACED.
type OrderStatus uint8

const (
	OrderStatusPlaced OrderStatus = iota
	OrderStatusConfirmed
	OrderStatusShipped
	OrderStatusOutForDelivery
	OrderStatusDelivered
	OrderStatusCancelled
	OrderStatusReturned

	orderStatusCount
)

var orderStatusNames = [orderStatusCount]string{
	OrderStatusPlaced:         "PLACED",
	OrderStatusConfirmed:      "CONFIRMED",
	OrderStatusShipped:        "SHIPPED",
	OrderStatusOutForDelivery: "OUT_FOR_DELIVERY",
	OrderStatusDelivered:      "DELIVERED",
	OrderStatusCancelled:      "CANCELLED",
	OrderStatusReturned:       "RETURNED",
}

// orderTransitions[from][to] reports whether from -> to is an allowed edge.
var orderTransitions = [orderStatusCount][orderStatusCount]bool{
	OrderStatusPlaced: {
		OrderStatusConfirmed: true,
		OrderStatusCancelled: true,
	},
	OrderStatusConfirmed: {
		OrderStatusShipped:   true,
		OrderStatusCancelled: true,
	},
	OrderStatusShipped: {
		OrderStatusOutForDelivery: true,
		OrderStatusCancelled:      true,
	},
	OrderStatusOutForDelivery: {
		OrderStatusDelivered: true,
		OrderStatusCancelled: true,
	},
	OrderStatusDelivered: {
		OrderStatusReturned: true,
	},
}

// OrderStatuses lists every shipping status in lifecycle order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, 0, orderStatusCount)
	for s := OrderStatusPlaced; s < orderStatusCount; s++ {
		out = append(out, s)
	}
	return out
}

// CanTransition is total over every pair of statuses: anything outside the
// enumeration is never a valid endpoint.
func CanTransition(from, to OrderStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return orderTransitions[from][to]
}

// AllowedTransitions returns the statuses reachable from s in one step.
func AllowedTransitions(s OrderStatus) []OrderStatus {
	var out []OrderStatus
	for _, to := range OrderStatuses() {
		if CanTransition(s, to) {
			out = append(out, to)
		}
	}
	return out
}

func (s OrderStatus) Valid() bool {
	return s < orderStatusCount
}

func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && len(AllowedTransitions(s)) == 0
}

func (s OrderStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("OrderStatus(%d)", uint8(s))
	}
	return orderStatusNames[s]
}

// ParseOrderStatus accepts the canonical upper-case names. An empty string is
// a legacy record and maps to PLACED.
func ParseOrderStatus(v string) (OrderStatus, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" {
		return OrderStatusPlaced, nil
	}
	for i, name := range orderStatusNames {
		if name == v {
			return OrderStatus(i), nil
		}
	}
	return 0, fmt.Errorf("%w: order status %q", ErrInvalidStatusName, v)
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid order status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *OrderStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseOrderStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value stores the status by name.
func (s OrderStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid order status %d", uint8(s))
	}
	return s.String(), nil
}

func (s *OrderStatus) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = OrderStatusPlaced
		return nil
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into OrderStatus", src)
	}
}
