package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxTextLength bounds return reasons and admin notes, in characters.
const MaxTextLength = 500

type ReturnStatus uint8

const (
	ReturnStatusPending ReturnStatus = iota
	ReturnStatusApproved
	ReturnStatusRejected

	returnStatusCount
)

var returnStatusNames = [returnStatusCount]string{
	ReturnStatusPending:  "PENDING",
	ReturnStatusApproved: "APPROVED",
	ReturnStatusRejected: "REJECTED",
}

func (s ReturnStatus) Valid() bool {
	return s < returnStatusCount
}

func (s ReturnStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("ReturnStatus(%d)", uint8(s))
	}
	return returnStatusNames[s]
}

func ParseReturnStatus(v string) (ReturnStatus, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for i, name := range returnStatusNames {
		if name == v {
			return ReturnStatus(i), nil
		}
	}
	return 0, fmt.Errorf("%w: return status %q", ErrInvalidStatusName, v)
}

func (s ReturnStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid return status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *ReturnStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseReturnStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s ReturnStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid return status %d", uint8(s))
	}
	return s.String(), nil
}

func (s *ReturnStatus) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into ReturnStatus", src)
	}
}

// ReturnRequest is a shopper's request to return a delivered order. At most
// one exists per order; once resolved it is immutable.
type ReturnRequest struct {
	ID           uuid.UUID       `json:"id"`
	OrderID      uuid.UUID       `json:"order_id"`
	UserID       string          `json:"user_id"`
	Items        []OrderItem     `json:"items"`
	Reason       string          `json:"reason"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Status       ReturnStatus    `json:"status"`
	AdminNotes   string          `json:"admin_notes,omitempty"`
	ReviewedBy   string          `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (r *ReturnRequest) Resolved() bool {
	return r.Status != ReturnStatusPending
}

// FileReturn validates the order and reason and builds a PENDING request
// snapshotting the order's items and total. Uniqueness per order is enforced
// by whoever persists it.
func FileReturn(order *Order, requester, reason string, now time.Time) (*ReturnRequest, error) {
	if order.OrderStatus != OrderStatusDelivered {
		return nil, fmt.Errorf("%w: order %s is %s", ErrNotDeliverable, order.ID, order.OrderStatus)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrEmptyReason
	}
	if err := checkTextLength(reason); err != nil {
		return nil, err
	}

	return &ReturnRequest{
		ID:           uuid.New(),
		OrderID:      order.ID,
		UserID:       requester,
		Items:        append([]OrderItem(nil), order.Items...),
		Reason:       reason,
		RefundAmount: order.TotalAmount,
		Status:       ReturnStatusPending,
		CreatedAt:    now,
	}, nil
}

// Resolve approves or rejects a PENDING request. It does not touch the order.
func (r *ReturnRequest) Resolve(decision ReturnStatus, notes, reviewer string, now time.Time) error {
	if decision != ReturnStatusApproved && decision != ReturnStatusRejected {
		return ErrInvalidDecision
	}
	if r.Resolved() {
		return fmt.Errorf("%w: return %s is %s", ErrAlreadyResolved, r.ID, r.Status)
	}
	notes = strings.TrimSpace(notes)
	if err := checkTextLength(notes); err != nil {
		return err
	}

	r.Status = decision
	r.AdminNotes = notes
	r.ReviewedBy = reviewer
	r.ReviewedAt = &now
	return nil
}

func checkTextLength(s string) error {
	if n := utf8.RuneCountInString(s); n > MaxTextLength {
		return fmt.Errorf("%w: %d characters, limit %d", ErrReasonTooLong, n, MaxTextLength)
	}
	return nil
}
