package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// PaymentStatus is the payment axis of an order. No transition table guards
// it: any status may replace any other at any time.
type PaymentStatus uint8

const (
	PaymentStatusPending PaymentStatus = iota
	PaymentStatusPaid
	PaymentStatusFailed

	paymentStatusCount
)

var paymentStatusNames = [paymentStatusCount]string{
	PaymentStatusPending: "PENDING",
	PaymentStatusPaid:    "PAID",
	PaymentStatusFailed:  "FAILED",
}

func (s PaymentStatus) Valid() bool {
	return s < paymentStatusCount
}

func (s PaymentStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("PaymentStatus(%d)", uint8(s))
	}
	return paymentStatusNames[s]
}

func ParsePaymentStatus(v string) (PaymentStatus, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" {
		return PaymentStatusPending, nil
	}
	for i, name := range paymentStatusNames {
		if name == v {
			return PaymentStatus(i), nil
		}
	}
	return 0, fmt.Errorf("%w: payment status %q", ErrInvalidStatusName, v)
}

func (s PaymentStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid payment status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *PaymentStatus) UnmarshalText(b []byte) error {
	parsed, err := ParsePaymentStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s PaymentStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid payment status %d", uint8(s))
	}
	return s.String(), nil
}

func (s *PaymentStatus) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = PaymentStatusPending
		return nil
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into PaymentStatus", src)
	}
}

// PaymentMethod is how the shopper pays. UPI is an online method and is kept
// distinct only for display.
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "COD"
	PaymentMethodOnline PaymentMethod = "ONLINE"
	PaymentMethodUPI    PaymentMethod = "UPI"
)

// ParsePaymentMethod defaults to cash on delivery.
func ParsePaymentMethod(v string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(v))); m {
	case "":
		return PaymentMethodCOD, nil
	case PaymentMethodCOD, PaymentMethodOnline, PaymentMethodUPI:
		return m, nil
	default:
		return "", fmt.Errorf("%w: payment method %q", ErrInvalidStatusName, v)
	}
}
