package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

var ErrCartNotFound = errors.New("cart not found")

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OutboxEvent is written in the same transaction as the state change it
// describes and published later by the outbox poller.
type OutboxEvent struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

func NewOutboxEvent(aggregateID, eventType string, payload any) (*OutboxEvent, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &OutboxEvent{
		ID:          uuid.New(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     b,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order, event *OutboxEvent) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
	ListOrdersByPhone(ctx context.Context, phone string) ([]*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	// UpdateOrder persists order only if its stored version still equals
	// order.Version, then bumps the version. A stale write returns
	// domain.ErrVersionConflict.
	UpdateOrder(ctx context.Context, order *domain.Order, event *OutboxEvent) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	UserReports(ctx context.Context) ([]domain.UserReport, error)
}

type ReturnRepository interface {
	// CreateReturn fails with domain.ErrDuplicateReturn when the order
	// already has a request; the check and insert are one atomic step.
	CreateReturn(ctx context.Context, req *domain.ReturnRequest, event *OutboxEvent) error
	GetReturnByID(ctx context.Context, id uuid.UUID) (*domain.ReturnRequest, error)
	GetReturnByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.ReturnRequest, error)
	ListReturnsByUserID(ctx context.Context, userID string) ([]*domain.ReturnRequest, error)
	// ListReturns filters by status when status is non-nil.
	ListReturns(ctx context.Context, status *domain.ReturnStatus) ([]*domain.ReturnRequest, error)
	// ResolveReturn stores the decision only while the stored request is
	// still PENDING, otherwise domain.ErrAlreadyResolved.
	ResolveReturn(ctx context.Context, req *domain.ReturnRequest, event *OutboxEvent) error
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id uuid.UUID) error
}

type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	SaveCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, userID string) error
}
