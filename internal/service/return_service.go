package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ReturnService struct {
	returns repository.ReturnRepository
	orders  repository.OrderRepository
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

func NewReturnService(returns repository.ReturnRepository, orders repository.OrderRepository, m *metrics.Metrics, log *slog.Logger) *ReturnService {
	return &ReturnService{
		returns: returns,
		orders:  orders,
		metrics: m,
		log:     log.With("component", "return_service"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FileReturn opens a PENDING return for a delivered order owned by userID.
// Concurrent filings for one order race on the repository insert; exactly
// one wins and the rest get domain.ErrDuplicateReturn.
func (s *ReturnService) FileReturn(ctx context.Context, userID string, orderID uuid.UUID, reason string) (*domain.ReturnRequest, error) {
	ctx, span := tracer.Start(ctx, "ReturnService.FileReturn", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	req, err := s.fileReturn(ctx, userID, orderID, reason)
	s.metrics.ObserveReturnFiled(returnResult(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.log.InfoContext(ctx, "return filed", "return_id", req.ID, "order_id", orderID, "user_id", userID)
	return req, nil
}

func (s *ReturnService) fileReturn(ctx context.Context, userID string, orderID uuid.UUID, reason string) (*domain.ReturnRequest, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ownedBy(order, userID) {
		return nil, domain.NotFoundError("order", orderID.String())
	}

	req, err := domain.FileReturn(order, userID, reason, s.now())
	if err != nil {
		return nil, err
	}

	event, err := repository.NewOutboxEvent(orderID.String(), domain.EventReturnFiled, returnEvent(req))
	if err != nil {
		return nil, err
	}
	if err := s.returns.CreateReturn(ctx, req, event); err != nil {
		return nil, err
	}
	return req, nil
}

// Resolve approves or rejects a PENDING request. The order itself is not
// touched; moving it to RETURNED is a separate admin transition.
func (s *ReturnService) Resolve(ctx context.Context, returnID uuid.UUID, decision domain.ReturnStatus, notes, reviewer string) (*domain.ReturnRequest, error) {
	req, err := s.returns.GetReturnByID(ctx, returnID)
	if err != nil {
		return nil, err
	}

	if err := req.Resolve(decision, notes, reviewer, s.now()); err != nil {
		return nil, err
	}

	event, err := repository.NewOutboxEvent(req.OrderID.String(), domain.EventReturnResolved, returnEvent(req))
	if err != nil {
		return nil, err
	}
	if err := s.returns.ResolveReturn(ctx, req, event); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "return resolved", "return_id", returnID, "decision", decision, "reviewer", reviewer)
	return req, nil
}

func (s *ReturnService) GetReturnForOrder(ctx context.Context, orderID uuid.UUID) (*domain.ReturnRequest, error) {
	return s.returns.GetReturnByOrderID(ctx, orderID)
}

func (s *ReturnService) ListReturnsByUser(ctx context.Context, userID string) ([]*domain.ReturnRequest, error) {
	return s.returns.ListReturnsByUserID(ctx, userID)
}

func (s *ReturnService) ListReturns(ctx context.Context, status *domain.ReturnStatus) ([]*domain.ReturnRequest, error) {
	return s.returns.ListReturns(ctx, status)
}

func returnEvent(req *domain.ReturnRequest) domain.ReturnEvent {
	at := req.CreatedAt
	if req.ReviewedAt != nil {
		at = *req.ReviewedAt
	}
	return domain.ReturnEvent{
		ReturnID:     req.ID,
		OrderID:      req.OrderID,
		Status:       req.Status,
		RefundAmount: req.RefundAmount,
		At:           at,
	}
}

func returnResult(err error) string {
	switch {
	case err == nil:
		return "filed"
	case errors.Is(err, domain.ErrDuplicateReturn):
		return "duplicate"
	case errors.Is(err, domain.ErrNotDeliverable):
		return "not_deliverable"
	default:
		return "rejected"
	}
}
