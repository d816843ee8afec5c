package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryRepository implements every repository interface in process. The
// outbox append shares the critical section with the state change it records.
type MemoryRepository struct {
	mu             sync.RWMutex
	orders         map[uuid.UUID]*domain.Order
	returns        map[uuid.UUID]*domain.ReturnRequest
	returnsByOrder map[uuid.UUID]uuid.UUID
	carts          map[string]*domain.Cart
	outbox         []*OutboxEvent
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:         make(map[uuid.UUID]*domain.Order),
		returns:        make(map[uuid.UUID]*domain.ReturnRequest),
		returnsByOrder: make(map[uuid.UUID]uuid.UUID),
		carts:          make(map[string]*domain.Cart),
	}
}

func (m *MemoryRepository) appendEvent(event *OutboxEvent) {
	if event != nil {
		e := *event
		m.outbox = append(m.outbox, &e)
	}
}

func (m *MemoryRepository) CreateOrder(_ context.Context, order *domain.Order, event *OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	m.orders[order.ID] = order.Clone()
	m.appendEvent(event)
	return nil
}

func (m *MemoryRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, domain.NotFoundError("order", id.String())
	}
	return order.Clone(), nil
}

func (m *MemoryRepository) ListOrdersByUserID(_ context.Context, userID string) ([]*domain.Order, error) {
	return m.filterOrders(func(o *domain.Order) bool { return o.UserID == userID }), nil
}

func (m *MemoryRepository) ListOrdersByPhone(_ context.Context, phone string) ([]*domain.Order, error) {
	return m.filterOrders(func(o *domain.Order) bool { return o.Customer.Phone == phone }), nil
}

func (m *MemoryRepository) ListOrders(context.Context) ([]*domain.Order, error) {
	return m.filterOrders(func(*domain.Order) bool { return true }), nil
}

// filterOrders returns clones, newest first.
func (m *MemoryRepository) filterOrders(keep func(*domain.Order) bool) []*domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Order, 0)
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryRepository) UpdateOrder(_ context.Context, order *domain.Order, event *OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.orders[order.ID]
	if !ok {
		return domain.NotFoundError("order", order.ID.String())
	}
	if stored.Version != order.Version {
		return fmt.Errorf("%w: order %s", domain.ErrVersionConflict, order.ID)
	}

	order.Version++
	m.orders[order.ID] = order.Clone()
	m.appendEvent(event)
	return nil
}

func (m *MemoryRepository) DeleteOrder(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[id]; !ok {
		return domain.NotFoundError("order", id.String())
	}
	delete(m.orders, id)
	if returnID, ok := m.returnsByOrder[id]; ok {
		delete(m.returns, returnID)
		delete(m.returnsByOrder, id)
	}
	return nil
}

func (m *MemoryRepository) UserReports(context.Context) ([]domain.UserReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byUser := make(map[string]*domain.UserReport)
	for _, o := range m.orders {
		if o.UserID == "" {
			continue
		}
		rep, ok := byUser[o.UserID]
		if !ok {
			rep = &domain.UserReport{UserID: o.UserID, TotalAmount: decimal.Zero}
			byUser[o.UserID] = rep
		}
		rep.OrderCount++
		rep.TotalAmount = rep.TotalAmount.Add(o.TotalAmount)
		if o.CreatedAt.After(rep.LastOrderAt) {
			rep.LastOrderAt = o.CreatedAt
		}
	}

	reports := make([]domain.UserReport, 0, len(byUser))
	for _, rep := range byUser {
		reports = append(reports, *rep)
	}
	sort.Slice(reports, func(i, j int) bool {
		if c := reports[i].TotalAmount.Cmp(reports[j].TotalAmount); c != 0 {
			return c > 0
		}
		return reports[i].UserID < reports[j].UserID
	})
	return reports, nil
}

func cloneReturn(r *domain.ReturnRequest) *domain.ReturnRequest {
	c := *r
	c.Items = append([]domain.OrderItem(nil), r.Items...)
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		c.ReviewedAt = &t
	}
	return &c
}

func (m *MemoryRepository) CreateReturn(_ context.Context, req *domain.ReturnRequest, event *OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.returnsByOrder[req.OrderID]; exists {
		return fmt.Errorf("%w: order %s", domain.ErrDuplicateReturn, req.OrderID)
	}
	m.returns[req.ID] = cloneReturn(req)
	m.returnsByOrder[req.OrderID] = req.ID
	m.appendEvent(event)
	return nil
}

func (m *MemoryRepository) GetReturnByID(_ context.Context, id uuid.UUID) (*domain.ReturnRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.returns[id]
	if !ok {
		return nil, domain.NotFoundError("return request", id.String())
	}
	return cloneReturn(req), nil
}

func (m *MemoryRepository) GetReturnByOrderID(_ context.Context, orderID uuid.UUID) (*domain.ReturnRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.returnsByOrder[orderID]
	if !ok {
		return nil, domain.NotFoundError("return request for order", orderID.String())
	}
	return cloneReturn(m.returns[id]), nil
}

func (m *MemoryRepository) ListReturnsByUserID(_ context.Context, userID string) ([]*domain.ReturnRequest, error) {
	return m.filterReturns(func(r *domain.ReturnRequest) bool { return r.UserID == userID }), nil
}

func (m *MemoryRepository) ListReturns(_ context.Context, status *domain.ReturnStatus) ([]*domain.ReturnRequest, error) {
	return m.filterReturns(func(r *domain.ReturnRequest) bool { return status == nil || r.Status == *status }), nil
}

func (m *MemoryRepository) filterReturns(keep func(*domain.ReturnRequest) bool) []*domain.ReturnRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.ReturnRequest, 0)
	for _, r := range m.returns {
		if keep(r) {
			out = append(out, cloneReturn(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryRepository) ResolveReturn(_ context.Context, req *domain.ReturnRequest, event *OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.returns[req.ID]
	if !ok {
		return domain.NotFoundError("return request", req.ID.String())
	}
	if stored.Resolved() {
		return fmt.Errorf("%w: return %s", domain.ErrAlreadyResolved, req.ID)
	}
	m.returns[req.ID] = cloneReturn(req)
	m.appendEvent(event)
	return nil
}

func (m *MemoryRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []*OutboxEvent
	for _, e := range m.outbox {
		c := *e
		events = append(events, &c)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

// MarkEventAsProcessed drops the event; the outbox only holds pending work.
func (m *MemoryRepository) MarkEventAsProcessed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.outbox {
		if e.ID == id {
			m.outbox = slices.Delete(m.outbox, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("outbox event %s not found", id)
}

func cloneCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.Items = append([]domain.CartEntry(nil), c.Items...)
	return &out
}

func (m *MemoryRepository) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cart, ok := m.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cloneCart(cart), nil
}

func (m *MemoryRepository) SaveCart(_ context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.carts[cart.UserID]; ok {
		cart.CreatedAt = existing.CreatedAt
	} else if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	m.carts[cart.UserID] = cloneCart(cart)
	return nil
}

func (m *MemoryRepository) DeleteCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.carts[userID]; !ok {
		return ErrCartNotFound
	}
	delete(m.carts, userID)
	return nil
}
