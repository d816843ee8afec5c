package store

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

// MemoryStore implements StockLedger with in-memory storage
type MemoryStore struct {
	mu        sync.RWMutex
	products  map[string]*domain.Product
	movements map[string]*movement // orderID -> last applied movement
}

// movement remembers how much each product actually gave up, so a restock
// after a clamped decrement puts back only what was taken.
type movement struct {
	kind  movementKind
	taken map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:  make(map[string]*domain.Product),
		movements: make(map[string]*movement),
	}
}

func (s *MemoryStore) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, domain.NotFoundError("product", id)
	}
	out := cloneProduct(*p)
	return &out, nil
}

func (s *MemoryStore) GetProducts(_ context.Context, ids []string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result = append(result, cloneProduct(*p))
		}
	}
	return result, nil
}

func (s *MemoryStore) Decrement(_ context.Context, orderID string, items []domain.OrderItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.movements[orderID]; seen {
		return false, nil
	}

	taken := make(map[string]int, len(items))
	for _, item := range items {
		p, ok := s.products[item.ProductID]
		if !ok || p.Stock == nil {
			continue
		}
		n := min(item.Qty, *p.Stock)
		p.Stock = domain.TrackedStock(*p.Stock - n)
		taken[item.ProductID] += n
	}
	s.movements[orderID] = &movement{kind: movementDecrement, taken: taken}
	return true, nil
}

// Restock returns what the order's decrement took. An order that was never
// decremented gets a restock marker so a late Decrement is skipped.
func (s *MemoryStore) Restock(_ context.Context, orderID string, _ []domain.OrderItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, seen := s.movements[orderID]
	if !seen {
		s.movements[orderID] = &movement{kind: movementRestock}
		return false, nil
	}
	if m.kind != movementDecrement {
		return false, nil
	}

	for id, n := range m.taken {
		if p, ok := s.products[id]; ok && p.Stock != nil {
			p.Stock = domain.TrackedStock(*p.Stock + n)
		}
	}
	m.kind = movementRestock
	return true, nil
}

func (s *MemoryStore) SetProduct(_ context.Context, p domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	stored := cloneProduct(p)
	s.products[p.ID] = &stored
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneProduct(p domain.Product) domain.Product {
	if p.Stock != nil {
		p.Stock = domain.TrackedStock(*p.Stock)
	}
	return p
}
