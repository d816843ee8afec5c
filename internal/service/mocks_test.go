package service

import (
	"context"
	"sync"
	"testing"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/store"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type mockCache struct {
	m     sync.RWMutex
	carts map[string]*domain.Cart
	err   error
	gets  int
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart)}
}

func (m *mockCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.gets++
	if m.err != nil {
		return nil, m.err
	}
	cart, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	c := *cart
	return &c, nil
}

func (m *mockCache) Set(_ context.Context, userID string, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	c := *cart
	m.carts[userID] = &c
	return nil
}

func (m *mockCache) Delete(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.carts, userID)
	return m.err
}

func (m *mockCache) cached(userID string) bool {
	m.m.RLock()
	defer m.m.RUnlock()
	_, ok := m.carts[userID]
	return ok
}

// failingOrders fails every write; reads fall through to the embedded repository.
type failingOrders struct {
	*repository.MemoryRepository
	err error
}

func (f *failingOrders) CreateOrder(context.Context, *domain.Order, *repository.OutboxEvent) error {
	return f.err
}

type fixture struct {
	repo    *repository.MemoryRepository
	ledger  *store.MemoryStore
	cache   *mockCache
	metrics *metrics.Metrics
	carts   *CartService
	orders  *OrderService
	returns *ReturnService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    repository.NewMemoryRepository(),
		ledger:  store.NewMemoryStore(),
		cache:   newMockCache(),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	log := logger.Nop()
	f.carts = NewCartService(f.repo, f.cache, f.ledger, f.metrics, log)
	f.orders = NewOrderService(f.repo, f.carts, f.ledger, f.metrics, log)
	f.returns = NewReturnService(f.repo, f.repo, f.metrics, log)
	return f
}

func (f *fixture) setProduct(t *testing.T, id string, stock *int, price string) {
	t.Helper()
	require.NoError(t, f.ledger.SetProduct(context.Background(), domain.Product{
		ID:    id,
		Name:  "Product " + id,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}))
}

func validCustomer() domain.Customer {
	return domain.Customer{Name: "Asha Rao", Phone: "9876543210", Address: "12 MG Road", Pincode: "560001"}
}
