package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/store"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/fjod/storefront/internal/service")

// CartLine is a cart entry annotated with live stock for display.
type CartLine struct {
	domain.CartEntry
	Subtotal decimal.Decimal `json:"subtotal"`
	Stock    *int            `json:"stock"`
	LowStock bool            `json:"low_stock"`
}

// CartView is a reconciled cart. Notice is set only on the read that
// corrected the stored cart.
type CartView struct {
	UserID    string                  `json:"user_id"`
	Items     []CartLine              `json:"items"`
	Total     decimal.Decimal         `json:"total"`
	UpdatedAt time.Time               `json:"updated_at"`
	Notice    *domain.ReconcileReport `json:"notice,omitempty"`
}

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	ledger  store.StockLedger
	metrics *metrics.Metrics
	log     *slog.Logger
	sfg     singleflight.Group // collapses concurrent reads of the same cart
	locks   *keyedMutex
	now     func() time.Time
}

func NewCartService(repo repository.CartRepository, c cache.CartCache, ledger store.StockLedger, m *metrics.Metrics, log *slog.Logger) *CartService {
	return &CartService{
		repo:    repo,
		cache:   c,
		ledger:  ledger,
		metrics: m,
		log:     log.With("component", "cart_service"),
		locks:   newKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetCart returns the cart reconciled against live stock. When the stored
// cart was out of date it is corrected and persisted before returning.
func (s *CartService) GetCart(ctx context.Context, userID string) (*CartView, error) {
	ctx, span := tracer.Start(ctx, "CartService.GetCart")
	defer span.End()

	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		unlock := s.locks.Lock(userID)
		defer unlock()

		cart, report, products, err := s.reconcileLocked(ctx, userID)
		if err != nil {
			return nil, err
		}
		view := buildView(cart, products)
		if report.Changed {
			view.Notice = &report
		}
		return view, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	view := v.(*CartView)
	span.SetAttributes(attribute.Bool("cart.changed", view.Notice != nil))
	return view, nil
}

func (s *CartService) AddItem(ctx context.Context, userID, productID string, qty int) (*domain.Cart, error) {
	return s.mutate(ctx, userID, productID, func(cart domain.Cart, p domain.Product) (domain.Cart, error) {
		return domain.AddToCart(cart, p, qty, s.now())
	})
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID string, qty int) (*domain.Cart, error) {
	return s.mutate(ctx, userID, productID, func(cart domain.Cart, p domain.Product) (domain.Cart, error) {
		return domain.SetQuantity(cart, p, qty)
	})
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	cart, err := s.loadStored(ctx, userID)
	if err != nil {
		return nil, err
	}
	next, ok := domain.RemoveFromCart(*cart, productID)
	if !ok {
		return nil, domain.NotFoundError("cart item", productID)
	}
	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()
	return s.clearLocked(ctx, userID)
}

// Checkout reconciles the stored cart immediately before place runs. A cart
// that had to be corrected aborts with *domain.CartAdjustedError so the
// shopper can review it; otherwise place receives the order snapshot and the
// cart is cleared once it succeeds.
func (s *CartService) Checkout(ctx context.Context, userID string, place func(items []domain.OrderItem, total decimal.Decimal) error) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	cart, report, _, err := s.reconcileLocked(ctx, userID)
	if err != nil {
		return err
	}
	if report.Changed {
		return &domain.CartAdjustedError{Report: report}
	}

	items, total, err := domain.Checkout(*cart)
	if err != nil {
		return err
	}
	if err := place(items, total); err != nil {
		return err
	}

	if err := s.clearLocked(ctx, userID); err != nil {
		s.log.ErrorContext(ctx, "clear cart after checkout failed", "user_id", userID, "error", err)
	}
	return nil
}

func (s *CartService) mutate(ctx context.Context, userID, productID string, apply func(domain.Cart, domain.Product) (domain.Cart, error)) (*domain.Cart, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	product, err := s.ledger.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	cart, err := s.loadStored(ctx, userID)
	if err != nil {
		return nil, err
	}

	next, err := apply(*cart, *product)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// reconcileLocked must be called with the user's lock held.
func (s *CartService) reconcileLocked(ctx context.Context, userID string) (*domain.Cart, domain.ReconcileReport, map[string]domain.Product, error) {
	cart, err := s.loadStored(ctx, userID)
	if err != nil {
		return nil, domain.ReconcileReport{}, nil, err
	}

	products, err := s.ledger.GetProducts(ctx, cart.ProductIDs())
	if err != nil {
		return nil, domain.ReconcileReport{}, nil, fmt.Errorf("load live products: %w", err)
	}
	live := domain.IndexProducts(products)

	entries, report := domain.Reconcile(cart.Items, live)
	s.metrics.ObserveReconciliation(report.Changed)
	if !report.Changed {
		return cart, report, live, nil
	}

	next := *cart
	next.Items = entries
	if err := s.save(ctx, &next); err != nil {
		return nil, domain.ReconcileReport{}, nil, err
	}
	s.log.InfoContext(ctx, "cart reconciled against live stock", "user_id", userID, "adjustments", len(report.Adjustments))
	return &next, report, live, nil
}

// loadStored reads the persisted cart through the cache. A missing cart is
// an empty one.
func (s *CartService) loadStored(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.cache.Get(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.WarnContext(ctx, "cache get error", "user_id", userID, "error", err) // log cache error but continue
	}

	cart, err = s.repo.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		now := s.now()
		return &domain.Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	if errSet := s.cache.Set(ctx, userID, cart); errSet != nil {
		s.log.WarnContext(ctx, "cache set error", "user_id", userID, "error", errSet)
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart) error {
	if err := s.repo.SaveCart(ctx, cart); err != nil {
		s.log.ErrorContext(ctx, "repo save cart error", "user_id", cart.UserID, "error", err)
		return fmt.Errorf("save cart: %w", err)
	}
	s.invalidateCache(cart.UserID)
	return nil
}

func (s *CartService) clearLocked(ctx context.Context, userID string) error {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.log.ErrorContext(ctx, "repo delete cart error", "user_id", userID, "error", err)
		return fmt.Errorf("delete cart: %w", err)
	}
	s.invalidateCache(userID)
	return nil
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cache invalidate error", "user_id", userID, "error", err)
	}
}

func buildView(cart *domain.Cart, live map[string]domain.Product) *CartView {
	view := &CartView{
		UserID:    cart.UserID,
		Items:     make([]CartLine, 0, len(cart.Items)),
		Total:     decimal.Zero,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, entry := range cart.Items {
		line := CartLine{
			CartEntry: entry,
			Subtotal:  entry.Price.Mul(decimal.NewFromInt(int64(entry.Qty))),
		}
		if p, ok := live[entry.ProductID]; ok {
			line.Stock = p.Stock
			line.LowStock = p.IsLowStock()
		}
		view.Items = append(view.Items, line)
		view.Total = view.Total.Add(line.Subtotal)
	}
	return view
}
