package store

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
)

// GuardedLedger routes reads through a circuit breaker so a failing ledger
// fails fast instead of stalling every cart view. Writes pass straight through.
type GuardedLedger struct {
	StockLedger
	breaker *circuitbreaker.Breaker
}

func NewGuardedLedger(inner StockLedger, breaker *circuitbreaker.Breaker) *GuardedLedger {
	return &GuardedLedger{StockLedger: inner, breaker: breaker}
}

// BreakerConfig counts not-found lookups as successes.
func BreakerConfig() circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig("stock-ledger")
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, domain.ErrNotFound)
	}
	return cfg
}

func (g *GuardedLedger) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return circuitbreaker.Execute(g.breaker, func() (*domain.Product, error) {
		return g.StockLedger.GetProduct(ctx, id)
	})
}

func (g *GuardedLedger) GetProducts(ctx context.Context, ids []string) ([]domain.Product, error) {
	return circuitbreaker.Execute(g.breaker, func() ([]domain.Product, error) {
		return g.StockLedger.GetProducts(ctx, ids)
	})
}
