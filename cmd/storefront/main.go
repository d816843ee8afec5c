package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/consumer"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/internal/store"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type orderStore interface {
	repository.OrderRepository
	repository.ReturnRepository
	repository.OutboxRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("storefront stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("storefront stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ledger, err := openLedger(cfg, log)
	if err != nil {
		return err
	}
	defer ledger.Close()

	orders, closeOrders, err := openOrderStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeOrders()

	carts, closeCarts, err := openCartRepository(ctx, cfg, orders, log)
	if err != nil {
		return err
	}
	defer closeCarts()

	cartCache, err := openCache(ctx, cfg, log)
	if err != nil {
		return err
	}

	cartService := service.NewCartService(carts, cartCache, ledger, m, log)
	orderService := service.NewOrderService(orders, cartService, ledger, m, log)
	returnService := service.NewReturnService(orders, orders, m, log)

	var (
		writer publisher.MessageWriter
		stock  *consumer.StockConsumer
	)
	if len(cfg.KafkaBrokers) > 0 {
		writer = publisher.NewKafkaWriter(cfg.KafkaBrokers...)
		stock = consumer.NewStockConsumer(ledger, consumer.NewKafkaReader(cfg.KafkaBrokers...), log)
		log.Info("publishing order events to kafka", "brokers", cfg.KafkaBrokers, "topic", publisher.Topic)
	} else {
		stock = consumer.NewStockConsumer(ledger, nil, log)
		writer = publisher.NewLocalWriter(stock.Deliver)
		log.Info("no kafka brokers configured, delivering order events in process")
	}
	poller := publisher.NewOutboxPoller(orders, writer, log)
	defer poller.Close()
	defer stock.Close()

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}, h.Services{
		Carts:        cartService,
		Orders:       orderService,
		Returns:      returnService,
		AdminOrders:  orderService,
		AdminReturns: returnService,
	}, m, reg, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("storefront listening", "addr", srv.Addr, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		poller.Run(gctx)
		return nil
	})

	if len(cfg.KafkaBrokers) > 0 {
		g.Go(func() error {
			stock.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openLedger(cfg *config.Config, log *slog.Logger) (store.StockLedger, error) {
	sqliteStore, err := store.NewSQLiteStore(cfg.CatalogDBPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := sqliteStore.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		sqliteStore.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	log.Info("catalog ready", "path", cfg.CatalogDBPath)

	breaker := circuitbreaker.New(store.BreakerConfig(), log)
	return store.NewGuardedLedger(sqliteStore, breaker), nil
}

func openOrderStore(cfg *config.Config, log *slog.Logger) (orderStore, func(), error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn("using in-memory order storage, data is lost on restart")
		return repository.NewMemoryRepository(), func() {}, nil
	}

	repo, err := repository.NewPostgresRepository(&cfg.Postgres, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := repo.RunMigrations(&cfg.Postgres); err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	log.Info("database migrations completed")

	return repo, func() {
		if err := repo.Close(); err != nil {
			log.Error("failed to close postgres", "error", err)
		}
	}, nil
}

// openCartRepository uses mongo when configured and otherwise falls back to
// the order store when it can hold carts, or a fresh memory repository.
func openCartRepository(ctx context.Context, cfg *config.Config, orders orderStore, log *slog.Logger) (repository.CartRepository, func(), error) {
	if cfg.Mongo.URI == "" {
		if carts, ok := orders.(repository.CartRepository); ok {
			return carts, func() {}, nil
		}
		log.Warn("no MONGO_URI configured, keeping carts in memory")
		return repository.NewMemoryRepository(), func() {}, nil
	}

	carts, err := repository.ConnectMongoDB(ctx, cfg.Mongo)
	if err != nil {
		return nil, nil, err
	}
	log.Info("connected to mongodb", "db", cfg.Mongo.Database, "cart_ttl", cfg.Mongo.CartTTL)

	return carts, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := carts.Close(shutdownCtx); err != nil {
			log.Error("failed to close mongodb", "error", err)
		}
	}, nil
}

func openCache(ctx context.Context, cfg *config.Config, log *slog.Logger) (cache.CartCache, error) {
	if cfg.RedisAddr == "" {
		log.Info("no REDIS_ADDR configured, cart cache disabled")
		return cache.NoopCache{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info("connected to redis", "addr", cfg.RedisAddr)
	return cache.NewRedisCache(client), nil
}
