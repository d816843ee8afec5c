package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/repository"
	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	HTTPPort string
	LogLevel string

	// Storage selects the order, return and outbox backend.
	Storage  string
	Postgres repository.Credentials

	// CatalogDBPath is the sqlite database backing the stock ledger. The
	// default ":memory:" database is migrated and seeded on every start.
	CatalogDBPath         string
	CatalogMigrationsPath string

	// Mongo.URI empty keeps carts next to orders.
	Mongo repository.MongoConfig

	RedisAddr     string
	RedisPassword string

	// KafkaBrokers empty means events are delivered in process.
	KafkaBrokers []string

	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	requestTimeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	shutdownTimeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	cartTTL, err := time.ParseDuration(getEnv("CART_TTL", repository.DefaultCartTTL.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid CART_TTL: %w", err)
	}

	cfg := &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Storage:  strings.ToLower(getEnv("STORAGE", StorageMemory)),
		Postgres: repository.Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              dbPort,
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "storefront"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		},
		CatalogDBPath:         getEnv("CATALOG_DB_PATH", ":memory:"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "./internal/store/migrations"),
		Mongo:                 repository.MongoConfig{
			URI:      getEnv("MONGO_URI", ""),
			Database: getEnv("MONGO_DB_NAME", "storefront"),
			CartTTL:  cartTTL,
		},
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "")),
		RequestTimeout:     requestTimeout,
		ShutdownTimeout:    shutdownTimeout,
		MaxRequestBodySize: 1 << 20, // 1MB
	}

	if cfg.Storage != StorageMemory && cfg.Storage != StoragePostgres {
		return nil, fmt.Errorf("invalid STORAGE %q: want %s or %s", cfg.Storage, StorageMemory, StoragePostgres)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
