package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STORAGE", "DB_PORT", "KAFKA_BROKERS", "REQUEST_TIMEOUT", "CATALOG_DB_PATH", "CART_TTL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, ":memory:", cfg.CatalogDBPath)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 90*24*time.Hour, cfg.Mongo.CartTTL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORAGE", "Postgres")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("CART_TTL", "720h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, 6543, cfg.Postgres.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Mongo.URI)
	assert.Equal(t, 30*24*time.Hour, cfg.Mongo.CartTTL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"DB_PORT":         "five",
		"REQUEST_TIMEOUT": "soon",
		"STORAGE":         "cassandra",
		"CART_TTL":        "forever",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.ErrorContains(t, err, key)
		})
	}
}
