package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}
	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{Topic: Topic, NumPartitions: 1, ReplicationFactor: 1})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()
	createTopic(t, brokerAddr)

	repo := repository.NewMemoryRepository()
	order := seedOrder(t, repo)

	writer := NewKafkaWriter(brokerAddr)
	writer.WriteTimeout = 10 * time.Second
	p := NewOutboxPoller(repo, writer, logger.Nop())
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go p.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    Topic,
		GroupID:  "publisher-test",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, order.ID.String(), string(msg.Key))

	var payload domain.OrderPlacedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, order.ID, payload.OrderID)

	require.Eventually(t, func() bool {
		remaining, err := repo.GetUnprocessedEvents(ctx, 10)
		return err == nil && len(remaining) == 0
	}, 10*time.Second, 200*time.Millisecond)
}
