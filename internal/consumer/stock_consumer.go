package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/store"
	"github.com/segmentio/kafka-go"
)

const GroupID = "storefront-stock"

var ErrMalformedEvent = errors.New("malformed event")

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StockConsumer takes stock out of the ledger when an order is placed.
// The ledger ignores repeat decrements for one order, so redelivery is safe.
type StockConsumer struct {
	ledger     store.StockLedger
	reader     MessageReader
	log        *slog.Logger
	retryDelay time.Duration
}

func NewKafkaReader(brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    publisher.Topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
}

// NewStockConsumer builds a consumer. reader may be nil when messages are
// delivered in process through Deliver.
func NewStockConsumer(ledger store.StockLedger, reader MessageReader, log *slog.Logger) *StockConsumer {
	return &StockConsumer{
		ledger:     ledger,
		reader:     reader,
		log:        log.With("component", "stock_consumer"),
		retryDelay: time.Second,
	}
}

func (c *StockConsumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *StockConsumer) Close() {
	if c.reader == nil {
		return
	}
	if err := c.reader.Close(); err != nil {
		c.log.Error("error closing kafka reader", "error", err)
	}
}

// processMessage handles one message and commits it only once the ledger
// accepted it or it turned out to be unreadable.
func (c *StockConsumer) processMessage(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.log.ErrorContext(ctx, "error reading message", "error", err)
		}
		return
	}

	for {
		err := c.Deliver(ctx, m)
		if err == nil {
			break
		}
		c.log.ErrorContext(ctx, "stock update failed, retrying", "offset", m.Offset, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryDelay):
		}
	}

	if err := c.reader.CommitMessages(ctx, m); err != nil {
		c.log.ErrorContext(ctx, "error committing message", "offset", m.Offset, "error", err)
	}
}

// Deliver runs Handle and drops malformed messages after logging them.
// Any error it returns is worth retrying.
func (c *StockConsumer) Deliver(ctx context.Context, m kafka.Message) error {
	err := c.Handle(ctx, m)
	if errors.Is(err, ErrMalformedEvent) {
		c.log.ErrorContext(ctx, "dropping malformed event", "key", string(m.Key), "error", err)
		return nil
	}
	return err
}

// Handle applies a single event. Only OrderPlaced touches stock.
func (c *StockConsumer) Handle(ctx context.Context, m kafka.Message) error {
	if eventType(m) != domain.EventOrderPlaced {
		return nil
	}

	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if len(event.Items) == 0 {
		return fmt.Errorf("%w: order %s has no items", ErrMalformedEvent, event.OrderID)
	}

	applied, err := c.ledger.Decrement(ctx, event.OrderID.String(), event.Items)
	if err != nil {
		return fmt.Errorf("decrement stock for order %s: %w", event.OrderID, err)
	}
	if !applied {
		c.log.InfoContext(ctx, "stock already decremented, skipping", "order_id", event.OrderID)
		return nil
	}
	c.log.InfoContext(ctx, "stock decremented", "order_id", event.OrderID, "items", len(event.Items))
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == publisher.EventTypeHeader {
			return string(h.Value)
		}
	}
	return ""
}
