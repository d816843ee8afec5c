package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/storefront/internal/repository"
	"github.com/segmentio/kafka-go"
)

// Topic carries every order and return event, keyed by order id.
const Topic = "order-events"

// EventTypeHeader names the message header holding the outbox event type.
const EventTypeHeader = "event_type"

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a writer for the order events topic.
func NewKafkaWriter(brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

// OutboxPoller relays committed outbox rows to the message writer and marks
// them processed. Delivery is at least once.
type OutboxPoller struct {
	tick   time.Duration
	batch  int
	repo   repository.OutboxRepository
	writer MessageWriter
	log    *slog.Logger
}

func NewOutboxPoller(repo repository.OutboxRepository, writer MessageWriter, log *slog.Logger) *OutboxPoller {
	return &OutboxPoller{
		tick:   time.Second,
		batch:  100,
		repo:   repo,
		writer: writer,
		log:    log.With("component", "outbox_poller"),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents publishes one batch and returns how many events
// were marked processed. Once an event fails, later events of the same order
// wait for the next tick so consumers see them in order.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batch)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to fetch outbox events", "error", err)
		return 0
	}

	blocked := make(map[string]bool)
	published := 0
	for _, event := range events {
		if blocked[event.AggregateID] {
			continue
		}

		if err := p.writer.WriteMessages(ctx, toMessage(event)); err != nil {
			blocked[event.AggregateID] = true
			p.log.ErrorContext(ctx, "failed to publish event", "event_id", event.ID, "event_type", event.EventType, "error", err)
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			blocked[event.AggregateID] = true
			p.log.ErrorContext(ctx, "failed to mark event as processed", "event_id", event.ID, "error", err)
			continue
		}
		published++
	}

	if published > 0 {
		p.log.DebugContext(ctx, "outbox events published", "count", published)
	}
	return published
}

func toMessage(event *repository.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: EventTypeHeader, Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
}
