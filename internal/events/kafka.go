// Package events publishes checkout lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TypeCheckoutStaged    = "checkout.staged"
	TypeCheckoutCompleted = "checkout.completed"
	TypeCheckoutDegraded  = "checkout.degraded"

	DefaultTopic = "checkout.events"

	writeTimeout = 10 * time.Second
)

var ErrNoBrokers = errors.New("kafka brokers are not configured")

// Event is the JSON value of every published message. Messages are keyed by
// order id so one checkout's events stay on a single partition.
type Event struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"orderId"`
	PageURL    string    `json:"pageUrl,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type KafkaEventBus struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
	now    func() time.Time
}

func NewKafkaEventBus(cfg KafkaConfig, logger *slog.Logger) (*KafkaEventBus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: writeTimeout,
	}

	return newKafkaEventBus(writer, cfg.Topic, logger), nil
}

func newKafkaEventBus(writer messageWriter, topic string, logger *slog.Logger) *KafkaEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaEventBus{
		writer: writer,
		topic:  topic,
		logger: logger.With("topic", topic),
		now:    time.Now,
	}
}

func (b *KafkaEventBus) PublishCheckoutStaged(ctx context.Context, orderID string) error {
	return b.publish(ctx, Event{Type: TypeCheckoutStaged, OrderID: orderID})
}

func (b *KafkaEventBus) PublishCheckoutCompleted(ctx context.Context, orderID, pageURL string) error {
	return b.publish(ctx, Event{Type: TypeCheckoutCompleted, OrderID: orderID, PageURL: pageURL})
}

func (b *KafkaEventBus) PublishCheckoutDegraded(ctx context.Context, orderID, reason string) error {
	return b.publish(ctx, Event{Type: TypeCheckoutDegraded, OrderID: orderID, Reason: reason})
}

func (b *KafkaEventBus) publish(ctx context.Context, event Event) error {
	event.OccurredAt = b.now().UTC()

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		b.logger.ErrorContext(ctx, "publish checkout event", "event_type", event.Type, "order_id", event.OrderID, "error", err)
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}

	b.logger.DebugContext(ctx, "checkout event published", "event_type", event.Type, "order_id", event.OrderID)
	return nil
}

func (b *KafkaEventBus) Close() error {
	if err := b.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
