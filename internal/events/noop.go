package events

import (
	"context"
	"log/slog"
)

// NoopEventBus logs events without sending them anywhere. Used when no
// Kafka brokers are configured.
type NoopEventBus struct {
	logger *slog.Logger
}

func NewNoopEventBus(logger *slog.Logger) *NoopEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopEventBus{logger: logger}
}

func (n *NoopEventBus) PublishCheckoutStaged(ctx context.Context, orderID string) error {
	n.logger.DebugContext(ctx, "event::"+TypeCheckoutStaged, "order_id", orderID)
	return nil
}

func (n *NoopEventBus) PublishCheckoutCompleted(ctx context.Context, orderID, pageURL string) error {
	n.logger.DebugContext(ctx, "event::"+TypeCheckoutCompleted, "order_id", orderID, "page_url", pageURL)
	return nil
}

func (n *NoopEventBus) PublishCheckoutDegraded(ctx context.Context, orderID, reason string) error {
	n.logger.DebugContext(ctx, "event::"+TypeCheckoutDegraded, "order_id", orderID, "reason", reason)
	return nil
}

func (n *NoopEventBus) Close() error {
	return nil
}
