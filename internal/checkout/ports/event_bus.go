package ports

import "context"

// EventBus defines the contract for publishing checkout lifecycle events.
type EventBus interface {
	PublishCheckoutStaged(ctx context.Context, orderID string) error
	PublishCheckoutCompleted(ctx context.Context, orderID string, pageURL string) error
	PublishCheckoutDegraded(ctx context.Context, orderID string, reason string) error
}
