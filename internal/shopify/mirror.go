package shopify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
)

// Mirror creates the order in Shopify and closes it as paid. It is meant to
// run after the shopper already has a payment page, so callers only log
// what it returns.
type Mirror struct {
	client *Client
	logger *slog.Logger
}

func NewMirror(client *Client, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{client: client, logger: logger}
}

func (m *Mirror) Mirror(ctx context.Context, order domain.Order) error {
	created, err := m.client.CreateOrder(ctx, order)
	if err != nil {
		m.logger.ErrorContext(ctx, "shopify mirror: create failed", "shop", order.Shop.Domain, "error", err)
		return fmt.Errorf("create mirror order: %w", err)
	}
	if created.ID == 0 {
		return nil
	}

	if _, err := m.client.CloseOrder(ctx, order.Shop.Domain, created.ID, true); err != nil {
		m.logger.ErrorContext(ctx, "shopify mirror: close failed", "shop", order.Shop.Domain, "shopify_order_id", created.ID, "error", err)
		return fmt.Errorf("close mirror order %d: %w", created.ID, err)
	}
	return nil
}
