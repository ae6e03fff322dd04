package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/metrics"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/telemetry"
)

type ObservableCommandHandler struct {
	handler CommandHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCommandHandler(handler CommandHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCommandHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObservableCommandHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCommandHandler) Handle(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "CheckoutCommand.Handle")
	defer span.End()

	kind := string(cmd.Kind)
	start := time.Now()
	outcome := metrics.OutcomeError
	defer func() {
		o.metrics.RecordCheckoutDuration(ctx, kind, time.Since(start).Seconds())
		o.metrics.RecordCheckout(ctx, kind, outcome)
	}()

	telemetry.AddSpanAttributes(span,
		attribute.String("checkout.kind", kind),
		attribute.String("shop.domain", cmd.Order.Shop.Domain),
		attribute.Bool("checkout.has_delivery_address", cmd.Order.HasDeliveryAddress()),
		attribute.Int("cart.items", len(cmd.Order.Cart.Items)),
	)

	o.logger.InfoContext(ctx, "checkout received",
		"kind", kind,
		"shop", cmd.Order.Shop.Domain,
		"has_delivery_address", cmd.Order.HasDeliveryAddress(),
		"payload", cmd.Order.Payload(),
	)

	result, err := o.handler.Handle(ctx, cmd)

	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrder) {
			outcome = metrics.OutcomeRejected
		}
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "checkout failed",
			"kind", kind,
			"error", err,
		)
		return CheckoutResult{}, err
	}

	switch {
	case result.Staged:
		outcome = metrics.OutcomeStaged
	case result.Fallback:
		outcome = metrics.OutcomeFallback
	default:
		outcome = metrics.OutcomeCompleted
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", result.OrderID),
		attribute.String("checkout.outcome", outcome),
	)

	o.logger.InfoContext(ctx, "checkout handled",
		"kind", kind,
		"order_id", result.OrderID,
		"outcome", outcome,
		"page_url", result.PageURL,
	)

	telemetry.SetSpanSuccess(span)
	return result, nil
}
