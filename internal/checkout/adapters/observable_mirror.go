package adapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/domain"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/metrics"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/ports"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/telemetry"
)

type ObservableMirror struct {
	mirror  ports.OrderMirror
	metrics *metrics.Metrics
}

func NewObservableMirror(mirror ports.OrderMirror, metrics *metrics.Metrics) *ObservableMirror {
	return &ObservableMirror{
		mirror:  mirror,
		metrics: metrics,
	}
}

func (m *ObservableMirror) Mirror(ctx context.Context, order domain.Order) error {
	ctx, span := telemetry.StartSpan(ctx, "OrderMirror.Mirror")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("shop.domain", order.Shop.Domain),
		attribute.Int("cart.items", len(order.Cart.Items)),
	)

	err := m.mirror.Mirror(ctx, order)
	m.metrics.RecordMirror(ctx, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
