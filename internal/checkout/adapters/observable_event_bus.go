package adapters

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/ports"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/events"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/telemetry"
)

type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *events.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *events.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) PublishCheckoutStaged(ctx context.Context, orderID string) error {
	return e.observe(ctx, "EventBus.PublishCheckoutStaged", events.TypeCheckoutStaged, orderID,
		func(ctx context.Context) error { return e.bus.PublishCheckoutStaged(ctx, orderID) })
}

func (e *ObservableEventBus) PublishCheckoutCompleted(ctx context.Context, orderID, pageURL string) error {
	return e.observe(ctx, "EventBus.PublishCheckoutCompleted", events.TypeCheckoutCompleted, orderID,
		func(ctx context.Context) error { return e.bus.PublishCheckoutCompleted(ctx, orderID, pageURL) })
}

func (e *ObservableEventBus) PublishCheckoutDegraded(ctx context.Context, orderID, reason string) error {
	return e.observe(ctx, "EventBus.PublishCheckoutDegraded", events.TypeCheckoutDegraded, orderID,
		func(ctx context.Context) error { return e.bus.PublishCheckoutDegraded(ctx, orderID, reason) },
		attribute.String("failure.reason", reason))
}

func (e *ObservableEventBus) observe(ctx context.Context, spanName, eventType, orderID string, publish func(context.Context) error, extra ...attribute.KeyValue) error {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	telemetry.AddSpanAttributes(span, append([]attribute.KeyValue{
		attribute.String("order.id", orderID),
		attribute.String("event.type", eventType),
	}, extra...)...)

	start := time.Now()
	err := publish(ctx)
	e.metrics.RecordPublish(ctx, eventType, time.Since(start).Seconds(), err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
