package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Checkout outcomes recorded on checkouts_total.
const (
	OutcomeStaged    = "staged"
	OutcomeCompleted = "completed"
	OutcomeFallback  = "fallback"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

type Metrics struct {
	checkoutsTotal   metric.Int64Counter
	checkoutDuration metric.Float64Histogram
	mirrorsTotal     metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.checkoutsTotal, err = meter.Int64Counter(
		"checkouts_total",
		metric.WithDescription("Total number of checkout requests by outcome"),
		metric.WithUnit("{checkout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkouts_total counter: %w", err)
	}

	m.checkoutDuration, err = meter.Float64Histogram(
		"checkout_duration_seconds",
		metric.WithDescription("Duration of checkout handling"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout_duration histogram: %w", err)
	}

	m.mirrorsTotal, err = meter.Int64Counter(
		"order_mirrors_total",
		metric.WithDescription("Total number of background Shopify mirror attempts"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_mirrors_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordCheckout(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.checkoutsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordCheckoutDuration(ctx context.Context, kind string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.checkoutDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

func (m *Metrics) RecordMirror(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.mirrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}
