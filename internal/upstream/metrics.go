// Package upstream records how the relay's outbound dependencies behave.
package upstream

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	requestDuration metric.Float64Histogram
	cacheLookups    metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"upstream_request_duration_seconds",
		metric.WithDescription("Duration of calls to CRM, Shopify and Nova Poshta"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create upstream_request_duration histogram: %w", err)
	}

	m.cacheLookups, err = meter.Int64Counter(
		"geo_cache_lookups_total",
		metric.WithDescription("Geo lookup cache reads by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create geo_cache_lookups_total counter: %w", err)
	}

	return m, nil
}

// RecordCall is a no-op on a nil receiver.
func (m *Metrics) RecordCall(ctx context.Context, service, operation string, durationSeconds float64, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.requestDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

// RecordCacheLookup counts a read with result hit, miss or stale.
func (m *Metrics) RecordCacheLookup(ctx context.Context, kind, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}
