package http

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Request describes one served request. Route is the chi pattern, never the
// raw path, so order ids do not become label values.
type Request struct {
	Method   string
	Route    string
	Status   int
	Bytes    int
	Duration time.Duration
}

type Metrics struct {
	requestsTotal   metric.Int64Counter
	requestDuration metric.Float64Histogram
	responseSize    metric.Int64Histogram
	inFlight        metric.Int64UpDownCounter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.requestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Requests served, by route and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total counter: %w", err)
	}

	m.requestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("Time to serve a request, upstream calls included"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration histogram: %w", err)
	}

	m.responseSize, err = meter.Int64Histogram(
		"http_response_size_bytes",
		metric.WithDescription("Response body size"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_response_size histogram: %w", err)
	}

	m.inFlight, err = meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_in_flight counter: %w", err)
	}

	return m, nil
}

// Started marks a request as in flight; call the returned func when it ends.
func (m *Metrics) Started(ctx context.Context) func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Add(ctx, 1)
	return func() { m.inFlight.Add(ctx, -1) }
}

func (m *Metrics) RecordRequest(ctx context.Context, req Request) {
	if m == nil {
		return
	}

	route := attribute.String("route", req.Route)
	method := attribute.String("method", req.Method)

	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		method,
		route,
		attribute.String("status_code", strconv.Itoa(req.Status)),
	))
	m.requestDuration.Record(ctx, req.Duration.Seconds(), metric.WithAttributes(method, route))
	m.responseSize.Record(ctx, int64(req.Bytes), metric.WithAttributes(route))
}
