package upstream

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInitializeMetrics(t *testing.T) {
	t.Run("initializes all metric instruments successfully", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

		metrics, err := NewMetrics(mp.Meter("test"))
		if err != nil {
			t.Fatalf("NewMetrics() failed: %v", err)
		}

		if metrics.requestDuration == nil {
			t.Error("requestDuration is nil")
		}
		if metrics.cacheLookups == nil {
			t.Error("cacheLookups is nil")
		}
	})
}

func TestRecordCall(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	ctx := context.Background()
	metrics.RecordCall(ctx, "crm", "send_order", 0.1, true)
	metrics.RecordCall(ctx, "crm", "send_order", 0.4, false)
	metrics.RecordCall(ctx, "shopify", "create_order", 0.2, true)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}

	histogram, ok := findMetric(rm, "upstream_request_duration_seconds").(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("upstream_request_duration_seconds not recorded as Histogram[float64]")
	}
	if len(histogram.DataPoints) != 3 {
		t.Errorf("Expected 3 data points, got %d", len(histogram.DataPoints))
	}
}

func TestRecordCacheLookup(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	ctx := context.Background()
	metrics.RecordCacheLookup(ctx, "cities", "miss")
	metrics.RecordCacheLookup(ctx, "cities", "hit")
	metrics.RecordCacheLookup(ctx, "cities", "hit")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}

	sum, ok := findMetric(rm, "geo_cache_lookups_total").(metricdata.Sum[int64])
	if !ok {
		t.Fatal("geo_cache_lookups_total not recorded as Sum[int64]")
	}

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if len(sum.DataPoints) != 2 || total != 3 {
		t.Errorf("Expected 2 series totalling 3, got %d series totalling %d", len(sum.DataPoints), total)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.RecordCall(context.Background(), "crm", "send_order", 0.1, true)
	metrics.RecordCacheLookup(context.Background(), "cities", "hit")
}

func findMetric(rm metricdata.ResourceMetrics, name string) metricdata.Aggregation {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	return nil
}
