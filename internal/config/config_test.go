package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t,
		"API_HTTP_PORT", "PORT", "API_METRICS_PATH", "PUBLIC_BASE_URL", "ALLOWED_ORIGIN",
		"CRM_BASE_URL", "CRM_TIMEOUT", "CHECKOUT_FALLBACK_URL",
		"SHOPIFY_ACCESS_KEY", "SHOPIFY_API_VERSION", "SHOPIFY_TIMEOUT",
		"NOVA_POSHTA_API_URL", "NOVA_POSHTA_API_KEY", "NOVA_POSHTA_CACHE_TTL", "NOVA_POSHTA_STALE_RETENTION",
		"NOVA_POSHTA_TIMEOUT", "NOVA_POSHTA_WAREHOUSE_TIMEOUT",
		"CHECKOUT_PENDING_TTL", "CACHE_SWEEP_INTERVAL", "KAFKA_BROKERS", "KAFKA_TOPIC",
		"API_SERVICE_NAME", "LOG_LEVEL",
	)

	cfg, err := LoadFiles(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	require.Equal(t, 3000, cfg.HTTP.Port)
	require.Equal(t, "/metrics", cfg.HTTP.MetricsPath)
	require.Equal(t, "https://barefoot-9610.myshopify.com", cfg.HTTP.AllowedOrigin)
	require.Empty(t, cfg.HTTP.PublicBaseURL)

	require.Equal(t, "https://api.saguaro.com.ua", cfg.CRM.BaseURL)
	require.Equal(t, 10*time.Second, cfg.CRM.Timeout)
	require.Empty(t, cfg.CRM.FallbackURL)

	require.Equal(t, "2024-01", cfg.Shopify.APIVersion)
	require.Empty(t, cfg.Shopify.AccessKey)

	require.Equal(t, "https://api.novaposhta.ua/v2.0/json/", cfg.NovaPoshta.APIURL)
	require.Equal(t, time.Hour, cfg.NovaPoshta.CacheTTL)
	require.Equal(t, 24*time.Hour, cfg.NovaPoshta.StaleRetention)

	require.Equal(t, 30*time.Minute, cfg.Checkout.PendingTTL)
	require.Equal(t, time.Minute, cfg.Checkout.SweepInterval)

	require.Empty(t, cfg.Kafka.Brokers)
	require.Equal(t, "checkout.events", cfg.Kafka.Topic)

	require.Equal(t, "checkout-relay", cfg.Service.Name)
	require.Equal(t, "info", cfg.Telemetry.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_HTTP_PORT", "")
	t.Setenv("PORT", "8088")
	t.Setenv("CRM_TIMEOUT", "3")
	t.Setenv("NOVA_POSHTA_CACHE_TTL", "90s")
	t.Setenv("CRM_POST_TO_INVOICE_ROUTE", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	t.Setenv("CHECKOUT_FALLBACK_URL", "https://shop.example/cart")

	cfg, err := LoadFiles()
	require.NoError(t, err)

	require.Equal(t, 8088, cfg.HTTP.Port)
	require.Equal(t, 3*time.Second, cfg.CRM.Timeout)
	require.True(t, cfg.CRM.PostToInvoiceRoute)
	require.Equal(t, "https://shop.example/cart", cfg.CRM.FallbackURL)
	require.Equal(t, 90*time.Second, cfg.NovaPoshta.CacheTTL)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadPrefersAPIHTTPPort(t *testing.T) {
	t.Setenv("API_HTTP_PORT", "9000")
	t.Setenv("PORT", "8088")

	cfg, err := LoadFiles()
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.HTTP.Port)
}

func TestLoadReadsDotenvWithoutOverridingEnvironment(t *testing.T) {
	const dotenvOnly = "CHECKOUT_RELAY_TEST_DOTENV_ONLY"
	t.Setenv("SHOPIFY_API_VERSION", "2023-10")
	t.Cleanup(func() { _ = os.Unsetenv(dotenvOnly) })

	file := filepath.Join(t.TempDir(), ".env")
	content := "SHOPIFY_API_VERSION=2025-01\n" + dotenvOnly + "=from-file\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	cfg, err := LoadFiles(file)
	require.NoError(t, err)

	require.Equal(t, "2023-10", cfg.Shopify.APIVersion)
	require.Equal(t, "from-file", os.Getenv(dotenvOnly))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "port", key: "API_HTTP_PORT", value: "http"},
		{name: "duration", key: "CHECKOUT_PENDING_TTL", value: "half an hour"},
		{name: "sweep interval", key: "CACHE_SWEEP_INTERVAL", value: "0"},
		{name: "sample rate", key: "OTEL_SAMPLE_RATE", value: "all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := LoadFiles()
			require.Error(t, err)
		})
	}
}

func TestGetDurationEnv(t *testing.T) {
	t.Setenv("TEST_DURATION", "")
	d, err := getDurationEnv("TEST_DURATION", time.Minute)
	require.NoError(t, err)
	require.Equal(t, time.Minute, d)

	t.Setenv("TEST_DURATION", "45")
	d, err = getDurationEnv("TEST_DURATION", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 45*time.Second, d)

	t.Setenv("TEST_DURATION", "1h30m")
	d, err = getDurationEnv("TEST_DURATION", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, d)
}
