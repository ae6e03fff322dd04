package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration for the checkout relay.
type Config struct {
	HTTP       HTTPConfig
	CRM        CRMConfig
	Shopify    ShopifyConfig
	NovaPoshta NovaPoshtaConfig
	Checkout   CheckoutConfig
	Kafka      KafkaConfig
	Telemetry  TelemetryConfig
	Service    ServiceConfig
}

type HTTPConfig struct {
	Port          int
	MetricsPath   string
	ShutdownGrace int
	// PublicBaseURL is the externally visible base for address form links.
	PublicBaseURL string
	AllowedOrigin string
}

type CRMConfig struct {
	BaseURL            string
	Timeout            time.Duration
	PostToInvoiceRoute bool
	FallbackURL        string
}

type ShopifyConfig struct {
	AccessKey  string
	APIVersion string
	Timeout    time.Duration
}

type NovaPoshtaConfig struct {
	APIURL           string
	APIKey           string
	Timeout          time.Duration
	WarehouseTimeout time.Duration
	CacheTTL         time.Duration
	StaleRetention   time.Duration
}

type CheckoutConfig struct {
	PendingTTL    time.Duration
	SweepInterval time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

const (
	defaultHTTPPort          = 3000
	defaultMetricsPath       = "/metrics"
	defaultShutdownGrace     = 15
	defaultAllowedOrigin     = "https://barefoot-9610.myshopify.com"
	defaultCRMBaseURL        = "https://api.saguaro.com.ua"
	defaultCRMTimeout        = 10 * time.Second
	defaultShopifyAPIVersion = "2024-01"
	defaultShopifyTimeout    = 15 * time.Second
	defaultNovaPoshtaURL     = "https://api.novaposhta.ua/v2.0/json/"
	defaultNovaPoshtaTimeout = 5 * time.Second
	defaultWarehouseTimeout  = 10 * time.Second
	defaultGeoCacheTTL       = time.Hour
	defaultStaleRetention    = 24 * time.Hour
	defaultPendingTTL        = 30 * time.Minute
	defaultSweepInterval     = time.Minute
	defaultKafkaTopic        = "checkout.events"
	defaultServiceName       = "checkout-relay"
	defaultServiceVersion    = "0.1.0"
	defaultEnvironment       = "development"
	defaultLogLevel          = "info"
	defaultOTelSampleRate    = 1.0
)

// Load reads configuration from environment variables, applying defaults when
// needed. A .env file in the working directory is read first; variables
// already set in the environment win.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are ignored.
func LoadFiles(files ...string) (*Config, error) {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", file, err)
		}
	}

	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	crmCfg, err := loadCRMConfig()
	if err != nil {
		return nil, fmt.Errorf("loading CRM config: %w", err)
	}

	shopifyCfg, err := loadShopifyConfig()
	if err != nil {
		return nil, fmt.Errorf("loading Shopify config: %w", err)
	}

	npCfg, err := loadNovaPoshtaConfig()
	if err != nil {
		return nil, fmt.Errorf("loading Nova Poshta config: %w", err)
	}

	checkoutCfg, err := loadCheckoutConfig()
	if err != nil {
		return nil, fmt.Errorf("loading checkout config: %w", err)
	}

	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	return &Config{
		HTTP:       httpCfg,
		CRM:        crmCfg,
		Shopify:    shopifyCfg,
		NovaPoshta: npCfg,
		Checkout:   checkoutCfg,
		Kafka:      loadKafkaConfig(),
		Telemetry:  telCfg,
		Service:    loadServiceConfig(),
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port := defaultHTTPPort
	if value, ok := lookupFirst("API_HTTP_PORT", "PORT"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_HTTP_PORT: %w", err)
		}
		port = parsed
	}

	shutdownGrace := defaultShutdownGrace
	if value, ok := os.LookupEnv("API_SHUTDOWN_GRACE_SECONDS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_SHUTDOWN_GRACE_SECONDS: %w", err)
		}
		shutdownGrace = parsed
	}

	return HTTPConfig{
		Port:          port,
		MetricsPath:   getEnvOrDefault("API_METRICS_PATH", defaultMetricsPath),
		ShutdownGrace: shutdownGrace,
		PublicBaseURL: getEnvOrDefault("PUBLIC_BASE_URL", ""),
		AllowedOrigin: getEnvOrDefault("ALLOWED_ORIGIN", defaultAllowedOrigin),
	}, nil
}

func loadCRMConfig() (CRMConfig, error) {
	timeout, err := getDurationEnv("CRM_TIMEOUT", defaultCRMTimeout)
	if err != nil {
		return CRMConfig{}, err
	}

	return CRMConfig{
		BaseURL:            getEnvOrDefault("CRM_BASE_URL", defaultCRMBaseURL),
		Timeout:            timeout,
		PostToInvoiceRoute: getBoolEnv("CRM_POST_TO_INVOICE_ROUTE", false),
		FallbackURL:        getEnvOrDefault("CHECKOUT_FALLBACK_URL", ""),
	}, nil
}

func loadShopifyConfig() (ShopifyConfig, error) {
	timeout, err := getDurationEnv("SHOPIFY_TIMEOUT", defaultShopifyTimeout)
	if err != nil {
		return ShopifyConfig{}, err
	}

	return ShopifyConfig{
		AccessKey:  getEnvOrDefault("SHOPIFY_ACCESS_KEY", ""),
		APIVersion: getEnvOrDefault("SHOPIFY_API_VERSION", defaultShopifyAPIVersion),
		Timeout:    timeout,
	}, nil
}

func loadNovaPoshtaConfig() (NovaPoshtaConfig, error) {
	timeout, err := getDurationEnv("NOVA_POSHTA_TIMEOUT", defaultNovaPoshtaTimeout)
	if err != nil {
		return NovaPoshtaConfig{}, err
	}
	warehouseTimeout, err := getDurationEnv("NOVA_POSHTA_WAREHOUSE_TIMEOUT", defaultWarehouseTimeout)
	if err != nil {
		return NovaPoshtaConfig{}, err
	}
	cacheTTL, err := getDurationEnv("NOVA_POSHTA_CACHE_TTL", defaultGeoCacheTTL)
	if err != nil {
		return NovaPoshtaConfig{}, err
	}
	staleRetention, err := getDurationEnv("NOVA_POSHTA_STALE_RETENTION", defaultStaleRetention)
	if err != nil {
		return NovaPoshtaConfig{}, err
	}

	return NovaPoshtaConfig{
		APIURL:           getEnvOrDefault("NOVA_POSHTA_API_URL", defaultNovaPoshtaURL),
		APIKey:           getEnvOrDefault("NOVA_POSHTA_API_KEY", ""),
		Timeout:          timeout,
		WarehouseTimeout: warehouseTimeout,
		CacheTTL:         cacheTTL,
		StaleRetention:   staleRetention,
	}, nil
}

func loadCheckoutConfig() (CheckoutConfig, error) {
	pendingTTL, err := getDurationEnv("CHECKOUT_PENDING_TTL", defaultPendingTTL)
	if err != nil {
		return CheckoutConfig{}, err
	}
	sweepInterval, err := getDurationEnv("CACHE_SWEEP_INTERVAL", defaultSweepInterval)
	if err != nil {
		return CheckoutConfig{}, err
	}
	if sweepInterval <= 0 {
		return CheckoutConfig{}, fmt.Errorf("invalid CACHE_SWEEP_INTERVAL: must be positive")
	}

	return CheckoutConfig{
		PendingTTL:    pendingTTL,
		SweepInterval: sweepInterval,
	}, nil
}

func loadKafkaConfig() KafkaConfig {
	var brokers []string
	if value, ok := os.LookupEnv("KAFKA_BROKERS"); ok && value != "" {
		for _, broker := range strings.Split(value, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}

	return KafkaConfig{
		Brokers: brokers,
		Topic:   getEnvOrDefault("KAFKA_TOPIC", defaultKafkaTopic),
	}
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	logLevel := getEnvOrDefault("LOG_LEVEL", defaultLogLevel)
	otelEndpoint := getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	enableTracing := getBoolEnv("OTEL_ENABLE_TRACING", true)
	enableMetrics := getBoolEnv("OTEL_ENABLE_METRICS", true)

	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      logLevel,
		OTelEndpoint:  otelEndpoint,
		EnableTracing: enableTracing,
		EnableMetrics: enableMetrics,
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("90s") and bare integers as seconds.
func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func lookupFirst(keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			return value, true
		}
	}
	return "", false
}
