package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/adapters"
	httpadapter "github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/adapters/http"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/adapters/memory"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/app"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/app/commands"
	checkoutmetrics "github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/metrics"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/checkout/ports"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/config"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/crm"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/events"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/novaposhta"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/shopify"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/telemetry"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/upstream"
)

var errShuttingDown = errors.New("shutting down")

// eventBus is a publisher that owns a connection.
type eventBus interface {
	ports.EventBus
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, telemetry.ParseLevel(cfg.Telemetry.LogLevel))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}

	meter := telemetry.Meter()

	upstreamMetrics, err := upstream.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create upstream metrics: %w", err)
	}
	eventMetrics, err := events.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create event metrics: %w", err)
	}
	checkoutMetrics, err := checkoutmetrics.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create checkout metrics: %w", err)
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create http metrics: %w", err)
	}

	npClient := novaposhta.NewClient(novaposhta.Config{
		APIURL:           cfg.NovaPoshta.APIURL,
		APIKey:           cfg.NovaPoshta.APIKey,
		Timeout:          cfg.NovaPoshta.Timeout,
		WarehouseTimeout: cfg.NovaPoshta.WarehouseTimeout,
	}, logger, upstreamMetrics)
	geo := novaposhta.NewService(npClient, novaposhta.ServiceConfig{
		CacheTTL:       cfg.NovaPoshta.CacheTTL,
		StaleRetention: cfg.NovaPoshta.StaleRetention,
	}, logger, upstreamMetrics)
	if cfg.NovaPoshta.APIKey == "" {
		logger.Warn("NOVA_POSHTA_API_KEY is not set, address lookups will fail")
	}

	crmClient := crm.NewClient(crm.Config{
		BaseURL:            cfg.CRM.BaseURL,
		Timeout:            cfg.CRM.Timeout,
		PostToInvoiceRoute: cfg.CRM.PostToInvoiceRoute,
	}, logger, upstreamMetrics)

	var mirror ports.OrderMirror
	if cfg.Shopify.AccessKey != "" {
		shopifyClient := shopify.NewClient(shopify.Config{
			AccessToken: cfg.Shopify.AccessKey,
			APIVersion:  cfg.Shopify.APIVersion,
			Timeout:     cfg.Shopify.Timeout,
		}, logger, upstreamMetrics)
		mirror = adapters.NewObservableMirror(shopify.NewMirror(shopifyClient, logger), checkoutMetrics)
	} else {
		logger.Warn("SHOPIFY_ACCESS_KEY is not set, orders will not be mirrored to Shopify")
	}

	bus, err := newEventBus(cfg.Kafka, logger)
	if err != nil {
		return err
	}

	pending := memory.NewPendingOrderStore(cfg.Checkout.PendingTTL)

	svc := app.NewService(app.Dependencies{
		Pending: pending,
		CRM:     adapters.NewCRMGateway(crmClient),
		Mirror:  mirror,
		Events:  adapters.NewObservableEventBus(bus, eventMetrics),
		Fallback: commands.FallbackPolicy{
			URL:           cfg.CRM.FallbackURL,
			AllowedOrigin: cfg.HTTP.AllowedOrigin,
		},
	}, logger, checkoutMetrics)

	registry, err := telemetry.NewRegistry(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "checkout_pending_orders",
			Help: "Orders waiting for a delivery address.",
		}, func() float64 { return float64(pending.Len()) }),
	)
	if err != nil {
		return fmt.Errorf("create prometheus registry: %w", err)
	}

	handler := httpadapter.NewHandler(svc, geo, httpadapter.HandlerConfig{
		PublicBaseURL: cfg.HTTP.PublicBaseURL,
		Port:          cfg.HTTP.Port,
	}, logger)
	router := httpadapter.NewRouter(handler, httpadapter.RouterConfig{
		AllowedOrigin:  cfg.HTTP.AllowedOrigin,
		MetricsPath:    cfg.HTTP.MetricsPath,
		MetricsHandler: telemetry.MetricsHandler(registry),
		Ready: func(context.Context) error {
			if ctx.Err() != nil {
				return errShuttingDown
			}
			return nil
		},
	}, httpMetrics, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           telemetry.InstrumentHandler(router, "checkout-relay"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server starting",
			"port", cfg.HTTP.Port,
			"allowed_origin", cfg.HTTP.AllowedOrigin,
			"crm_base_url", cfg.CRM.BaseURL,
			"shopify_mirror", mirror != nil,
			"kafka", len(cfg.Kafka.Brokers) > 0,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return pending.Run(gctx, cfg.Checkout.SweepInterval)
	})
	g.Go(func() error {
		return geo.Run(gctx, cfg.Checkout.SweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv, svc, bus, tel, time.Duration(cfg.HTTP.ShutdownGrace)*time.Second, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newEventBus(cfg config.KafkaConfig, logger *slog.Logger) (eventBus, error) {
	if len(cfg.Brokers) == 0 {
		logger.Info("KAFKA_BROKERS is not set, checkout events are only logged")
		return events.NewNoopEventBus(logger), nil
	}

	bus, err := events.NewKafkaEventBus(events.KafkaConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create kafka event bus: %w", err)
	}
	return bus, nil
}

// shutdown stops intake first, then drains background mirrors before the
// publisher and exporters go away.
func shutdown(srv *http.Server, svc *app.Service, bus eventBus, tel *telemetry.Telemetry, grace time.Duration, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	var errs []error

	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	} else {
		logger.Info("http server stopped")
	}

	if err := svc.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain background work: %w", err))
	}

	if err := bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close event bus: %w", err))
	}

	if err := tel.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}

	return errors.Join(errs...)
}
