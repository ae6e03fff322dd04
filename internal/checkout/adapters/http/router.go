package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 20

// ReadinessCheck reports whether the service can take traffic.
type ReadinessCheck func(ctx context.Context) error

type RouterConfig struct {
	AllowedOrigin  string
	MetricsPath    string
	MetricsHandler http.Handler
	Ready          ReadinessCheck
}

// NewRouter assembles the middleware chain, the API routes and the
// operational endpoints.
func NewRouter(handler *Handler, cfg RouterConfig, metrics *Metrics, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(WithMetrics(metrics))
	r.Use(CORS(cfg.AllowedOrigin))
	r.Use(LimitBody(maxBodyBytes))

	handler.Register(r)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, cfg.MetricsHandler)
	}

	return r
}
