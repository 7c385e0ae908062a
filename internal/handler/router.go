package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/botfarm/internal/metrics"
)

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	UserHandler   *UserHandler
	HealthHandler *HealthHandler

	// Metrics is optional. When set, requests are instrumented and the
	// scrape endpoint is mounted at MetricsPath.
	Metrics     *metrics.Metrics
	MetricsPath string

	AppName string
	Version string
	Debug   bool
	Logger  zerolog.Logger
}

// NewRouter builds the service HTTP handler.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger.With().Str("component", "router").Logger()

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(logger))
	r.Use(Recoverer(logger, cfg.Debug))
	if cfg.Metrics != nil {
		r.Use(Metrics(cfg.Metrics))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": cfg.AppName + " is running",
			"version": cfg.Version,
		})
	})

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.UserHandler != nil {
		cfg.UserHandler.RegisterRoutes(r)
	}
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, cfg.Metrics.Handler())
	}

	return r
}
