package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// DatabaseChecker is satisfied by the store gateways.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
}

// HealthHandler serves the liveness, startup and readiness probes.
type HealthHandler struct {
	db      DatabaseChecker
	timeout time.Duration
	logger  zerolog.Logger
}

// NewHealthHandler creates a health handler. db may be nil before the store is opened.
func NewHealthHandler(db DatabaseChecker, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		timeout: 2 * time.Second,
		logger:  logger.With().Str("handler", "health").Logger(),
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// RegisterRoutes registers health routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/health", func(r chi.Router) {
		r.Get("/liveness", h.handleLiveness)
		r.Get("/startup", h.handleStartup)
		r.Get("/readiness", h.handleReadiness)
	})
}

func (h *HealthHandler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "alive", Message: "Liveness check successful"})
}

func (h *HealthHandler) handleStartup(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Database not connected")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("startup check failed")
		writeError(w, r, http.StatusServiceUnavailable, "Startup check failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Message: "Startup successful"})
}

func (h *HealthHandler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Database not connected")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.db.Health(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("readiness check failed")
		writeError(w, r, http.StatusServiceUnavailable, "Readiness check failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ready", Message: "Readiness check successful"})
}
