package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const readyTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a new health handler. db may be nil, in which case Ready always succeeds.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health check response", "error", err)
	}
}

// Ready handles GET /ready: 200 when the solution store answers a ping, 503 otherwise.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			slog.WarnContext(r.Context(), "readiness check failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)

			return
		}
	}

	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("READY")); err != nil {
		slog.Error("Failed to write readiness response", "error", err)
	}
}
