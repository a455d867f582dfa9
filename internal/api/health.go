package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/interview-funnel/internal/store"
	"github.com/go-chi/chi/v5"
)

// HealthChecker reports the health of an external dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo      store.Repository
	reasoning HealthChecker
	timeout   time.Duration
}

// NewHealthHandler creates a new health handler. reasoning may be nil.
func NewHealthHandler(repo store.Repository, reasoning HealthChecker) *HealthHandler {
	return &HealthHandler{repo: repo, reasoning: reasoning, timeout: 5 * time.Second}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// The HTTP fallback keeps interviews going, so reasoning does not fail the check.
	if h.reasoning != nil {
		if err := h.reasoning.Health(ctx); err != nil {
			slog.Warn("Reasoning service unhealthy", "error", err)
			checks["reasoning"] = "unreachable"
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["reasoning"] = "ok"
		}
	}

	JSON(w, statusCode, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
