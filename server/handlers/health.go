package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthHandlerConfig wires the probes the health endpoints run. Any
// nil probe is reported as "skipped".
type HealthHandlerConfig struct {
	DBPing     func(ctx context.Context) error
	CachePing  func(ctx context.Context) error
	SecretOK   func() bool
	AuthAPIURL string
}

type HealthHandler struct {
	cfg HealthHandlerConfig
}

func NewHealthHandler(cfg HealthHandlerConfig) *HealthHandler {
	return &HealthHandler{cfg: cfg}
}

// Liveness reports the process is up. No dependencies are checked.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "alive"}, http.StatusOK)
}

// Readiness checks the dependencies a request needs: the database, the
// cache and the token secret. A degraded cache does not fail
// readiness; a dead database does.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := map[string]string{}
	healthy := true

	if h.cfg.DBPing != nil {
		if err := h.cfg.DBPing(ctx); err != nil {
			components["mongodb"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			components["mongodb"] = "healthy"
		}
	} else {
		components["mongodb"] = "skipped"
	}

	if h.cfg.CachePing != nil {
		if err := h.cfg.CachePing(ctx); err != nil {
			components["redis"] = "degraded: " + err.Error()
		} else {
			components["redis"] = "healthy"
		}
	} else {
		components["redis"] = "skipped"
	}

	if h.cfg.SecretOK != nil {
		if h.cfg.SecretOK() {
			components["jwt_secret"] = "healthy"
		} else {
			components["jwt_secret"] = "unhealthy: secret too short"
			healthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, map[string]any{
		"status":     status,
		"components": components,
	}, code)
}
