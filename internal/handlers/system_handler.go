package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/common"
)

// workerProbeTimeout bounds the worker health probe made by /api/health.
const workerProbeTimeout = 3 * time.Second

// SystemHandler serves unauthenticated health and version routes.
type SystemHandler struct {
	worker HealthChecker // nil when no worker is configured
	logger arbor.ILogger
}

func NewSystemHandler(worker HealthChecker, logger arbor.ILogger) *SystemHandler {
	return &SystemHandler{
		worker: worker,
		logger: logger,
	}
}

// HealthHandler handles GET /api/health. The orchestrator answers 200 even
// when the worker is down; the worker field carries that state.
func (h *SystemHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	workerState := "not_configured"
	if h.worker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), workerProbeTimeout)
		defer cancel()
		if err := h.worker.Health(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("Browser worker health probe failed")
			workerState = "unreachable"
		} else {
			workerState = "ok"
		}
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"worker":    workerState,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// VersionHandler handles GET /api/version
func (h *SystemHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, common.GetVersionInfo())
}
