package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/models"
)

const sharedPath = "/api/shared/"

// SharedHandler serves public share links. No identity is required.
type SharedHandler struct {
	service SharedTestService
	logger  arbor.ILogger
}

func NewSharedHandler(service SharedTestService, logger arbor.ILogger) *SharedHandler {
	return &SharedHandler{
		service: service,
		logger:  logger,
	}
}

// ItemHandler handles GET /api/shared/{shareId} and
// GET /api/shared/{shareId}/screenshots/{step}
func (h *SharedHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, sharedPath), "/"), "/")
	if parts[0] == "" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	switch {
	case len(parts) == 1:
		shared, err := h.service.GetShared(r.Context(), parts[0])
		if err != nil {
			WriteDomainError(w, err, h.logger)
			return
		}
		WriteJSON(w, http.StatusOK, shared)
	case len(parts) == 3 && parts[1] == screenshotSeg:
		step := models.ScreenshotStep(parts[2])
		if !step.Valid() {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("Unknown screenshot step %q", step))
			return
		}
		shot, err := h.service.SharedScreenshot(r.Context(), parts[0], step)
		if err != nil {
			WriteDomainError(w, err, h.logger)
			return
		}
		writePNG(w, shot, "public", h.logger)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}
