package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/models"
)

const (
	testsPath     = "/api/tests/"
	maxListLimit  = 100
	screenshotSeg = "screenshots"
	shareSeg      = "share"
)

// LinkTestHandler serves the caller-facing test, credit and stats routes.
// Every method expects an Identity in the request context.
type LinkTestHandler struct {
	service TestService
	logger  arbor.ILogger
}

func NewLinkTestHandler(service TestService, logger arbor.ILogger) *LinkTestHandler {
	return &LinkTestHandler{
		service: service,
		logger:  logger,
	}
}

// CreateHandler handles POST /api/tests
func (h *LinkTestHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	var req models.CreateTestRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	testID, err := h.service.Create(r.Context(), identity, strings.TrimSpace(req.URL), req.Kind)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, models.CreateTestResponse{TestID: testID})
}

// ListHandler handles GET /api/tests?status=&limit=
func (h *LinkTestHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	status := models.TestStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Unknown status %q", status))
		return
	}

	tests, err := h.service.List(r.Context(), identity, status, queryLimit(r, maxListLimit))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	if tests == nil {
		tests = []*models.Test{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tests": tests,
		"count": len(tests),
	})
}

// ItemHandler handles GET /api/tests/{id}, POST|DELETE /api/tests/{id}/share
// and GET /api/tests/{id}/screenshots/{step}
func (h *LinkTestHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, testsPath), "/"), "/")
	if parts[0] == "" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	switch {
	case len(parts) == 1:
		if RequireMethod(w, r, http.MethodGet) {
			h.get(w, r, parts[0])
		}
	case len(parts) == 2 && parts[1] == shareSeg:
		h.share(w, r, parts[0])
	case len(parts) == 3 && parts[1] == screenshotSeg:
		if RequireMethod(w, r, http.MethodGet) {
			h.screenshot(w, r, parts[0], models.ScreenshotStep(parts[2]))
		}
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

func (h *LinkTestHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	identity, _ := IdentityFromContext(r.Context())

	test, err := h.service.Get(r.Context(), identity, id)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, test)
}

// share handles POST (enable) and DELETE (disable) on /api/tests/{id}/share
func (h *LinkTestHandler) share(w http.ResponseWriter, r *http.Request, id string) {
	identity, _ := IdentityFromContext(r.Context())

	switch r.Method {
	case http.MethodPost:
		shareID, err := h.service.EnableShare(r.Context(), identity, id)
		if err != nil {
			WriteDomainError(w, err, h.logger)
			return
		}
		WriteJSON(w, http.StatusOK, models.ShareResponse{ShareID: shareID, ShareEnabled: true})
	case http.MethodDelete:
		if err := h.service.DisableShare(r.Context(), identity, id); err != nil {
			WriteDomainError(w, err, h.logger)
			return
		}
		WriteJSON(w, http.StatusOK, models.ShareResponse{ShareEnabled: false})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *LinkTestHandler) screenshot(w http.ResponseWriter, r *http.Request, id string, step models.ScreenshotStep) {
	if !step.Valid() {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Unknown screenshot step %q", step))
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	shot, err := h.service.Screenshot(r.Context(), identity, id, step)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	writePNG(w, shot, "private", h.logger)
}

func writePNG(w http.ResponseWriter, shot *models.Screenshot, cacheScope string, logger arbor.ILogger) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(shot.PNG)))
	w.Header().Set("Cache-Control", cacheScope+", max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(shot.PNG); err != nil {
		logger.Debug().Err(err).Str("test_id", shot.TestID).Msg("Screenshot write aborted")
	}
}

// CreditsHandler handles GET /api/credits
func (h *LinkTestHandler) CreditsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	history, err := h.service.CreditHistory(r.Context(), identity)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	if history.Transactions == nil {
		history.Transactions = []*models.CreditTransaction{}
	}
	WriteJSON(w, http.StatusOK, history)
}

// StatsHandler handles GET /api/stats
func (h *LinkTestHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	stats, err := h.service.Stats(r.Context(), identity)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
