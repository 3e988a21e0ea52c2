package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/models"
)

// Runner executes a single link test run.
type Runner interface {
	Run(ctx context.Context, req *models.RunRequest) (*models.RunResult, error)
}

// WorkerHandler serves the browser worker control protocol.
type WorkerHandler struct {
	runner Runner
	secret string
	logger arbor.ILogger
}

// NewWorkerHandler creates a worker handler. An empty secret disables the
// bearer check.
func NewWorkerHandler(runner Runner, secret string, logger arbor.ILogger) *WorkerHandler {
	return &WorkerHandler{
		runner: runner,
		secret: secret,
		logger: logger,
	}
}

// HealthHandler handles GET /health
func (h *WorkerHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// RunHandler handles POST /run
func (h *WorkerHandler) RunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if !h.authorized(r) {
		writeFailure(w, http.StatusUnauthorized, models.ErrUnauthorized.Error())
		return
	}

	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info().Str("test_id", req.ID).Str("kind", string(req.Kind)).Str("url", req.URL).Msg("Run request received")

	result, err := h.runner.Run(r.Context(), &req)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

func (h *WorkerHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	token, ok := BearerToken(r)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, models.FailureResponse{Success: false, Error: message})
}
