package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/models"
)

type stubRunner struct {
	result *models.RunResult
	err    error
	calls  int
}

func (s *stubRunner) Run(ctx context.Context, req *models.RunRequest) (*models.RunResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	result := *s.result
	result.ID = req.ID
	return &result, nil
}

func postRun(h *WorkerHandler, body, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.RunHandler(rec, req)
	return rec
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) models.FailureResponse {
	t.Helper()
	var resp models.FailureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestWorkerHealth(t *testing.T) {
	h := NewWorkerHandler(&stubRunner{}, "secret", arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	_, err := time.Parse(time.RFC3339Nano, resp.Timestamp)
	assert.NoError(t, err)
}

func TestWorkerRunRequiresSecret(t *testing.T) {
	runner := &stubRunner{result: &models.RunResult{Success: true}}
	h := NewWorkerHandler(runner, "secret", arbor.NewLogger())
	body := `{"id":"t1","url":"https://a.example","kind":"quick_check"}`

	for _, auth := range []string{"", "Bearer wrong", "Basic secret"} {
		rec := postRun(h, body, auth)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, auth)
		resp := decodeFailure(t, rec)
		assert.False(t, resp.Success)
		assert.Equal(t, "Unauthorized", resp.Error)
	}
	assert.Equal(t, 0, runner.calls)
}

func TestWorkerRunValidation(t *testing.T) {
	runner := &stubRunner{result: &models.RunResult{Success: true}}
	h := NewWorkerHandler(runner, "", arbor.NewLogger())

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing id", `{"url":"https://a.example","kind":"quick_check"}`, "id, url, and kind are required"},
		{"missing kind", `{"id":"t1","url":"https://a.example"}`, "id, url, and kind are required"},
		{"unsupported kind", `{"id":"t1","url":"https://a.example","kind":"deep_scan"}`, "Unsupported kind"},
		{"bad json", `{`, "Invalid request body"},
		{"file url", `{"id":"t1","url":"file:///etc/passwd","kind":"quick_check"}`, "absolute http or https URL"},
		{"chrome url", `{"id":"t1","url":"chrome://settings","kind":"quick_check"}`, "absolute http or https URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postRun(h, tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeFailure(t, rec).Error, tt.message)
		})
	}
	assert.Equal(t, 0, runner.calls)
}

func TestWorkerRunFailure(t *testing.T) {
	runner := &stubRunner{err: errors.New("navigation failed: net::ERR_NAME_NOT_RESOLVED")}
	h := NewWorkerHandler(runner, "secret", arbor.NewLogger())

	rec := postRun(h, `{"id":"t1","url":"https://a.example","kind":"quick_check"}`, "Bearer secret")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeFailure(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "navigation failed: net::ERR_NAME_NOT_RESOLVED", resp.Error)
}

func TestWorkerRunSuccess(t *testing.T) {
	runner := &stubRunner{result: &models.RunResult{
		Success:         true,
		FinalURL:        "https://shop.example/",
		NetworkDetected: "awin",
		RedirectChain:   []models.RawHop{{URL: "https://www.awin1.com/x", StatusCode: 302}},
		Screenshot:      []byte{0x89, 'P', 'N', 'G'},
	}}
	h := NewWorkerHandler(runner, "secret", arbor.NewLogger())

	rec := postRun(h, `{"id":"t9","url":"https://www.awin1.com/x","kind":"quick_check"}`, "Bearer secret")
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "t9", result.ID)
	assert.True(t, result.Success)
	assert.Equal(t, "awin", result.NetworkDetected)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, result.Screenshot)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := BearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "bearer  abc ")
	token, ok := BearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}
