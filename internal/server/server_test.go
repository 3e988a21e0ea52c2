package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/app"
	"github.com/ternarybob/linkprobe/internal/common"
	"github.com/ternarybob/linkprobe/internal/handlers"
	"github.com/ternarybob/linkprobe/internal/models"
)

type redirectRunner struct{}

func (redirectRunner) Run(ctx context.Context, req *models.RunRequest) (*models.RunResult, error) {
	now := time.Now().UTC()
	return &models.RunResult{
		ID:       req.ID,
		Success:  true,
		FinalURL: "https://shop.example/landing?ref=1",
		RedirectChain: []models.RawHop{
			{URL: req.URL, StatusCode: 302, Headers: map[string]string{"Location": "https://shop.example/landing?ref=1", "X-Internal": "drop"}},
			{URL: "https://shop.example/landing?ref=1", StatusCode: 200},
		},
		NetworkDetected:       "awin",
		ParameterPreservation: true,
		Screenshot:            []byte{0x89, 'P', 'N', 'G'},
		Timing:                models.Timing{Start: now, End: now.Add(time.Second)},
	}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := arbor.NewLogger()

	mux := http.NewServeMux()
	mux.HandleFunc("/run", handlers.NewWorkerHandler(redirectRunner{}, "worker-secret", logger).RunHandler)
	worker := httptest.NewServer(mux)
	t.Cleanup(worker.Close)

	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = t.TempDir()
	cfg.Orchestrator.WorkerURL = worker.URL
	cfg.Orchestrator.WorkerToken = "worker-secret"
	cfg.Orchestrator.AdminToken = "admin-secret"
	cfg.Orchestrator.WelcomeCredits = 5

	application, err := app.New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	return New(application)
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestOrchestratorEndToEnd(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	admin := map[string]string{"X-Admin-Token": "admin-secret"}

	rec := do(t, h, http.MethodPost, "/api/admin/profiles", `{"userId":"u-1","email":"u1@example.com"}`, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var provisioned models.ProvisionProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &provisioned))
	require.NotEmpty(t, provisioned.APIKey)
	caller := map[string]string{"Authorization": "Bearer " + provisioned.APIKey}

	rec = do(t, h, http.MethodPost, "/api/tests", `{"url":"https://www.awin1.com/cread.php?ref=1","kind":"quick_check"}`, caller)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.CreateTestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	var test models.Test
	require.Eventually(t, func() bool {
		rec := do(t, h, http.MethodGet, "/api/tests/"+created.TestID, "", caller)
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &test) != nil {
			return false
		}
		return test.Status.IsTerminal()
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, models.TestStatusSuccess, test.Status)
	require.NotNil(t, test.Network)
	assert.Equal(t, "awin", *test.Network)

	rec = do(t, h, http.MethodGet, "/api/tests/"+created.TestID+"/screenshots/final", "", caller)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = do(t, h, http.MethodGet, "/api/credits", "", caller)
	require.Equal(t, http.StatusOK, rec.Code)
	var history models.CreditHistory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Equal(t, 4, history.Balance)

	// cmp_test costs 3, quick_check 1: 4 -> 1 -> insufficient
	rec = do(t, h, http.MethodPost, "/api/tests", `{"url":"https://shop.example","kind":"cmp_test"}`, caller)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/tests", `{"url":"https://shop.example","kind":"cmp_test"}`, caller)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestOrchestratorRouting(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		status  int
	}{
		{"health is public", http.MethodGet, "/api/health", nil, http.StatusOK},
		{"version is public", http.MethodGet, "/api/version", nil, http.StatusOK},
		{"tests need a key", http.MethodGet, "/api/tests", nil, http.StatusUnauthorized},
		{"stats need a key", http.MethodGet, "/api/stats", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"admin needs token", http.MethodPost, "/api/admin/sweep", nil, http.StatusUnauthorized},
		{"admin sweep", http.MethodPost, "/api/admin/sweep", map[string]string{"X-Admin-Token": "admin-secret"}, http.StatusOK},
		{"unknown share link", http.MethodGet, "/api/shared/nope", nil, http.StatusNotFound},
		{"unknown route", http.MethodGet, "/nowhere", nil, http.StatusNotFound},
		{"preflight", http.MethodOptions, "/api/tests", nil, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, "", tt.headers)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	s := &Server{logger: arbor.NewLogger()}
	h := s.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := do(t, h, http.MethodGet, "/api/tests", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := &Server{logger: arbor.NewLogger()}
	h := s.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := do(t, h, http.MethodGet, "/api/health", "", map[string]string{requestIDHeader: "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))

	rec = do(t, h, http.MethodGet, "/api/health", "", nil)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}
