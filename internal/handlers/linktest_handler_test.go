package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/models"
)

type stubIdentity struct {
	keys     map[string]*models.Identity
	profiles map[string]*models.Profile
	grants   []int
}

func newStubIdentity() *stubIdentity {
	return &stubIdentity{
		keys: map[string]*models.Identity{
			"key-1": {ProfileID: "prof-1", AccountID: "acct-1"},
			"key-2": {ProfileID: "prof-2", AccountID: "acct-2"},
		},
		profiles: map[string]*models.Profile{},
	}
}

func (s *stubIdentity) Resolve(ctx context.Context, apiKey string) (*models.Identity, error) {
	if id, ok := s.keys[apiKey]; ok {
		return id, nil
	}
	return nil, models.ErrUnauthenticated
}

func (s *stubIdentity) EnsureProfile(ctx context.Context, userID, email, name string) (*models.Profile, bool, error) {
	if p, ok := s.profiles[userID]; ok {
		return p, false, nil
	}
	p := &models.Profile{ID: "p-" + userID, UserID: userID, Email: email, Name: name, AccountID: "a-" + userID, APIKey: "lp_" + userID}
	s.profiles[userID] = p
	return p, true, nil
}

func (s *stubIdentity) GrantCredits(ctx context.Context, accountID string, amount int, note string) (*models.CreditTransaction, error) {
	if accountID != "acct-1" {
		return nil, models.ErrAccountNotFound
	}
	if amount < -10 {
		return nil, models.ErrInsufficientCredits
	}
	s.grants = append(s.grants, amount)
	return &models.CreditTransaction{ID: "tx", AccountID: accountID, Amount: amount, Type: models.TransactionManualAdjustment, BalanceAfter: 10 + amount, Note: note}, nil
}

type stubTestService struct {
	createErr error
	created   []string
	tests     map[string]*models.Test
	shots     map[string][]byte
	lastLimit int
	lastState models.TestStatus
}

func newStubTestService() *stubTestService {
	return &stubTestService{
		tests: map[string]*models.Test{
			"t-1": {ID: "t-1", AccountID: "acct-1", Kind: models.TestKindQuickCheck, Status: models.TestStatusSuccess},
		},
		shots: map[string][]byte{
			models.ScreenshotKey("t-1", models.ScreenshotFinal): {0x89, 'P', 'N', 'G'},
		},
	}
}

func (s *stubTestService) Create(ctx context.Context, identity *models.Identity, rawURL string, kind models.TestKind) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.created = append(s.created, rawURL)
	return "new-test", nil
}

func (s *stubTestService) Get(ctx context.Context, identity *models.Identity, id string) (*models.Test, error) {
	t, ok := s.tests[id]
	if !ok || t.AccountID != identity.AccountID {
		return nil, fmt.Errorf("%w: %s", models.ErrTestNotFound, id)
	}
	return t, nil
}

func (s *stubTestService) List(ctx context.Context, identity *models.Identity, status models.TestStatus, limit int) ([]*models.Test, error) {
	s.lastLimit = limit
	s.lastState = status
	var out []*models.Test
	for _, t := range s.tests {
		if t.AccountID == identity.AccountID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubTestService) Screenshot(ctx context.Context, identity *models.Identity, id string, step models.ScreenshotStep) (*models.Screenshot, error) {
	if _, err := s.Get(ctx, identity, id); err != nil {
		return nil, err
	}
	png, ok := s.shots[models.ScreenshotKey(id, step)]
	if !ok {
		return nil, models.ErrScreenshotMissing
	}
	return &models.Screenshot{TestID: id, Step: step, PNG: png}, nil
}

func (s *stubTestService) CreditHistory(ctx context.Context, identity *models.Identity) (*models.CreditHistory, error) {
	return &models.CreditHistory{Balance: 7}, nil
}

func (s *stubTestService) Stats(ctx context.Context, identity *models.Identity) (*models.DashboardStats, error) {
	return nil, errors.New("store offline")
}

func (s *stubTestService) EnableShare(ctx context.Context, identity *models.Identity, id string) (string, error) {
	t, err := s.Get(ctx, identity, id)
	if err != nil {
		return "", err
	}
	if t.ShareID == "" {
		t.ShareID = "share-" + id
	}
	t.ShareEnabled = true
	return t.ShareID, nil
}

func (s *stubTestService) DisableShare(ctx context.Context, identity *models.Identity, id string) error {
	t, err := s.Get(ctx, identity, id)
	if err != nil {
		return err
	}
	t.ShareEnabled = false
	return nil
}

func (s *stubTestService) sharedTest(shareID string) (*models.Test, error) {
	for _, t := range s.tests {
		if t.ShareID == shareID && t.ShareEnabled {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: share %s", models.ErrTestNotFound, shareID)
}

func (s *stubTestService) GetShared(ctx context.Context, shareID string) (*models.SharedTest, error) {
	t, err := s.sharedTest(shareID)
	if err != nil {
		return nil, err
	}
	return models.NewSharedTest(t, []models.ScreenshotStep{models.ScreenshotFinal}), nil
}

func (s *stubTestService) SharedScreenshot(ctx context.Context, shareID string, step models.ScreenshotStep) (*models.Screenshot, error) {
	t, err := s.sharedTest(shareID)
	if err != nil {
		return nil, err
	}
	png, ok := s.shots[models.ScreenshotKey(t.ID, step)]
	if !ok {
		return nil, models.ErrScreenshotMissing
	}
	return &models.Screenshot{TestID: t.ID, Step: step, PNG: png}, nil
}

type apiFixture struct {
	service  *stubTestService
	identity *stubIdentity
	auth     *Authenticator
	tests    *LinkTestHandler
}

func newAPIFixture() *apiFixture {
	logger := arbor.NewLogger()
	identity := newStubIdentity()
	service := newStubTestService()
	return &apiFixture{
		service:  service,
		identity: identity,
		auth:     NewAuthenticator(identity, "admin-secret", logger),
		tests:    NewLinkTestHandler(service, logger),
	}
}

func serve(h http.HandlerFunc, method, path, body, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	return body["error"]
}

func TestCreateRequiresAPIKey(t *testing.T) {
	f := newAPIFixture()
	h := f.auth.Require(f.tests.CreateHandler)

	for _, key := range []string{"", "unknown"} {
		rec := serve(h, http.MethodPost, "/api/tests", `{"url":"https://a.example","kind":"quick_check"}`, key)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, key)
		assert.Equal(t, "Not authenticated", errorBody(t, rec))
	}
	assert.Empty(t, f.service.created)
}

func TestCreateReturnsTestID(t *testing.T) {
	f := newAPIFixture()
	h := f.auth.Require(f.tests.CreateHandler)

	rec := serve(h, http.MethodPost, "/api/tests", `{"url":"  https://a.example/x ","kind":"cmp_test"}`, "key-1")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp models.CreateTestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "new-test", resp.TestID)
	assert.Equal(t, []string{"https://a.example/x"}, f.service.created)
}

func TestCreateMapsErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		status  int
		message string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, "Invalid request body"},
		{"missing kind", `{"url":"https://a.example"}`, nil, http.StatusBadRequest, "url and kind are required"},
		{"invalid url", `{"url":"nope","kind":"quick_check"}`, models.ErrInvalidURL, http.StatusBadRequest, "Invalid URL"},
		{"unsupported kind", `{"url":"https://a.example","kind":"x"}`, fmt.Errorf("%w: x", models.ErrUnsupportedKind), http.StatusBadRequest, "Unsupported kind"},
		{"profile", `{"url":"https://a.example","kind":"quick_check"}`, models.ErrProfileNotFound, http.StatusNotFound, "Profile not found"},
		{"credits", `{"url":"https://a.example","kind":"cmp_test"}`, fmt.Errorf("%w: balance 1", models.ErrInsufficientCredits), http.StatusPaymentRequired, "Insufficient credits"},
		{"internal", `{"url":"https://a.example","kind":"quick_check"}`, errors.New("disk full"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture()
			f.service.createErr = tt.err
			rec := serve(f.auth.Require(f.tests.CreateHandler), http.MethodPost, "/api/tests", tt.body, "key-1")
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, errorBody(t, rec), tt.message)
		})
	}
}

func TestListFiltersAndClampsLimit(t *testing.T) {
	f := newAPIFixture()
	h := f.auth.Require(f.tests.ListHandler)

	rec := serve(h, http.MethodGet, "/api/tests?status=success&limit=500", "", "key-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxListLimit, f.service.lastLimit)
	assert.Equal(t, models.TestStatusSuccess, f.service.lastState)

	var resp struct {
		Tests []*models.Test `json:"tests"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	rec = serve(h, http.MethodGet, "/api/tests", "", "key-2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tests":[]`)

	rec = serve(h, http.MethodGet, "/api/tests?status=done", "", "key-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestItemRoutes(t *testing.T) {
	f := newAPIFixture()
	h := f.auth.Require(f.tests.ItemHandler)

	rec := serve(h, http.MethodGet, "/api/tests/t-1", "", "key-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var test models.Test
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &test))
	assert.Equal(t, "t-1", test.ID)

	// Other accounts see the same 404 as a missing test
	rec = serve(h, http.MethodGet, "/api/tests/t-1", "", "key-2")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Test not found", errorBody(t, rec))

	rec = serve(h, http.MethodGet, "/api/tests/t-1/screenshots/final", "", "key-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rec.Body.Bytes())

	rec = serve(h, http.MethodGet, "/api/tests/t-1/screenshots/consent_before", "", "key-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodGet, "/api/tests/t-1/screenshots/thumbnail", "", "key-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodGet, "/api/tests/t-1/other", "", "key-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodDelete, "/api/tests/t-1", "", "key-1")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCreditsAndStats(t *testing.T) {
	f := newAPIFixture()

	rec := serve(f.auth.Require(f.tests.CreditsHandler), http.MethodGet, "/api/credits", "", "key-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"balance":7,"transactions":[]}`, rec.Body.String())

	rec = serve(f.auth.Require(f.tests.StatsHandler), http.MethodGet, "/api/stats", "", "key-1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", errorBody(t, rec))
}

func TestStatusForError(t *testing.T) {
	status, message := StatusForError(fmt.Errorf("create: %w", models.ErrInsufficientCredits))
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "Insufficient credits", message)

	status, _ = StatusForError(models.ErrAccountNotFound)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = StatusForError(models.ErrWorkerUnreachable)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestShareToggleAndPublicView(t *testing.T) {
	f := newAPIFixture()
	item := f.auth.Require(f.tests.ItemHandler)
	public := NewSharedHandler(f.service, arbor.NewLogger()).ItemHandler

	rec := serve(public, http.MethodGet, "/api/shared/share-t-1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(item, http.MethodPost, "/api/tests/t-1/share", "", "key-2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(item, http.MethodPost, "/api/tests/t-1/share", "", "key-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var shared models.ShareResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shared))
	assert.Equal(t, "share-t-1", shared.ShareID)
	assert.True(t, shared.ShareEnabled)

	rec = serve(public, http.MethodGet, "/api/shared/share-t-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "acct-1")
	assert.Contains(t, rec.Body.String(), `"screenshots":["final"]`)

	rec = serve(public, http.MethodGet, "/api/shared/share-t-1/screenshots/final", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = serve(item, http.MethodDelete, "/api/tests/t-1/share", "", "key-1")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = serve(public, http.MethodGet, "/api/shared/share-t-1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(item, http.MethodPut, "/api/tests/t-1/share", "", "key-1")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
