package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/models"
	"github.com/ternarybob/linkprobe/internal/rules"
	"github.com/ternarybob/linkprobe/internal/services/classifier"
)

const consentLandingHTML = `<!doctype html>
<html>
<head><title>Landing</title></head>
<body>
<h1>Product</h1>
<div id="onetrust-consent-sdk">
  <div id="onetrust-banner-sdk" style="position:fixed;bottom:0;left:0;width:100%;height:120px;background:#eee">
    <p>We use cookies.</p>
    <button id="onetrust-accept-btn-handler" style="width:160px;height:40px"
      onclick="document.cookie='OptanonAlertBoxClosed=1; path=/'; document.getElementById('onetrust-banner-sdk').style.display='none';">
      Accept All Cookies
    </button>
  </div>
</div>
</body>
</html>`

// findChrome returns a local Chrome or Chromium binary, skipping the test
// when none is installed.
func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no chrome or chromium binary on PATH")
	return ""
}

func newRedirectSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/go", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/track?"+r.URL.RawQuery, http.StatusFound)
	})
	mux.HandleFunc("/track", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/landing?"+r.URL.RawQuery+"&utm_source=test", http.StatusFound)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "site_session", Value: "abc", Path: "/"})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, consentLandingHTML)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestChromeCmpRunAgainstLocalSite(t *testing.T) {
	execPath := findChrome(t)
	srv := newRedirectSite(t)
	logger := arbor.NewLogger()

	cls, err := classifier.New(rules.Default().Networks)
	require.NoError(t, err)

	factory := NewChromeSessionFactory(SessionConfig{
		Headless:          true,
		NoSandbox:         true,
		ExecPath:          execPath,
		ViewportWidth:     1280,
		ViewportHeight:    800,
		NavigationTimeout: 20 * time.Second,
	}, logger)
	consent := NewConsentEngine(rules.Default(), 500*time.Millisecond, logger)
	x := NewExecutor(ExecutorConfig{ExecutionTimeout: 60 * time.Second, MaxSessions: 1}, factory, cls, consent, logger)

	start := srv.URL + "/go?ref=aff123"
	result, err := x.Run(context.Background(), &models.RunRequest{ID: "chrome-1", URL: start, Kind: models.TestKindCmpTest})
	require.NoError(t, err)
	require.True(t, result.Success)

	require.Len(t, result.RedirectChain, 3)
	assert.Equal(t, start, result.RedirectChain[0].URL)
	assert.Equal(t, http.StatusFound, result.RedirectChain[0].StatusCode)
	assert.Equal(t, srv.URL+"/track?ref=aff123", result.RedirectChain[1].URL)
	assert.Equal(t, http.StatusFound, result.RedirectChain[1].StatusCode)
	assert.Equal(t, srv.URL+"/landing?ref=aff123&utm_source=test", result.RedirectChain[2].URL)
	assert.Equal(t, http.StatusOK, result.RedirectChain[2].StatusCode)

	assert.Equal(t, srv.URL+"/landing?ref=aff123&utm_source=test", result.FinalURL)
	assert.True(t, result.ParameterPreservation)
	assert.NotEmpty(t, result.Screenshot)

	cmp := result.CmpResult
	require.NotNil(t, cmp)
	assert.True(t, cmp.Detected)
	require.NotNil(t, cmp.Selector)
	assert.Equal(t, "#onetrust-banner-sdk", *cmp.Selector)
	require.NotNil(t, cmp.Vendor)
	assert.Equal(t, "OneTrust", *cmp.Vendor)
	assert.True(t, cmp.AcceptAttempted)
	assert.True(t, cmp.ConsentAccepted)
	assert.Equal(t, 1, cmp.CookiesBefore)
	assert.Equal(t, 2, cmp.CookiesAfter)
	require.Len(t, cmp.NewCookies, 1)
	assert.Equal(t, "OptanonAlertBoxClosed", cmp.NewCookies[0].Name)
	assert.NotEmpty(t, cmp.ScreenshotBefore)
	assert.NotEmpty(t, cmp.ScreenshotAfter)
}
