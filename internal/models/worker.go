// -----------------------------------------------------------------------
// Worker control protocol payloads
// -----------------------------------------------------------------------

package models

import (
	"fmt"

	"github.com/ternarybob/linkprobe/internal/services/classifier"
)

// RunRequest is the body of POST /run on the browser worker.
type RunRequest struct {
	ID   string   `json:"id" validate:"required"`
	URL  string   `json:"url" validate:"required"`
	Kind TestKind `json:"kind" validate:"required"`
}

// Validate checks required fields, that url is absolute http(s), then the
// kind. The browser is never pointed at file:, chrome: or other schemes.
func (r *RunRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: id, url, and kind are required", ErrMalformedRequest)
	}
	if _, ok := classifier.ParseURL(r.URL); !ok {
		return fmt.Errorf("%w: url must be an absolute http or https URL", ErrMalformedRequest)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, r.Kind)
	}
	return nil
}

// RawHop is a redirect hop with the full response header set.
type RawHop struct {
	URL        string            `json:"url"`
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
}

// RawCmpResult is the worker's unbounded consent interaction output.
type RawCmpResult struct {
	CmpResult
	ScreenshotBefore []byte `json:"screenshotBefore,omitempty"`
	ScreenshotAfter  []byte `json:"screenshotAfter,omitempty"`
}

// RunResult is the worker response for a run. Screenshots travel as base64.
type RunResult struct {
	ID                    string        `json:"id"`
	Success               bool          `json:"success"`
	Error                 string        `json:"error,omitempty"`
	RedirectChain         []RawHop      `json:"redirectChain"`
	FinalURL              string        `json:"finalUrl"`
	Cookies               []Cookie      `json:"cookies"`
	NetworkDetected       string        `json:"networkDetected"`
	ParameterPreservation bool          `json:"parameterPreservation"`
	Screenshot            []byte        `json:"screenshot,omitempty"`
	Timing                Timing        `json:"timing"`
	CmpResult             *RawCmpResult `json:"cmpResult,omitempty"`
}

// FailureResponse is returned by the worker with a non-200 status.
type FailureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
