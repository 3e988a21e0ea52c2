package models

import "errors"

// Caller-facing errors raised at creation time. These never create a Test.
var (
	ErrInvalidURL          = errors.New("Invalid URL")
	ErrUnauthenticated     = errors.New("Not authenticated")
	ErrProfileNotFound     = errors.New("Profile not found")
	ErrAccountNotFound     = errors.New("Organization not found")
	ErrInsufficientCredits = errors.New("Insufficient credits")
)

// Execution-time errors. Each terminates a Test as failed with a refund.
var (
	ErrWorkerUnreachable     = errors.New("browser worker unreachable")
	ErrWorkerMisconfigured   = errors.New("BROWSER_WORKER_URL not configured")
	ErrWorkerReportedFailure = errors.New("browser worker reported failure")
	ErrNavigationFailed      = errors.New("navigation failed")
	ErrExecutionTimeout      = errors.New("Test timed out")
	ErrTaskStale             = errors.New("Test timed out (no response from worker)")
)

// Protocol and lookup errors.
var (
	ErrMalformedRequest  = errors.New("malformed request")
	ErrUnsupportedKind   = errors.New("Unsupported kind")
	ErrUnauthorized      = errors.New("Unauthorized")
	ErrTestNotFound      = errors.New("Test not found")
	ErrAlreadyTerminal   = errors.New("test already in a terminal state")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrProfileExists     = errors.New("profile already exists")
	ErrScreenshotMissing = errors.New("Screenshot not found")
	ErrInvalidAmount     = errors.New("invalid credit amount")
)
