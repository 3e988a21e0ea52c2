// -----------------------------------------------------------------------
// Link Test - lifecycle record for one affiliate link check
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// TestKind selects which steps the browser worker runs for a test.
type TestKind string

const (
	TestKindQuickCheck TestKind = "quick_check"
	TestKindCmpTest    TestKind = "cmp_test"
)

// Valid reports whether k is a kind the worker can execute.
func (k TestKind) Valid() bool {
	return k == TestKindQuickCheck || k == TestKindCmpTest
}

// Price returns the fixed credit cost of a test of this kind.
func (k TestKind) Price() int {
	switch k {
	case TestKindQuickCheck:
		return 1
	case TestKindCmpTest:
		return 3
	default:
		return 0
	}
}

// TestStatus is the lifecycle state of a Test.
//
// State machine:
//
//	queued -> running -> {success, partial, failed}
//
// queued may also move straight to failed when dispatch cannot start
// (missing worker configuration). partial is reserved: no current path assigns it.
type TestStatus string

const (
	TestStatusQueued  TestStatus = "queued"
	TestStatusRunning TestStatus = "running"
	TestStatusSuccess TestStatus = "success"
	TestStatusPartial TestStatus = "partial"
	TestStatusFailed  TestStatus = "failed"
)

// Valid reports whether s is a known status.
func (s TestStatus) Valid() bool {
	return s.InFlight() || s.IsTerminal()
}

// IsTerminal returns true for success, partial and failed.
func (s TestStatus) IsTerminal() bool {
	return s == TestStatusSuccess || s == TestStatusPartial || s == TestStatusFailed
}

// InFlight returns true while the test has no recorded outcome.
func (s TestStatus) InFlight() bool {
	return s == TestStatusQueued || s == TestStatusRunning
}

// CanTransitionTo enforces forward-only movement through the state machine.
// A queued test can only start running; every outcome is reached from
// running.
func (s TestStatus) CanTransitionTo(next TestStatus) bool {
	switch s {
	case TestStatusQueued:
		return next == TestStatusRunning
	case TestStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// Test is one requested link check. Mutated only by the orchestrator.
type Test struct {
	ID             string     `json:"id"`
	AccountID      string     `json:"accountId" badgerhold:"index"`
	ProfileID      string     `json:"profileId"`
	URL            string     `json:"url"`
	Kind           TestKind   `json:"kind"`
	Status         TestStatus `json:"status" badgerhold:"index"`
	CreditsCharged int        `json:"creditsCharged"` // Fixed from Kind at creation
	Network        *string    `json:"networkDetected"`
	Report         *Report    `json:"report"`
	Error          *string    `json:"error"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt"` // Set iff Status is terminal

	// Public share link. The id is kept when sharing is turned off so a
	// re-enabled link keeps working.
	ShareID      string `json:"shareId,omitempty" badgerhold:"index"`
	ShareEnabled bool   `json:"shareEnabled"`
}

// SharedTest is the public view of a shared Test. Account and profile
// references are left out.
type SharedTest struct {
	URL         string           `json:"url"`
	Kind        TestKind         `json:"kind"`
	Status      TestStatus       `json:"status"`
	Network     *string          `json:"networkDetected"`
	Report      *Report          `json:"report"`
	Error       *string          `json:"error"`
	CreatedAt   time.Time        `json:"createdAt"`
	CompletedAt *time.Time       `json:"completedAt"`
	Screenshots []ScreenshotStep `json:"screenshots"`
}

// NewSharedTest builds the public view of t.
func NewSharedTest(t *Test, screenshots []ScreenshotStep) *SharedTest {
	if screenshots == nil {
		screenshots = []ScreenshotStep{}
	}
	return &SharedTest{
		URL:         t.URL,
		Kind:        t.Kind,
		Status:      t.Status,
		Network:     t.Network,
		Report:      t.Report,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
		Screenshots: screenshots,
	}
}

// ErrorMessage returns the recorded failure reason or an empty string.
func (t *Test) ErrorMessage() string {
	if t.Error == nil {
		return ""
	}
	return *t.Error
}

// Completion carries the terminal outcome applied to a running Test.
type Completion struct {
	Report  *Report
	Network string
	// Partial is an extension point for runs whose outcome could only be
	// partly verified. Nothing sets it yet.
	Partial bool
}

// StringPtr returns a pointer to s, or nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
