package models

import (
	"time"
)

// ScreenshotStep names the point in a run a screenshot was taken.
type ScreenshotStep string

const (
	ScreenshotFinal         ScreenshotStep = "final"
	ScreenshotConsentBefore ScreenshotStep = "consent_before"
	ScreenshotConsentAfter  ScreenshotStep = "consent_after"
)

// Valid reports whether s is a known step.
func (s ScreenshotStep) Valid() bool {
	switch s {
	case ScreenshotFinal, ScreenshotConsentBefore, ScreenshotConsentAfter:
		return true
	}
	return false
}

// Screenshot is a PNG captured during a run, stored apart from the report
// so report size stays bounded.
type Screenshot struct {
	TestID    string         `json:"testId" badgerhold:"index"`
	Step      ScreenshotStep `json:"step"`
	PNG       []byte         `json:"-"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ScreenshotKey is the storage key for a test's screenshot at a step.
func ScreenshotKey(testID string, step ScreenshotStep) string {
	return testID + ":" + string(step)
}
