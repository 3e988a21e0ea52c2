package models

import (
	"time"
)

// TestStatusEvent is published whenever a Test changes status.
type TestStatusEvent struct {
	TestID    string     `json:"testId"`
	AccountID string     `json:"accountId"`
	Kind      TestKind   `json:"kind"`
	Status    TestStatus `json:"status"`
	Network   string     `json:"networkDetected,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewTestStatusEvent snapshots t for publication.
func NewTestStatusEvent(t *Test) TestStatusEvent {
	ev := TestStatusEvent{
		TestID:    t.ID,
		AccountID: t.AccountID,
		Kind:      t.Kind,
		Status:    t.Status,
		Error:     t.ErrorMessage(),
		Timestamp: time.Now().UTC(),
	}
	if t.Network != nil {
		ev.Network = *t.Network
	}
	return ev
}

// SweepResult reports what one staleness sweep changed.
type SweepResult struct {
	Failed       []string  `json:"failed"`       // Running tests failed and refunded
	Redispatched []string  `json:"redispatched"` // Queued tests handed back to dispatch
	Cutoff       time.Time `json:"cutoff"`
}
