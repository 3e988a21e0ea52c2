package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Hop is one request/response pair in a redirect chain.
type Hop struct {
	URL        string            `json:"url"`
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
}

// Cookie is a browser cookie as stored in a report.
type Cookie struct {
	Name     string  `json:"name"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Value    string  `json:"value"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
	Expires  float64 `json:"expires"` // Unix seconds, -1 for session cookies
}

// ConsentCookie is a cookie that appeared after a consent interaction.
// Values are omitted.
type ConsentCookie struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	HTTPOnly bool   `json:"httpOnly"`
	Secure   bool   `json:"secure"`
}

// Timing records when a worker run started and finished.
type Timing struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	DurationMs int64     `json:"durationMs"`
}

// NewTiming builds a Timing from a start and end instant.
func NewTiming(start, end time.Time) Timing {
	return Timing{Start: start, End: end, DurationMs: end.Sub(start).Milliseconds()}
}

// CmpResult is the outcome of the consent interaction for a cmp_test.
type CmpResult struct {
	Detected        bool            `json:"detected"`
	Selector        *string         `json:"selector"`
	Vendor          *string         `json:"vendor"`
	AcceptAttempted bool            `json:"acceptAttempted"`
	ConsentAccepted bool            `json:"consentAccepted"`
	CookiesBefore   int             `json:"cookiesBefore"`
	CookiesAfter    int             `json:"cookiesAfter"`
	NewCookies      []ConsentCookie `json:"newCookiesAfterConsent"`
}

// ReportBase holds the fields shared by every report kind.
type ReportBase struct {
	RedirectChain         []Hop    `json:"redirectChain"`
	FinalURL              string   `json:"finalUrl"`
	NetworkDetected       string   `json:"networkDetected"`
	ParameterPreservation bool     `json:"parameterPreservation"`
	Timing                Timing   `json:"timing"`
	Cookies               []Cookie `json:"cookies"`
}

// QuickCheckReport is the report for a quick_check test.
type QuickCheckReport struct {
	ReportBase
}

// CmpTestReport is the report for a cmp_test test.
type CmpTestReport struct {
	ReportBase
	CmpResult CmpResult `json:"cmpResult"`
}

// Report is a tagged union over the per-kind report shapes. Exactly one of
// QuickCheck or CmpTest is set, matching Kind.
type Report struct {
	Kind       TestKind
	QuickCheck *QuickCheckReport
	CmpTest    *CmpTestReport
}

// Base returns the shared report fields, or nil for an empty report.
func (r *Report) Base() *ReportBase {
	if r == nil {
		return nil
	}
	switch r.Kind {
	case TestKindQuickCheck:
		if r.QuickCheck != nil {
			return &r.QuickCheck.ReportBase
		}
	case TestKindCmpTest:
		if r.CmpTest != nil {
			return &r.CmpTest.ReportBase
		}
	}
	return nil
}

// Validate checks that the active variant matches Kind.
func (r *Report) Validate() error {
	if r == nil {
		return fmt.Errorf("report is nil")
	}
	switch r.Kind {
	case TestKindQuickCheck:
		if r.QuickCheck == nil || r.CmpTest != nil {
			return fmt.Errorf("quick_check report must carry only the quick check variant")
		}
	case TestKindCmpTest:
		if r.CmpTest == nil || r.QuickCheck != nil {
			return fmt.Errorf("cmp_test report must carry only the cmp test variant")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, r.Kind)
	}
	return nil
}

// MarshalJSON flattens the active variant next to its kind tag.
func (r Report) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case TestKindQuickCheck:
		return json.Marshal(struct {
			Kind TestKind `json:"kind"`
			*QuickCheckReport
		}{r.Kind, r.QuickCheck})
	case TestKindCmpTest:
		return json.Marshal(struct {
			Kind TestKind `json:"kind"`
			*CmpTestReport
		}{r.Kind, r.CmpTest})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, r.Kind)
	}
}

// UnmarshalJSON reads the kind tag and decodes the matching variant.
func (r *Report) UnmarshalJSON(data []byte) error {
	var tag struct {
		Kind TestKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}

	*r = Report{Kind: tag.Kind}
	switch tag.Kind {
	case TestKindQuickCheck:
		r.QuickCheck = &QuickCheckReport{}
		return json.Unmarshal(data, r.QuickCheck)
	case TestKindCmpTest:
		r.CmpTest = &CmpTestReport{}
		return json.Unmarshal(data, r.CmpTest)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, tag.Kind)
	}
}
