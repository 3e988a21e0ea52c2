// -----------------------------------------------------------------------
// Report Builder - bounds a worker result into the persisted report shape
// -----------------------------------------------------------------------

package report

import (
	"fmt"
	"strings"

	"github.com/ternarybob/linkprobe/internal/models"
)

// Limits are the hard caps applied to every report.
type Limits struct {
	MaxCookies      int      // Cookies kept per report
	MaxCookieValue  int      // Characters kept per cookie value
	MaxHops         int      // Redirect hops kept
	MaxHeaderValue  int      // Characters kept per allow-listed header value
	HeaderAllowList []string // Response headers kept per hop, case-insensitive
}

// DefaultLimits returns the standard caps.
func DefaultLimits() Limits {
	return Limits{
		MaxCookies:      100,
		MaxCookieValue:  200,
		MaxHops:         50,
		MaxHeaderValue:  2048,
		HeaderAllowList: []string{"server", "location", "set-cookie"},
	}
}

// Builder trims raw worker output. It holds no mutable state and is safe
// for concurrent use.
type Builder struct {
	limits Limits
	allow  map[string]bool
}

// NewBuilder creates a builder. Non-positive caps fall back to defaults.
func NewBuilder(limits Limits) *Builder {
	defaults := DefaultLimits()
	if limits.MaxCookies <= 0 {
		limits.MaxCookies = defaults.MaxCookies
	}
	if limits.MaxCookieValue <= 0 {
		limits.MaxCookieValue = defaults.MaxCookieValue
	}
	if limits.MaxHops <= 0 {
		limits.MaxHops = defaults.MaxHops
	}
	if limits.MaxHeaderValue <= 0 {
		limits.MaxHeaderValue = defaults.MaxHeaderValue
	}
	if len(limits.HeaderAllowList) == 0 {
		limits.HeaderAllowList = defaults.HeaderAllowList
	}

	allow := make(map[string]bool, len(limits.HeaderAllowList))
	for _, h := range limits.HeaderAllowList {
		allow[strings.ToLower(h)] = true
	}
	return &Builder{limits: limits, allow: allow}
}

// Limits returns the effective caps.
func (b *Builder) Limits() Limits {
	return b.limits
}

// Build converts a successful worker result into a Report of the given kind.
// An error means the result does not fit the kind. Oversized input never
// errors; it is truncated.
func (b *Builder) Build(kind models.TestKind, raw *models.RunResult) (*models.Report, error) {
	if raw == nil {
		return nil, fmt.Errorf("worker result is nil")
	}

	base := models.ReportBase{
		RedirectChain:         b.trimChain(raw.RedirectChain),
		FinalURL:              raw.FinalURL,
		NetworkDetected:       raw.NetworkDetected,
		ParameterPreservation: raw.ParameterPreservation,
		Timing:                raw.Timing,
		Cookies:               b.trimCookies(raw.Cookies),
	}

	var rpt *models.Report
	switch kind {
	case models.TestKindQuickCheck:
		rpt = &models.Report{Kind: kind, QuickCheck: &models.QuickCheckReport{ReportBase: base}}
	case models.TestKindCmpTest:
		if raw.CmpResult == nil {
			return nil, fmt.Errorf("cmp_test result is missing cmpResult")
		}
		cmp := raw.CmpResult.CmpResult
		if len(cmp.NewCookies) > b.limits.MaxCookies {
			cmp.NewCookies = append([]models.ConsentCookie(nil), cmp.NewCookies[:b.limits.MaxCookies]...)
		}
		rpt = &models.Report{Kind: kind, CmpTest: &models.CmpTestReport{ReportBase: base, CmpResult: cmp}}
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedKind, kind)
	}

	if err := rpt.Validate(); err != nil {
		return nil, err
	}
	return rpt, nil
}

func (b *Builder) trimChain(chain []models.RawHop) []models.Hop {
	n := len(chain)
	if n > b.limits.MaxHops {
		n = b.limits.MaxHops
	}

	hops := make([]models.Hop, 0, n)
	for _, raw := range chain[:n] {
		headers := make(map[string]string)
		for name, value := range raw.Headers {
			key := strings.ToLower(name)
			if b.allow[key] {
				headers[key] = truncate(value, b.limits.MaxHeaderValue)
			}
		}
		hops = append(hops, models.Hop{URL: raw.URL, StatusCode: raw.StatusCode, Headers: headers})
	}
	return hops
}

func (b *Builder) trimCookies(cookies []models.Cookie) []models.Cookie {
	n := len(cookies)
	if n > b.limits.MaxCookies {
		n = b.limits.MaxCookies
	}

	out := make([]models.Cookie, 0, n)
	for _, c := range cookies[:n] {
		c.Value = truncate(c.Value, b.limits.MaxCookieValue)
		out = append(out, c)
	}
	return out
}

// truncate keeps at most max characters of s.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
