// -----------------------------------------------------------------------
// Consent Interaction Engine - banner detection, accept click, cookie diff
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/models"
	"github.com/ternarybob/linkprobe/internal/rules"
)

// Page is the subset of browser operations the consent engine needs.
type Page interface {
	// FirstVisible returns the index of the first selector matching a
	// visible element, or -1.
	FirstVisible(ctx context.Context, selectors []string) (int, error)
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) (bool, error)
	// ClickText clicks the first visible button or link whose text matches
	// one of texts, in texts order. It returns the index matched, or -1.
	ClickText(ctx context.Context, texts []string) (int, error)
	Cookies(ctx context.Context) ([]models.Cookie, error)
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
}

// ConsentEngine detects a consent banner and attempts to accept it.
type ConsentEngine struct {
	tables *rules.Tables
	vendor *VendorDetector
	settle time.Duration
	logger arbor.ILogger
}

// NewConsentEngine creates an engine over the given tables.
func NewConsentEngine(tables *rules.Tables, settle time.Duration, logger arbor.ILogger) *ConsentEngine {
	return &ConsentEngine{
		tables: tables,
		vendor: NewVendorDetector(tables.Vendors),
		settle: settle,
		logger: logger,
	}
}

// FindVisibleSelector returns the first selector that matches a visible
// element. A failed probe counts as not found unless ctx is done.
func (e *ConsentEngine) FindVisibleSelector(ctx context.Context, page Page, selectors []string) (string, bool, error) {
	if len(selectors) == 0 {
		return "", false, nil
	}
	idx, err := page.FirstVisible(ctx, selectors)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		e.logger.Debug().Err(err).Msg("Selector probe failed, treating as not found")
		return "", false, nil
	}
	if idx < 0 || idx >= len(selectors) {
		return "", false, nil
	}
	return selectors[idx], true, nil
}

// Run performs detection, baseline capture, acceptance and post capture in
// that order. It must be called after navigation has completed.
func (e *ConsentEngine) Run(ctx context.Context, page Page) (*models.RawCmpResult, error) {
	result := &models.RawCmpResult{}

	selector, detected, err := e.FindVisibleSelector(ctx, page, e.tables.ConsentSelectors)
	if err != nil {
		return nil, err
	}
	result.Detected = detected
	if detected {
		result.Selector = &selector
	}

	if html, err := page.HTML(ctx); err == nil {
		if vendor, ok := e.vendor.Detect(html); ok {
			result.Vendor = &vendor
		}
	} else if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	before, err := page.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies before consent: %w", err)
	}
	result.ScreenshotBefore, err = page.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot before consent: %w", err)
	}

	if detected {
		result.AcceptAttempted = true
		clicked, err := e.accept(ctx, page)
		if err != nil {
			return nil, err
		}
		result.ConsentAccepted = clicked
		if clicked {
			if err := sleepContext(ctx, e.settle); err != nil {
				return nil, err
			}
		}
	}

	after, err := page.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies after consent: %w", err)
	}
	result.ScreenshotAfter, err = page.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot after consent: %w", err)
	}

	result.CookiesBefore = len(before)
	result.CookiesAfter = len(after)
	result.NewCookies = DiffCookies(before, after)

	e.logger.Debug().
		Bool("detected", result.Detected).
		Bool("accepted", result.ConsentAccepted).
		Int("cookies_before", result.CookiesBefore).
		Int("cookies_after", result.CookiesAfter).
		Msg("Consent interaction finished")

	return result, nil
}

// accept clicks the first visible accept control, trying selectors before
// text matchers.
func (e *ConsentEngine) accept(ctx context.Context, page Page) (bool, error) {
	selector, found, err := e.FindVisibleSelector(ctx, page, e.tables.AcceptSelectors)
	if err != nil {
		return false, err
	}
	if found {
		clicked, err := page.Click(ctx, selector)
		if err == nil && clicked {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		e.logger.Debug().Err(err).Str("selector", selector).Msg("Accept selector click did not land")
	}

	if len(e.tables.AcceptTexts) == 0 {
		return false, nil
	}
	idx, err := page.ClickText(ctx, e.tables.AcceptTexts)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		e.logger.Debug().Err(err).Msg("Accept text probe failed")
		return false, nil
	}
	return idx >= 0, nil
}

// DiffCookies returns cookies in after whose name is absent from before.
func DiffCookies(before, after []models.Cookie) []models.ConsentCookie {
	seen := make(map[string]bool, len(before))
	for _, c := range before {
		seen[c.Name] = true
	}

	diff := make([]models.ConsentCookie, 0)
	for _, c := range after {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		diff = append(diff, models.ConsentCookie{
			Name:     c.Name,
			Domain:   c.Domain,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return diff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
