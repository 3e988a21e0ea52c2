// -----------------------------------------------------------------------
// Detection rules - network patterns, consent selectors, vendor fingerprints
// -----------------------------------------------------------------------

package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// NetworkRule maps an affiliate network name to a URL pattern.
// Patterns are matched case-insensitively.
type NetworkRule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// VendorFingerprint identifies a consent platform from rendered HTML.
type VendorFingerprint struct {
	Name        string   `yaml:"name"`
	Selectors   []string `yaml:"selectors"`    // CSS selectors for vendor markup
	ScriptHints []string `yaml:"script_hints"` // Substrings of <script src> values
}

// Tables is the immutable set of detection data injected into the
// classifier, consent engine and report builder.
type Tables struct {
	Networks         []NetworkRule       `yaml:"networks"`
	ConsentSelectors []string            `yaml:"consent_selectors"`
	AcceptSelectors  []string            `yaml:"accept_selectors"`
	AcceptTexts      []string            `yaml:"accept_texts"`
	Vendors          []VendorFingerprint `yaml:"vendors"`
	HeaderAllowList  []string            `yaml:"header_allow_list"`
}

// Default returns the built-in tables. Each call returns a fresh copy.
func Default() *Tables {
	return &Tables{
		Networks: []NetworkRule{
			{Name: "awin", Pattern: `awin1\.com|awltovhc\.com|zenaps\.com`},
			{Name: "cj", Pattern: `(dpbolvw|jdoqocy|tkqlhce|anrdoezrs|kqzyfj)\.(net|com)`},
			{Name: "rakuten", Pattern: `click\.linksynergy\.com|linksynergy\.walmart`},
			{Name: "impact", Pattern: `impact\.com|\.sjv\.io|\.evyy\.net`},
			{Name: "shareasale", Pattern: `shareasale\.com|shrsl\.com`},
			{Name: "amazon", Pattern: `amazon\.[a-z.]+.*[?&]tag=|amzn\.to`},
		},
		ConsentSelectors: []string{
			"#onetrust-banner-sdk",
			"#CybotCookiebotDialog",
			"#didomi-notice",
			".qc-cmp2-container",
			"#usercentrics-root",
			"#truste-consent-track",
			"div[id^='sp_message_container']",
			".cky-consent-container",
			"#iubenda-cs-banner",
			".cmplz-cookiebanner",
			"#cookie-law-info-bar",
			"#cookie-banner",
			".cookie-banner",
			"#cookieConsent",
			".cookie-consent",
			"[aria-label*='cookie' i]",
		},
		AcceptSelectors: []string{
			"#onetrust-accept-btn-handler",
			"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll",
			"#CybotCookiebotDialogBodyButtonAccept",
			"#didomi-notice-agree-button",
			".qc-cmp2-summary-buttons button[mode='primary']",
			"[data-testid='uc-accept-all-button']",
			"#truste-consent-button",
			".cky-btn-accept",
			".iubenda-cs-accept-btn",
			".cmplz-accept",
			"#cookie_action_close_header",
			"button[id*='accept' i]",
			"button[class*='accept' i]",
		},
		AcceptTexts: []string{
			"accept all",
			"accept all cookies",
			"accept cookies",
			"allow all",
			"i agree",
			"agree",
			"accept",
			"got it",
			"alle akzeptieren",
			"tout accepter",
			"aceptar todo",
		},
		Vendors: []VendorFingerprint{
			{Name: "OneTrust", Selectors: []string{"#onetrust-consent-sdk", "#onetrust-banner-sdk"}, ScriptHints: []string{"cdn.cookielaw.org", "otSDKStub"}},
			{Name: "Cookiebot", Selectors: []string{"#CybotCookiebotDialog"}, ScriptHints: []string{"consent.cookiebot.com"}},
			{Name: "Didomi", Selectors: []string{"#didomi-host", "#didomi-notice"}, ScriptHints: []string{"sdk.privacy-center.org"}},
			{Name: "Quantcast", Selectors: []string{".qc-cmp2-container"}, ScriptHints: []string{"cmp.quantcast.com", "quantcast.mgr.consensu.org"}},
			{Name: "Usercentrics", Selectors: []string{"#usercentrics-root", "#usercentrics-cmp-ui"}, ScriptHints: []string{"usercentrics.eu"}},
			{Name: "TrustArc", Selectors: []string{"#truste-consent-track", "#teconsent"}, ScriptHints: []string{"consent.trustarc.com"}},
			{Name: "Sourcepoint", Selectors: []string{"div[id^='sp_message_container']"}, ScriptHints: []string{"privacy-mgmt.com", "sourcepoint"}},
			{Name: "CookieYes", Selectors: []string{".cky-consent-container"}, ScriptHints: []string{"cdn-cookieyes.com"}},
			{Name: "Iubenda", Selectors: []string{"#iubenda-cs-banner"}, ScriptHints: []string{"cdn.iubenda.com"}},
			{Name: "Complianz", Selectors: []string{".cmplz-cookiebanner"}, ScriptHints: []string{"complianz"}},
		},
		HeaderAllowList: []string{"server", "location", "set-cookie"},
	}
}

// LoadFile reads a YAML rules file over the defaults. Sections absent from
// the file keep their default values. An empty path returns the defaults.
func LoadFile(path string) (*Tables, error) {
	tables := Default()
	if path == "" {
		return tables, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	var override Tables
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	if len(override.Networks) > 0 {
		tables.Networks = override.Networks
	}
	if len(override.ConsentSelectors) > 0 {
		tables.ConsentSelectors = override.ConsentSelectors
	}
	if len(override.AcceptSelectors) > 0 {
		tables.AcceptSelectors = override.AcceptSelectors
	}
	if len(override.AcceptTexts) > 0 {
		tables.AcceptTexts = override.AcceptTexts
	}
	if len(override.Vendors) > 0 {
		tables.Vendors = override.Vendors
	}
	if len(override.HeaderAllowList) > 0 {
		tables.HeaderAllowList = override.HeaderAllowList
	}

	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", path, err)
	}
	return tables, nil
}

// Validate checks that every network pattern compiles and names are unique.
func (t *Tables) Validate() error {
	seen := make(map[string]bool, len(t.Networks))
	for _, rule := range t.Networks {
		if strings.TrimSpace(rule.Name) == "" {
			return fmt.Errorf("network rule with empty name")
		}
		if seen[rule.Name] {
			return fmt.Errorf("duplicate network rule: %s", rule.Name)
		}
		seen[rule.Name] = true
		if _, err := regexp.Compile("(?i)" + rule.Pattern); err != nil {
			return fmt.Errorf("network %s: %w", rule.Name, err)
		}
	}
	return nil
}
