package browser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/linkprobe/internal/rules"
)

// VendorDetector fingerprints the consent platform in rendered HTML.
type VendorDetector struct {
	vendors []rules.VendorFingerprint
}

// NewVendorDetector creates a detector over the fingerprint table.
func NewVendorDetector(vendors []rules.VendorFingerprint) *VendorDetector {
	return &VendorDetector{vendors: vendors}
}

// Detect returns the first vendor whose markup or script source appears in
// html.
func (d *VendorDetector) Detect(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}

	var scripts []string
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			scripts = append(scripts, strings.ToLower(src))
		}
	})

	for _, vendor := range d.vendors {
		for _, sel := range vendor.Selectors {
			if doc.Find(sel).Length() > 0 {
				return vendor.Name, true
			}
		}
		for _, hint := range vendor.ScriptHints {
			hint = strings.ToLower(hint)
			for _, src := range scripts {
				if strings.Contains(src, hint) {
					return vendor.Name, true
				}
			}
		}
	}
	return "", false
}
