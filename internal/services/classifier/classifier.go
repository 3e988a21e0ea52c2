package classifier

import (
	"fmt"
	"regexp"

	"github.com/ternarybob/linkprobe/internal/rules"
)

// Unknown is returned when no network pattern matches.
const Unknown = "unknown"

type compiledRule struct {
	name    string
	pattern *regexp.Regexp
}

// Classifier maps observed URLs to an affiliate network name.
// It is safe for concurrent use.
type Classifier struct {
	rules []compiledRule
}

// New compiles the network table. Order is preserved and decides ties.
func New(table []rules.NetworkRule) (*Classifier, error) {
	c := &Classifier{rules: make([]compiledRule, 0, len(table))}
	for _, rule := range table {
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern for network %s: %w", rule.Name, err)
		}
		c.rules = append(c.rules, compiledRule{name: rule.Name, pattern: re})
	}
	return c, nil
}

// Classify returns the first network in table order whose pattern matches
// any of the URLs, or Unknown.
func (c *Classifier) Classify(urls []string) string {
	for _, rule := range c.rules {
		for _, u := range urls {
			if rule.pattern.MatchString(u) {
				return rule.name
			}
		}
	}
	return Unknown
}
