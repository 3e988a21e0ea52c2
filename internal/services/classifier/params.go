package classifier

import (
	"net/url"
	"strings"
)

// ParseURL parses s as an absolute http or https URL.
func ParseURL(s string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if u.Host == "" {
		return nil, false
	}
	return u, true
}

// parseQuery splits the query of an absolute URL the way browsers do:
// pairs on '&', key and value on the first '='. Malformed escapes are kept
// as raw text instead of failing, so only an unparsable URL fails.
func parseQuery(s string) (url.Values, bool) {
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() {
		return nil, false
	}

	values := url.Values{}
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		values.Add(unescapeLenient(key), unescapeLenient(value))
	}
	return values, true
}

func unescapeLenient(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return strings.ReplaceAll(s, "+", " ")
}

// ParametersPreserved reports whether every query parameter on first is
// present on final with the same value. Extra parameters on final are
// allowed. Either URL failing to parse fails the check.
func ParametersPreserved(first, final string) bool {
	firstParams, ok := parseQuery(first)
	if !ok {
		return false
	}
	finalParams, ok := parseQuery(final)
	if !ok {
		return false
	}

	for key, values := range firstParams {
		if !finalParams.Has(key) {
			return false
		}
		want := finalParams.Get(key)
		for _, v := range values {
			if v != want {
				return false
			}
		}
	}
	return true
}
