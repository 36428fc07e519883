package utils

import "net/url"

// Truncate shortens s to at most max runes, appending an ellipsis marker
// when anything was cut.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// RedactURL masks the query string of a URL so tokens never reach logs.
func RedactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "<invalid-url>"
	}
	if parsed.RawQuery != "" {
		parsed.RawQuery = "token=***"
	}
	return parsed.String()
}
