package stream

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildStreamURL derives the websocket endpoint from the server base URL:
// http maps to ws, https to wss, and the stream path is appended.
func BuildStreamURL(baseURL string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("server URL must start with http:// or https://")
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/stream"
	return parsed.String(), nil
}
