package settings

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultCacheLimit = 100
	MaxCacheLimit     = 2000

	// PauseForeverSentinel marks an indefinite notification pause.
	PauseForeverSentinel int64 = 0

	PauseMode15m     = "15m"
	PauseMode1h      = "1h"
	PauseModeCustom  = "custom"
	PauseModeForever = "forever"
)

// Settings is the persisted client configuration.
type Settings struct {
	BaseURL         string `json:"base_url"`
	Token           string `json:"token,omitempty"`
	MinPriority     int64  `json:"min_priority"`
	CacheLimit      int    `json:"cache_limit"`
	PauseUntil      *int64 `json:"pause_until,omitempty"`
	PauseMode       string `json:"pause_mode,omitempty"`
	QuietHoursStart *int   `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   *int   `json:"quiet_hours_end,omitempty"`
}

// Defaults returns the settings used before anything is saved.
func Defaults() Settings {
	return Settings{CacheLimit: DefaultCacheLimit}
}

// View is the settings projection handed to observers. The token itself
// never leaves the store.
type View struct {
	BaseURL         string `json:"base_url"`
	HasToken        bool   `json:"has_token"`
	MinPriority     int64  `json:"min_priority"`
	CacheLimit      int    `json:"cache_limit"`
	PauseUntil      *int64 `json:"pause_until,omitempty"`
	PauseMode       string `json:"pause_mode,omitempty"`
	QuietHoursStart *int   `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   *int   `json:"quiet_hours_end,omitempty"`
}

// ViewOf projects stored settings for external consumption.
func ViewOf(s Settings) View {
	return View{
		BaseURL:         s.BaseURL,
		HasToken:        strings.TrimSpace(s.Token) != "",
		MinPriority:     s.MinPriority,
		CacheLimit:      NormalizeCacheLimit(s.CacheLimit),
		PauseUntil:      s.PauseUntil,
		PauseMode:       s.PauseMode,
		QuietHoursStart: s.QuietHoursStart,
		QuietHoursEnd:   s.QuietHoursEnd,
	}
}

// NormalizeBaseURL validates and canonicalizes the server base URL.
func NormalizeBaseURL(input string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(input), "/")
	if trimmed == "" {
		return "", fmt.Errorf("server URL is required")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("server URL must start with http:// or https://")
	}
	return trimmed, nil
}

// NormalizeCacheLimit clamps the cache limit to the supported range.
func NormalizeCacheLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxCacheLimit {
		return MaxCacheLimit
	}
	return limit
}

// ClampPriority bounds the minimum notification priority.
func ClampPriority(p int64) int64 {
	if p < 0 {
		return 0
	}
	if p > 10 {
		return 10
	}
	return p
}

// PauseActive reports whether notifications are paused at the given time.
func PauseActive(pauseUntil *int64, now int64) bool {
	if pauseUntil == nil {
		return false
	}
	return *pauseUntil == PauseForeverSentinel || now < *pauseUntil
}

// InQuietHours reports whether hour (0..23) falls within the configured
// quiet range. The range may wrap past midnight; equal bounds mean always.
func InQuietHours(start, end *int, hour int) bool {
	if start == nil || end == nil {
		return false
	}
	s, e := *start%24, *end%24
	if s == e {
		return true
	}
	if s < e {
		return hour >= s && hour < e
	}
	return hour >= s || hour < e
}
