package tomtom

import (
	"os"
	"strings"
	"time"
)

// Config holds TomTom settings read from the environment.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// placeholderKeys are values shipped in sample env files that must be treated as unset.
var placeholderKeys = map[string]struct{}{
	"":                  {},
	"your_api_key_here": {},
	"changeme":          {},
}

// ConfigFromEnv reads TOMTOM_API_KEY, TOMTOM_BASE_URL and TOMTOM_TIMEOUT.
func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:  strings.TrimSpace(os.Getenv("TOMTOM_API_KEY")),
		BaseURL: os.Getenv("TOMTOM_BASE_URL"),
		Timeout: DefaultTimeout,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if v := os.Getenv("TOMTOM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	return cfg
}

// IsPlaceholderKey reports whether key is empty or a known sample value.
func IsPlaceholderKey(key string) bool {
	_, ok := placeholderKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}
