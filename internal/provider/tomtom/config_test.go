package tomtom_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/haulplan/haulplan/internal/provider/tomtom"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("TOMTOM_API_KEY", " abc123 ")
	t.Setenv("TOMTOM_BASE_URL", "http://localhost:9999")
	t.Setenv("TOMTOM_TIMEOUT", "3s")

	cfg := tomtom.ConfigFromEnv()

	assert.Equal(t, "abc123", cfg.APIKey)
	assert.Equal(t, "http://localhost:9999", cfg.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("TOMTOM_API_KEY", "")
	t.Setenv("TOMTOM_BASE_URL", "")
	t.Setenv("TOMTOM_TIMEOUT", "soon")

	cfg := tomtom.ConfigFromEnv()

	assert.Equal(t, tomtom.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, tomtom.DefaultTimeout, cfg.Timeout)
	assert.True(t, tomtom.IsPlaceholderKey(cfg.APIKey))
}

func TestIsPlaceholderKey(t *testing.T) {
	assert.True(t, tomtom.IsPlaceholderKey(""))
	assert.True(t, tomtom.IsPlaceholderKey("your_api_key_here"))
	assert.True(t, tomtom.IsPlaceholderKey(" ChangeMe "))
	assert.False(t, tomtom.IsPlaceholderKey("k3yV4lue"))
}
