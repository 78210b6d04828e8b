package ai

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/autotask/internal/profile"
	"github.com/hrygo/autotask/plugin/ai/timeout"
)

// APIKeyPrefix is the prefix of completion service keys.
const APIKeyPrefix = "live_"

// Config represents completion service configuration.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://app.chipp.ai/api/v1",
		Model:   "hackathonassistant-70377",
		Timeout: timeout.CompletionTimeout,
	}
}

// NewConfigFromProfile creates completion config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := DefaultConfig()
	if p.CompletionBaseURL != "" {
		cfg.BaseURL = p.CompletionBaseURL
	}
	if p.CompletionModel != "" {
		cfg.Model = p.CompletionModel
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("completion base URL is required")
	}
	if c.Model == "" {
		return errors.New("completion model is required")
	}
	if c.Timeout <= 0 {
		return errors.New("completion timeout must be positive")
	}
	return nil
}

// ValidateAPIKey checks the shape of a client-held completion key.
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key is required")
	}
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return errors.Errorf("API key must start with %q", APIKeyPrefix)
	}
	return nil
}
