package ai

import (
	"testing"
	"time"

	"github.com/hrygo/autotask/internal/profile"
)

// TestNewConfigFromProfile_Defaults tests that an empty profile keeps the defaults.
func TestNewConfigFromProfile_Defaults(t *testing.T) {
	cfg := NewConfigFromProfile(&profile.Profile{})

	if cfg.BaseURL != "https://app.chipp.ai/api/v1" {
		t.Errorf("Expected default BaseURL, got %s", cfg.BaseURL)
	}
	if cfg.Model != "hackathonassistant-70377" {
		t.Errorf("Expected default Model, got %s", cfg.Model)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Expected Timeout=30s, got %s", cfg.Timeout)
	}
}

// TestNewConfigFromProfile_Overrides tests profile overrides.
func TestNewConfigFromProfile_Overrides(t *testing.T) {
	cfg := NewConfigFromProfile(&profile.Profile{
		CompletionBaseURL: "http://localhost:9999/v1",
		CompletionModel:   "custom",
	})

	if cfg.BaseURL != "http://localhost:9999/v1" {
		t.Errorf("Expected BaseURL override, got %s", cfg.BaseURL)
	}
	if cfg.Model != "custom" {
		t.Errorf("Expected Model=custom, got %s", cfg.Model)
	}
}

// TestValidate tests configuration validation.
func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *Config
		expectError bool
	}{
		{
			name:        "Default config",
			cfg:         DefaultConfig(),
			expectError: false,
		},
		{
			name:        "Missing base URL",
			cfg:         &Config{Model: "m", Timeout: time.Second},
			expectError: true,
		},
		{
			name:        "Missing model",
			cfg:         &Config{BaseURL: "u", Timeout: time.Second},
			expectError: true,
		},
		{
			name:        "Zero timeout",
			cfg:         &Config{BaseURL: "u", Model: "m"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.expectError {
				t.Errorf("Validate() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

// TestValidateAPIKey tests the client-held key shape check.
func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		key         string
		expectError bool
	}{
		{"live_abc", false},
		{"  live_abc  ", false},
		{"", true},
		{"sk-abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.expectError {
				t.Errorf("ValidateAPIKey(%q) error = %v, expectError %v", tt.key, err, tt.expectError)
			}
		})
	}
}
