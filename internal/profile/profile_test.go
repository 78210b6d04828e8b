package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileValidateDefaults(t *testing.T) {
	p := &Profile{Mode: "dev", Port: 8080}
	require.NoError(t, p.Validate())

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"Secret falls back in dev", devSecret, p.Secret},
		{"LogLevel default", "info", p.LogLevel},
		{"GoogleIssuer default", "https://accounts.google.com", p.GoogleIssuer},
		{"CompletionBaseURL default", "https://app.chipp.ai/api/v1", p.CompletionBaseURL},
		{"CompletionModel default", "hackathonassistant-70377", p.CompletionModel},
		{"ClickUpBaseURL default", "https://api.clickup.com/api/v2", p.ClickUpBaseURL},
		{"InstanceURL derived", "http://localhost:8080", p.InstanceURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.actual)
		})
	}

	assert.Equal(t, 1000, p.CacheCapacity)
	assert.Equal(t, 24*time.Hour, p.CacheTTL)
	assert.Equal(t, 5, p.MaxItems)
}

func TestProfileValidateMode(t *testing.T) {
	t.Run("unknown mode becomes demo", func(t *testing.T) {
		p := &Profile{Mode: "staging"}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
		assert.True(t, p.IsDev())
	})

	t.Run("prod requires secret", func(t *testing.T) {
		p := &Profile{Mode: "prod"}
		assert.Error(t, p.Validate())
	})

	t.Run("prod with secret", func(t *testing.T) {
		p := &Profile{Mode: "prod", Secret: "s3cret", InstanceURL: "https://autotask.example.com/"}
		require.NoError(t, p.Validate())
		assert.False(t, p.IsDev())
		assert.Equal(t, "https://autotask.example.com/auth/google/callback", p.GoogleRedirectURL())
		assert.Equal(t, "https://autotask.example.com/api/workspace/callback", p.ClickUpRedirectURL())
	})

	t.Run("invalid port", func(t *testing.T) {
		p := &Profile{Mode: "dev", Port: 70000}
		assert.Error(t, p.Validate())
	})
}
