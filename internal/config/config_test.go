// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Equal(t, 5, cfg.Agent.PollAttempts)
	assert.Equal(t, time.Second, cfg.Agent.PollInterval)
	assert.Equal(t, 2, cfg.Agent.SequenceAttempts)
	assert.Equal(t, 2, cfg.Agent.StuckThreshold)
	assert.Equal(t, 3, cfg.Agent.VisionThreshold)
	assert.Contains(t, cfg.Agent.SearchEngineMarkers, "google")
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "http://127.0.0.1:9222", cfg.Browser.CDPURL)
	assert.Equal(t, 50*time.Millisecond, cfg.Browser.TypeDelay)

	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max steps", func(c *Config) { c.Agent.MaxSteps = 0 }},
		{"zero poll attempts", func(c *Config) { c.Agent.PollAttempts = 0 }},
		{"zero sequence attempts", func(c *Config) { c.Agent.SequenceAttempts = 0 }},
		{"vision below stuck", func(c *Config) { c.Agent.VisionThreshold = 1 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "smoke-signals" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestResolveRunsDirDefault(t *testing.T) {
	cfg := NewDefaultConfig()
	dir, err := cfg.ResolveRunsDir()
	require.NoError(t, err)
	assert.Contains(t, dir, ".deskpilot")

	cfg.Runs.Dir = "/var/lib/deskpilot/runs"
	dir, err = cfg.ResolveRunsDir()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/deskpilot/runs", dir)
}
