package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WritesDefaultFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")

	cfg, err := Load(dir)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err, "default config.yaml not written")

	assert.Equal(t, dir, cfg.ConfigDir)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 48*time.Hour, cfg.Window)
	assert.Equal(t, 10, cfg.RecentLearnings)
	assert.Equal(t, 3, cfg.MinSessions)
	assert.InDelta(t, 0.8, cfg.MinSuccessRate, 1e-9)
	assert.InDelta(t, 0.4, cfg.TokenWeight, 1e-9)
	assert.InDelta(t, 0.6, cfg.VectorWeight, 1e-9)
	assert.Equal(t, ProviderNone, cfg.EmbeddingProvider)
	assert.Equal(t, 5*time.Second, cfg.EmbeddingTimeout)
}

func TestLoad_KeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `data_dir: /tmp/flowstate-data
context:
  window_hours: 12
intelligence:
  min_sessions: 5
embedding:
  provider: ollama
  model: mxbai-embed-large
  timeout: 2s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/flowstate-data", cfg.DataDir)
	assert.Equal(t, 12*time.Hour, cfg.Window)
	assert.Equal(t, 5, cfg.MinSessions)
	assert.Equal(t, ProviderOllama, cfg.EmbeddingProvider)
	assert.Equal(t, "mxbai-embed-large", cfg.EmbeddingModel)
	assert.Equal(t, 2*time.Second, cfg.EmbeddingTimeout)

	raw, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, yaml, string(raw))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: warn\n"), 0o644))

	t.Setenv("FLOWSTATE_DATA_DIR", "/srv/flowstate")
	t.Setenv("FLOWSTATE_LOG_LEVEL", "debug")
	t.Setenv("FLOWSTATE_INTELLIGENCE_MIN_SESSIONS", "4")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/srv/flowstate", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.MinSessions)
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("embedding:\n  provider: magic\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.provider")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{EmbeddingProvider: ProviderNone, TokenWeight: 0.4, VectorWeight: 0.6, MinSuccessRate: 0.8, ConfidenceAlpha: 0.3}
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero weights", func(c *Config) { c.TokenWeight, c.VectorWeight = 0, 0 }, true},
		{"negative weight", func(c *Config) { c.TokenWeight = -0.1 }, true},
		{"success rate above one", func(c *Config) { c.MinSuccessRate = 1.5 }, true},
		{"zero alpha", func(c *Config) { c.ConfidenceAlpha = 0 }, true},
		{"alpha one", func(c *Config) { c.ConfidenceAlpha = 1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMemoryConfig(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	mc := cfg.MemoryConfig()
	assert.Equal(t, cfg.DataDir, mc.DataDir)
	assert.Equal(t, 48*time.Hour, mc.RecencyWindow)
	assert.Equal(t, 3, mc.Promotion.MinSessions)
	assert.InDelta(t, 0.3, mc.ConfidenceAlpha, 1e-9)
	assert.Equal(t, filepath.Join(cfg.DataDir, "vectors.db"), cfg.VectorPath())
}
