package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, ":8443", cfg.Relay.ListenAddr)
	assert.EqualValues(t, 10, cfg.Relay.KEPRateLimit)
	assert.EqualValues(t, 60, cfg.Relay.DataRateLimit)
	assert.EqualValues(t, 120_000, cfg.Crypto.FreshnessWindowMs)
	assert.EqualValues(t, 100*1024*1024, cfg.Crypto.MaxFileSizeBytes)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoadFromFileMissingReturnsError(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("RELAY_TEST_DSN", "postgres://example")
	assert.Equal(t, "postgres://example", SubstituteEnvVars("${RELAY_TEST_DSN}"))
	assert.Equal(t, "fallback", SubstituteEnvVars("${RELAY_TEST_UNSET:fallback}"))
}

func TestApplyEnvironmentOverrides(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	t.Setenv("RELAY_LISTEN_ADDR", ":9999")
	applyEnvironmentOverrides(cfg)
	assert.Equal(t, ":9999", cfg.Relay.ListenAddr)
}
