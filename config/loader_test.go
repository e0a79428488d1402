package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaultYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), []byte("environment: test\n"), 0644))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test"})
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
}

func TestLoadWithNoFilesReturnsDefaults(t *testing.T) {
	cfg, err := Load(LoaderOptions{ConfigDir: t.TempDir(), Environment: "test"})
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, ":8443", cfg.Relay.ListenAddr)
}

func TestLoadRejectsInvalidStorageDriver(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), []byte("storage:\n  driver: sqlite\n"), 0644))

	_, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test"})
	assert.Error(t, err)
}

func TestLoadSkipValidationAllowsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), []byte("storage:\n  driver: sqlite\n"), 0644))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test", SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}
