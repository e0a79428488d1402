package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvironmentDefaultsToDevelopment(t *testing.T) {
	t.Setenv("RELAY_ENV", "")
	t.Setenv("ENVIRONMENT", "")
	assert.Equal(t, "development", GetEnvironment())
}

func TestGetEnvironmentReadsRelayEnv(t *testing.T) {
	t.Setenv("RELAY_ENV", "Production")
	assert.Equal(t, "production", GetEnvironment())
	assert.True(t, IsProduction())
}

func TestIsDevelopmentAcceptsLocal(t *testing.T) {
	t.Setenv("RELAY_ENV", "local")
	assert.True(t, IsDevelopment())
}
