package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvEnvironment, "staging")
	t.Setenv(EnvTokenPath, "/custom/session.json")

	overrides := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", overrides.ConfigPath)
	assert.Equal(t, "staging", overrides.Environment)
	assert.Equal(t, "/custom/session.json", overrides.TokenPath)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvEnvironment, "")
	t.Setenv(EnvTokenPath, "")

	assert.Equal(t, EnvOverrides{}, ReadEnvOverrides())
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "HEALTHSYNC_CONFIG", EnvConfig)
	assert.Equal(t, "HEALTHSYNC_ENVIRONMENT", EnvEnvironment)
	assert.Equal(t, "HEALTHSYNC_TOKEN_PATH", EnvTokenPath)
}
