package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "HEALTHSYNC_CONFIG"
	EnvEnvironment = "HEALTHSYNC_ENVIRONMENT"
	EnvTokenPath   = "HEALTHSYNC_TOKEN_PATH"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // HEALTHSYNC_CONFIG: override config file path
	Environment string // HEALTHSYNC_ENVIRONMENT: named environment or base URL
	TokenPath   string // HEALTHSYNC_TOKEN_PATH: session file location
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		Environment: os.Getenv(EnvEnvironment),
		TokenPath:   os.Getenv(EnvTokenPath),
	}
}
