package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultEnvironment     = "production"
	defaultTimeout         = "60s"
	defaultProbeInterval   = "30s"
	defaultClientName      = "org.tidepool.healthsync"
	defaultClientVersion   = "1.0.0"
	defaultDataSetType     = "continuous"
	defaultDeduplicator    = "org.tidepool.deduplicator.dataset.delete.origin"
	defaultBatchSize       = 500
	defaultParallelBatches = 4
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Environment:   defaultEnvironment,
			Timeout:       defaultTimeout,
			ProbeInterval: defaultProbeInterval,
		},
		Client: ClientConfig{
			Name:         defaultClientName,
			Version:      defaultClientVersion,
			DataSetType:  defaultDataSetType,
			Deduplicator: defaultDeduplicator,
		},
		Upload: UploadConfig{
			BatchSize:       defaultBatchSize,
			ParallelBatches: defaultParallelBatches,
			RetryRejected:   true,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
