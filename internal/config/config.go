// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for healthsync. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Client  ClientConfig  `toml:"client"`
	Upload  UploadConfig  `toml:"upload"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig selects the service deployment and bounds each request.
// A non-empty Host (an http(s) base URL) takes precedence over Environment.
type ServerConfig struct {
	Environment   string `toml:"environment"`
	Host          string `toml:"host"`
	Timeout       string `toml:"timeout"`
	ProbeInterval string `toml:"probe_interval"`
}

// ClientConfig identifies this uploader to the service. Name, version and
// deduplicator together pick the dataset records are uploaded into.
type ClientConfig struct {
	Name         string `toml:"name"`
	Version      string `toml:"version"`
	DataSetType  string `toml:"data_set_type"`
	Deduplicator string `toml:"deduplicator"`
}

// UploadConfig controls how record files are split and sent.
type UploadConfig struct {
	BatchSize       int  `toml:"batch_size"`
	ParallelBatches int  `toml:"parallel_batches"`
	RetryRejected   bool `toml:"retry_rejected"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set".
type CLIOverrides struct {
	ConfigPath  string  // --config flag (empty = use default)
	Environment *string // --env flag
	TokenPath   *string // --token-file flag
}
