package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tonimelisma/healthsync/internal/platform"
)

// Validation range constants.
const (
	minTimeout         = 1 * time.Second
	minProbeInterval   = 1 * time.Second
	minBatchSize       = 1
	minParallelBatches = 1
	maxParallelBatches = 16
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateClient(&cfg.Client)...)
	errs = append(errs, validateUpload(&cfg.Upload)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if _, err := platform.ParseEnvironment(s.Environment); err != nil {
		errs = append(errs, fmt.Errorf("environment: %w", err))
	}

	if s.Host != "" {
		env, err := platform.ParseEnvironment(s.Host)
		if err != nil || !env.IsCustom() {
			errs = append(errs, fmt.Errorf("host: must be an http(s) URL, got %q", s.Host))
		}
	}

	errs = append(errs, validateDurationMin("timeout", s.Timeout, minTimeout)...)
	errs = append(errs, validateDurationMin("probe_interval", s.ProbeInterval, minProbeInterval)...)

	return errs
}

var validDataSetTypes = map[string]bool{
	string(platform.DataSetTypeContinuous): true,
	string(platform.DataSetTypeNormal):     true,
}

func validateClient(c *ClientConfig) []error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, errors.New("name: must not be empty"))
	}

	if c.Version == "" {
		errs = append(errs, errors.New("version: must not be empty"))
	}

	if !validDataSetTypes[c.DataSetType] {
		errs = append(errs, fmt.Errorf("data_set_type: must be one of continuous, normal; got %q", c.DataSetType))
	}

	if _, err := platform.ParseDeduplicator(c.Deduplicator); err != nil {
		errs = append(errs, fmt.Errorf("deduplicator: %w", err))
	}

	return errs
}

func validateUpload(u *UploadConfig) []error {
	var errs []error

	if u.BatchSize < minBatchSize || u.BatchSize > platform.DefaultMaxBatchSize {
		errs = append(errs, fmt.Errorf("batch_size: must be between %d and %d, got %d",
			minBatchSize, platform.DefaultMaxBatchSize, u.BatchSize))
	}

	if u.ParallelBatches < minParallelBatches || u.ParallelBatches > maxParallelBatches {
		errs = append(errs, fmt.Errorf("parallel_batches: must be between %d and %d, got %d",
			minParallelBatches, maxParallelBatches, u.ParallelBatches))
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
