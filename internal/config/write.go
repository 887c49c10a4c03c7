package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// configFilePermissions is the standard permission mode for config files.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// ErrConfigExists is returned by WriteTemplate when the file is already there.
var ErrConfigExists = errors.New("config: file already exists")

// configTemplate is the content written by "config init". Every setting is
// present as a commented-out default so users can discover options without
// reading docs.
const configTemplate = `# healthsync configuration
# Uncomment and modify to override defaults.

[server]
# Named environment (dev, staging, integration, production) or a base URL.
# environment = "production"
# Custom API host; overrides environment when set.
# host = ""
# Per-request timeout.
# timeout = "60s"
# How often reachability is re-checked during long uploads.
# probe_interval = "30s"

[client]
# Identity of this uploader; together these select the dataset.
# name = "org.tidepool.healthsync"
# version = "1.0.0"
# data_set_type = "continuous"
# deduplicator = "org.tidepool.deduplicator.dataset.delete.origin"

[upload]
# Records per request (max 1000).
# batch_size = 500
# Batches sent concurrently.
# parallel_batches = 4
# Resend a rejected batch once without the items the server refused.
# retry_rejected = true

[logging]
# debug, info, warn, error
# log_level = "info"
# auto, text, json
# log_format = "auto"
`

// WriteTemplate creates a commented default config file at path. It never
// overwrites an existing file.
func WriteTemplate(path string, logger *slog.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	logger.Info("creating config file", slog.String("path", path))

	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it into place, so readers never see a partial file.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("config: creating directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("config: creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("config: writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("config: closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("config: setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("config: renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
