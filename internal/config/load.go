package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tonimelisma/healthsync/internal/platform"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolved is the effective configuration after every override layer, with
// string settings parsed into the types the rest of the program uses.
type Resolved struct {
	ConfigPath    string
	TokenPath     string
	Environment   platform.Environment
	Timeout       time.Duration
	ProbeInterval time.Duration
	Client        ClientConfig
	DataSetType   platform.DataSetType
	Deduplicator  platform.Deduplicator
	Upload        UploadConfig
	Logging       LoggingConfig
}

// Dataset returns the upload destination this client resolves against.
func (r *Resolved) Dataset() platform.Dataset {
	return platform.Dataset{
		ClientName:    r.Client.Name,
		ClientVersion: r.Client.Version,
		DataSetType:   r.DataSetType,
		Deduplicator:  r.Deduplicator,
	}
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// Config path: CLI > env > default.
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	envName := cfg.Server.Environment
	if cfg.Server.Host != "" {
		envName = cfg.Server.Host
	}

	if env.Environment != "" {
		envName = env.Environment
	}

	if cli.Environment != nil && *cli.Environment != "" {
		envName = *cli.Environment
	}

	tokenPath := DefaultTokenPath()
	if env.TokenPath != "" {
		tokenPath = env.TokenPath
	}

	if cli.TokenPath != nil && *cli.TokenPath != "" {
		tokenPath = *cli.TokenPath
	}

	return resolve(cfg, cfgPath, envName, tokenPath)
}

// resolve parses the validated string settings. Validate has already
// rejected bad file values, so errors here come from env or CLI overrides.
func resolve(cfg *Config, cfgPath, envName, tokenPath string) (*Resolved, error) {
	environment, err := platform.ParseEnvironment(envName)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if tokenPath == "" {
		return nil, errors.New("config: cannot determine session file location; set " + EnvTokenPath)
	}

	timeout, err := time.ParseDuration(cfg.Server.Timeout)
	if err != nil {
		return nil, fmt.Errorf("config: timeout: %w", err)
	}

	probe, err := time.ParseDuration(cfg.Server.ProbeInterval)
	if err != nil {
		return nil, fmt.Errorf("config: probe_interval: %w", err)
	}

	dedup, err := platform.ParseDeduplicator(cfg.Client.Deduplicator)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &Resolved{
		ConfigPath:    cfgPath,
		TokenPath:     tokenPath,
		Environment:   environment,
		Timeout:       timeout,
		ProbeInterval: probe,
		Client:        cfg.Client,
		DataSetType:   platform.DataSetType(cfg.Client.DataSetType),
		Deduplicator:  dedup,
		Upload:        cfg.Upload,
		Logging:       cfg.Logging,
	}, nil
}
