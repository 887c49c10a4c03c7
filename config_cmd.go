package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/healthsync/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		RunE:  runConfigInit,
	}
}

// configShowOutput is the JSON schema for `config show --json`.
type configShowOutput struct {
	ConfigPath      string `json:"config_path"`
	TokenPath       string `json:"token_path"`
	Environment     string `json:"environment"`
	BaseURL         string `json:"base_url"`
	Timeout         string `json:"timeout"`
	ProbeInterval   string `json:"probe_interval"`
	ClientName      string `json:"client_name"`
	ClientVersion   string `json:"client_version"`
	DataSetType     string `json:"data_set_type"`
	Deduplicator    string `json:"deduplicator"`
	BatchSize       int    `json:"batch_size"`
	ParallelBatches int    `json:"parallel_batches"`
	RetryRejected   bool   `json:"retry_rejected"`
	LogLevel        string `json:"log_level"`
	LogFormat       string `json:"log_format"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if resolvedCfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	if flagJSON {
		r := resolvedCfg

		return printJSON(cmd.OutOrStdout(), configShowOutput{
			ConfigPath:      r.ConfigPath,
			TokenPath:       r.TokenPath,
			Environment:     string(r.Environment),
			BaseURL:         r.Environment.BaseURL(),
			Timeout:         r.Timeout.String(),
			ProbeInterval:   r.ProbeInterval.String(),
			ClientName:      r.Client.Name,
			ClientVersion:   r.Client.Version,
			DataSetType:     string(r.DataSetType),
			Deduplicator:    r.Deduplicator.String(),
			BatchSize:       r.Upload.BatchSize,
			ParallelBatches: r.Upload.ParallelBatches,
			RetryRejected:   r.Upload.RetryRejected,
			LogLevel:        r.Logging.LogLevel,
			LogFormat:       r.Logging.LogFormat,
		})
	}

	return config.RenderEffective(resolvedCfg, cmd.OutOrStdout())
}

// runConfigInit runs without loadConfig, so it resolves the target path
// from --config, then $HEALTHSYNC_CONFIG, then the platform default.
func runConfigInit(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if env := config.ReadEnvOverrides().ConfigPath; env != "" {
		path = env
	}

	if flagConfigPath != "" {
		path = flagConfigPath
	}

	if path == "" {
		return errors.New("cannot determine config file location; pass --config")
	}

	if err := config.WriteTemplate(path, buildLogger()); err != nil {
		return err
	}

	statusf("Wrote %s\n", path)

	return nil
}
