package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/healthsync/internal/config"
	"github.com/tonimelisma/healthsync/internal/platform"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath  string
	flagEnvironment string
	flagTokenPath   string
	flagJSON        bool
	flagVerbose     bool
	flagQuiet       bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Resolved

// skipConfigCommands lists commands that must run even when the config file
// is missing or broken. Matched on CommandPath().
var skipConfigCommands = map[string]bool{
	"healthsync config init": true,
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "healthsync",
		Short:   "Health data upload client",
		Long:    "Log in to the health data service and upload or delete device records.",
		Version: version,
		// Silence Cobra's default error/usage printing, we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipConfigCommands[cmd.CommandPath()] {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagEnvironment, "env", "", "environment name or base URL")
	cmd.PersistentFlags().StringVar(&flagTokenPath, "token-file", "", "session file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newDatasetsCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer override
// chain and stores the result in resolvedCfg for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	// Only explicitly set flags override lower layers.
	if cmd.Flags().Changed("env") {
		cli.Environment = &flagEnvironment
	}

	if cmd.Flags().Changed("token-file") {
		cli.TokenPath = &flagTokenPath
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// logOutput receives every log record; tests swap it for a buffer.
var logOutput io.Writer = os.Stderr

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	terminal := false
	if f, ok := logOutput.(*os.File); ok {
		terminal = isTerminal(f)
	}

	return newLogger(logOutput, terminal)
}

func newLogger(w io.Writer, terminal bool) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = resolvedCfg.Logging.LogFormat
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !terminal) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// defaultHTTPTimeout applies when no configuration has been loaded.
const defaultHTTPTimeout = 60 * time.Second

// newHTTPClient returns the client every command shares. The configured
// timeout is the only deadline applied to a request.
func newHTTPClient() *http.Client {
	if resolvedCfg != nil {
		return &http.Client{Timeout: resolvedCfg.Timeout}
	}

	return &http.Client{Timeout: defaultHTTPTimeout}
}

// userAgent identifies this build and the configured client to the service.
func userAgent() string {
	name := config.DefaultConfig().Client.Name
	if resolvedCfg != nil {
		name = resolvedCfg.Client.Name
	}

	return fmt.Sprintf("healthsync/%s (%s)", version, name)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", hint(err))
	os.Exit(1)
}

// hint decorates errors the user can act on.
func hint(err error) error {
	switch {
	case errors.Is(err, platform.ErrNotLoggedIn), errors.Is(err, platform.ErrUnauthorized):
		return fmt.Errorf("%w (run 'healthsync login')", err)
	case errors.Is(err, platform.ErrAlreadyLoggedIn):
		return fmt.Errorf("%w (run 'healthsync logout' first)", err)
	case errors.Is(err, platform.ErrOffline):
		return fmt.Errorf("%w (the service host is unreachable)", err)
	default:
		return err
	}
}
