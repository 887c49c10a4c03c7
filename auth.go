package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/healthsync/internal/platform"
	"github.com/tonimelisma/healthsync/internal/tokenfile"
)

// envPassword supplies the login password non-interactively.
const envPassword = "HEALTHSYNC_PASSWORD"

var flagEmail string

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password and save the session",
		Long: `Log in with email and password and save the session.

The password is read from $HEALTHSYNC_PASSWORD, or from the first line of
standard input when the variable is unset.`,
		RunE: runLogin,
	}

	cmd.Flags().StringVar(&flagEmail, "email", "", "account email address")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session on the server and remove the saved session",
		RunE:  runLogout,
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the saved session token for a fresh one",
		RunE:  runRefresh,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the logged-in account",
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	svc, err := NewService(ctx, resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	// A saved session makes Login fail with ErrAlreadyLoggedIn.
	if _, err := svc.Restore(); err != nil {
		if !errors.Is(err, platform.ErrNotLoggedIn) {
			logger.Warn("ignoring unreadable session file", slog.String("error", err.Error()))
		}

		svc.Persist()
	}

	sess, err := svc.Sessions.Login(ctx, platform.Credentials{Email: flagEmail, Password: password}, resolvedCfg.Environment)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	logger.Info("session saved",
		slog.String("path", resolvedCfg.TokenPath),
		slog.String("user_id", sess.UserID),
	)
	statusf("Logged in as %s.\n", flagEmail)

	return nil
}

// readPassword prefers the environment and falls back to one line of r.
func readPassword(r io.Reader) (string, error) {
	if p := os.Getenv(envPassword); p != "" {
		return p, nil
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("no password given; set %s or pipe it on stdin", envPassword)
	}

	return line, nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	svc, err := NewService(ctx, resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if _, err := svc.Restore(); err != nil {
		if errors.Is(err, platform.ErrNotLoggedIn) {
			statusf("Not logged in.\n")
			return nil
		}

		// An unreadable session file cannot be logged out remotely; drop it.
		logger.Warn("discarding unreadable session file", slog.String("error", err.Error()))

		return tokenfile.Remove(resolvedCfg.TokenPath)
	}

	// The local session is gone even when the server call fails.
	if err := svc.Sessions.Logout(ctx, nil); err != nil {
		statusf("Logged out locally; server logout failed: %v\n", err)
		return nil
	}

	statusf("Logged out.\n")

	return nil
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	svc, err := NewService(ctx, resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	sess, err := svc.Restore()
	if err != nil {
		return err
	}

	fresh, err := svc.Sessions.Refresh(ctx, sess)

	var fetchErr *platform.UserFetchError
	if errors.As(err, &fetchErr) {
		statusf("Session refreshed; could not fetch account details: %v\n", fetchErr.Err)
		return nil
	}

	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	if u := svc.Sessions.User(); u != nil {
		if err := tokenfile.LoadAndMergeMeta(resolvedCfg.TokenPath, map[string]string{
			tokenfile.MetaEmail:    u.Email,
			tokenfile.MetaFullName: u.FullName,
		}); err != nil {
			logger.Warn("updating session metadata", slog.String("error", err.Error()))
		}
	}

	logger.Debug("refreshed", slog.String("user_id", fresh.UserID))
	statusf("Session refreshed.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	Environment string `json:"environment"`
	BaseURL     string `json:"base_url"`
}

// runWhoami asks the server who the saved session belongs to. With the
// server unreachable it falls back to the cached account details.
func runWhoami(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	svc, err := NewService(ctx, resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	sess, err := svc.Restore()
	if err != nil {
		return err
	}

	out := whoamiOutput{
		UserID:      sess.UserID,
		Environment: string(sess.Environment),
		BaseURL:     sess.Environment.BaseURL(),
	}

	user, err := svc.Sessions.FetchUser(ctx, sess)

	switch {
	case err == nil:
		out.Email, out.FullName = user.Email, user.FullName
	case errors.Is(err, platform.ErrOffline), errors.Is(err, platform.ErrNetwork):
		meta, metaErr := tokenfile.ReadMeta(resolvedCfg.TokenPath)
		if metaErr != nil {
			return metaErr
		}

		logger.Debug("server unreachable, using cached account details")
		out.Email, out.FullName = meta[tokenfile.MetaEmail], meta[tokenfile.MetaFullName]
	default:
		return fmt.Errorf("fetching user: %w", err)
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), out)
	}

	printWhoamiText(cmd.OutOrStdout(), out)

	return nil
}

func printWhoamiText(w io.Writer, out whoamiOutput) {
	if out.FullName != "" {
		fmt.Fprintf(w, "User:        %s (%s)\n", out.FullName, out.Email)
	} else {
		fmt.Fprintf(w, "User:        %s\n", out.Email)
	}

	fmt.Fprintf(w, "ID:          %s\n", out.UserID)
	fmt.Fprintf(w, "Environment: %s (%s)\n", out.Environment, out.BaseURL)
}
