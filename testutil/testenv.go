// Package testutil provides shared environment helpers for E2E tests, which
// run the built binary against a live, non-production environment. It
// depends only on stdlib so that E2E tests (which cannot import internal/)
// can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by E2E tests.
const (
	EnvTestEmail       = "HEALTHSYNC_TEST_EMAIL"
	EnvTestPassword    = "HEALTHSYNC_TEST_PASSWORD"
	EnvTestEnvironment = "HEALTHSYNC_TEST_ENVIRONMENT"
	EnvAllowedAccounts = "HEALTHSYNC_ALLOWED_TEST_ACCOUNTS"
)

// Account is the live test account E2E tests log in with.
type Account struct {
	Email       string
	Password    string
	Environment string
}

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// RequireAccount returns the configured test account, crashing the process
// when it is incomplete, points at production, or is not allowlisted. E2E
// tests upload and delete data, so they must never run against a real user.
func RequireAccount() Account {
	acct := Account{
		Email:       os.Getenv(EnvTestEmail),
		Password:    os.Getenv(EnvTestPassword),
		Environment: os.Getenv(EnvTestEnvironment),
	}

	if acct.Email == "" || acct.Password == "" || acct.Environment == "" {
		fatalf("FATAL: set %s, %s and %s (in .env or the environment)",
			EnvTestEmail, EnvTestPassword, EnvTestEnvironment)
	}

	if strings.EqualFold(acct.Environment, "production") || strings.Contains(acct.Environment, "api.tidepool.org") {
		fatalf("FATAL: %s=%q: E2E tests never run against production", EnvTestEnvironment, acct.Environment)
	}

	allowlist := os.Getenv(EnvAllowedAccounts)
	for _, a := range strings.Split(allowlist, ",") {
		if strings.EqualFold(strings.TrimSpace(a), acct.Email) {
			return acct
		}
	}

	fatalf("FATAL: %s=%q is not in %s=%q", EnvTestEmail, acct.Email, EnvAllowedAccounts, allowlist)

	return Account{}
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
