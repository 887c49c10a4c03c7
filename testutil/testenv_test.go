package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("HEALTHSYNC_DOTENV_A", "")
	t.Setenv("HEALTHSYNC_DOTENV_B", "from-env")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(`
# comment
HEALTHSYNC_DOTENV_A = "quoted value"
HEALTHSYNC_DOTENV_B=from-file
not a pair
`), 0o600))

	LoadDotEnv(path)

	assert.Equal(t, "quoted value", os.Getenv("HEALTHSYNC_DOTENV_A"))
	assert.Equal(t, "from-env", os.Getenv("HEALTHSYNC_DOTENV_B"), "environment wins")
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	LoadDotEnv(filepath.Join(t.TempDir(), "none"))
}

func TestRequireAccount_Allowed(t *testing.T) {
	t.Setenv(EnvTestEmail, "qa@example.com")
	t.Setenv(EnvTestPassword, "pw")
	t.Setenv(EnvTestEnvironment, "staging")
	t.Setenv(EnvAllowedAccounts, "other@example.com, QA@example.com")

	assert.Equal(t, Account{Email: "qa@example.com", Password: "pw", Environment: "staging"}, RequireAccount())
}

func TestFindModuleRoot(t *testing.T) {
	root := FindModuleRoot("fallback")
	assert.FileExists(t, filepath.Join(root, "go.mod"))
}
