//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/healthsync/testutil"
)

var (
	binaryPath string
	account    testutil.Account
	workDir    string
)

func TestMain(m *testing.M) {
	root := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(root, ".env"))
	account = testutil.RequireAccount()

	tmpDir, err := os.MkdirTemp("", "healthsync-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	workDir = tmpDir
	binaryPath = filepath.Join(tmpDir, "healthsync")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = root
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// runCLI runs the binary isolated from the user's own config and session.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	full := append([]string{
		"--config", filepath.Join(workDir, "config.toml"),
		"--token-file", filepath.Join(workDir, "session.json"),
		"--env", account.Environment,
	}, args...)

	cmd := exec.Command(binaryPath, full...)
	cmd.Env = append(os.Environ(), "HEALTHSYNC_PASSWORD="+account.Password)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

func mustRunCLI(t *testing.T, args ...string) string {
	t.Helper()

	stdout, stderr, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("CLI command %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout, stderr)
	}

	return stdout
}

func TestE2E_RoundTrip(t *testing.T) {
	records := filepath.Join(t.TempDir(), "records.json")
	stamped := filepath.Join(t.TempDir(), "stamped.json")

	now := time.Now().UTC().Truncate(time.Minute)
	items := make([]string, 0, 3)

	for i := range 3 {
		items = append(items, fmt.Sprintf(`{"type":"cbg","time":%q,"units":"mg/dL","value":%d}`,
			now.Add(-time.Duration(i)*5*time.Minute).Format(time.RFC3339), 100+i))
	}

	require.NoError(t, os.WriteFile(records, []byte("["+strings.Join(items, ",")+"]"), 0o600))

	t.Cleanup(func() {
		_, _, _ = runCLI(t, "logout")
	})

	t.Run("login", func(t *testing.T) {
		mustRunCLI(t, "login", "--email", account.Email)
	})

	t.Run("whoami", func(t *testing.T) {
		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(mustRunCLI(t, "whoami", "--json")), &out))
		assert.NotEmpty(t, out["user_id"])
		assert.True(t, strings.EqualFold(account.Email, fmt.Sprint(out["email"])))
	})

	t.Run("resolve is idempotent", func(t *testing.T) {
		var first, second map[string]any
		require.NoError(t, json.Unmarshal([]byte(mustRunCLI(t, "resolve", "--json")), &first))
		require.NoError(t, json.Unmarshal([]byte(mustRunCLI(t, "resolve", "--json")), &second))
		assert.NotEmpty(t, first["upload_id"])
		assert.Equal(t, first["upload_id"], second["upload_id"])
	})

	t.Run("upload", func(t *testing.T) {
		var sum map[string]any
		require.NoError(t, json.Unmarshal([]byte(mustRunCLI(t, "upload", records, "--json", "-o", stamped)), &sum))
		assert.EqualValues(t, 3, sum["uploaded"])
	})

	t.Run("delete", func(t *testing.T) {
		var sum map[string]any
		require.NoError(t, json.Unmarshal([]byte(mustRunCLI(t, "delete", stamped, "--json")), &sum))
		assert.EqualValues(t, 3, sum["deleted"])
	})

	t.Run("refresh", func(t *testing.T) {
		mustRunCLI(t, "refresh")
	})

	t.Run("logout", func(t *testing.T) {
		mustRunCLI(t, "logout")
		assert.NoFileExists(t, filepath.Join(workDir, "session.json"))

		_, _, err := runCLI(t, "whoami")
		assert.Error(t, err)
	})
}
