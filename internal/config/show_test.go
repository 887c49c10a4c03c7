package config

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	r, err := Resolve(EnvOverrides{
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		TokenPath:  "/tmp/session.json",
	}, CLIOverrides{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(r, &buf))

	out := buf.String()
	assert.Contains(t, out, "[server]")
	assert.Contains(t, out, `base_url       = "https://api.tidepool.org"`)
	assert.Contains(t, out, `deduplicator  = "org.tidepool.deduplicator.dataset.delete.origin"`)
	assert.Contains(t, out, "batch_size       = 500")
	assert.Contains(t, out, "# Session file: /tmp/session.json")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRenderEffective_WriteError(t *testing.T) {
	r, err := Resolve(EnvOverrides{
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		TokenPath:  "/tmp/session.json",
	}, CLIOverrides{})
	require.NoError(t, err)

	assert.EqualError(t, RenderEffective(r, failingWriter{}), "disk full")
}
