package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testHome = "/home/testuser"

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	path := DefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.True(t, strings.HasSuffix(path, filepath.Join(appName, "config.toml")))
}

func TestDefaultTokenPath_InDataDir(t *testing.T) {
	path := DefaultTokenPath()
	assert.Equal(t, filepath.Join(DefaultDataDir(), "session.json"), path)
}

func TestDefaultDirs_Linux(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("Linux-only test")
	}

	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")

	assert.Equal(t, "/xdg/config/healthsync", DefaultConfigDir())
	assert.Equal(t, "/xdg/data/healthsync", DefaultDataDir())
}

func TestDefaultDirs_MacOS(t *testing.T) {
	if runtime.GOOS != platformDarwin {
		t.Skip("macOS-only test")
	}

	assert.Contains(t, DefaultConfigDir(), "Library/Application Support")
	assert.Contains(t, DefaultDataDir(), "Library/Application Support")
}

func TestXDGDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	assert.Equal(t, filepath.Join(testHome, ".config", appName), xdgDir("XDG_CONFIG_HOME", testHome, ".config"))

	t.Setenv("XDG_CONFIG_HOME", "/custom")
	assert.Equal(t, filepath.Join("/custom", appName), xdgDir("XDG_CONFIG_HOME", testHome, ".config"))
}
