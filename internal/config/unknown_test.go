package config

import (
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeUnknown(t *testing.T, content string) error {
	t.Helper()

	md, err := toml.Decode(content, DefaultConfig())
	require.NoError(t, err)

	return checkUnknownKeys(&md)
}

func TestCheckUnknownKeys_None(t *testing.T) {
	assert.NoError(t, decodeUnknown(t, "[server]\nenvironment = \"dev\"\n"))
}

func TestCheckUnknownKeys_KeySuggestion(t *testing.T) {
	err := decodeUnknown(t, "[server]\nenviroment = \"dev\"\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown key "enviroment" in [server], did you mean "environment"?`)
}

func TestCheckUnknownKeys_SectionSuggestion(t *testing.T) {
	err := decodeUnknown(t, "[uplaod]\nbatch_size = 1\nparallel_batches = 2\n")
	require.Error(t, err)
	assert.Equal(t, "config: unknown section [uplaod], did you mean [upload]?", err.Error(),
		"reported once for the whole section")
}

func TestCheckUnknownKeys_NoSuggestion(t *testing.T) {
	err := decodeUnknown(t, "[logging]\ncompletely_different = true\n")
	require.Error(t, err)
	assert.Equal(t, `config: unknown key "completely_different" in [logging]`, err.Error())
}

func TestCheckUnknownKeys_TopLevelKey(t *testing.T) {
	err := decodeUnknown(t, "verbose = true\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown section [verbose]")
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"timeout", "timeout", 0},
		{"batch_sise", "batch_size", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}
