// Package tokenfile persists the logged-in session between CLI invocations.
// A session file stores the session alongside cached account metadata
// (email, full name) so status commands work without a round trip.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"

	"github.com/tonimelisma/healthsync/internal/platform"
)

// FilePerms restricts session files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the session directory.
const DirPerms = 0o700

// Metadata keys cached next to the session.
const (
	MetaEmail    = "email"
	MetaFullName = "full_name"
	MetaSavedAt  = "saved_at"
)

// File is the on-disk format for session files.
type File struct {
	Session *platform.Session `json:"session"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Load reads a saved session file from disk. Returns the session and any
// cached metadata. Returns (nil, nil, nil) if the file does not exist.
func Load(path string) (*platform.Session, map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Session == nil || tf.Session.Token == "" {
		return nil, nil, fmt.Errorf("tokenfile: %s missing session (re-login required)", path)
	}

	if _, err := platform.ParseEnvironment(string(tf.Session.Environment)); err != nil {
		return nil, nil, fmt.Errorf("tokenfile: %s: %w", path, err)
	}

	return tf.Session, tf.Meta, nil
}

// ReadMeta reads just the metadata from a session file without validating
// the session. Returns (nil, nil) if the file does not exist.
func ReadMeta(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var parsed struct {
		Meta map[string]string `json:"meta"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	return parsed.Meta, nil
}

// Save writes a session file to disk atomically (write-to-temp + rename)
// with 0600 permissions. Never logs token values.
func Save(path string, sess *platform.Session, meta map[string]string) error {
	if sess == nil || sess.Token == "" {
		return errors.New("tokenfile: refusing to save an empty session")
	}

	tf := File{Session: sess, Meta: meta}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	// Clean up temp file on any error path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush before rename so a crash cannot leave a partial file in place.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// LoadAndMergeMeta reads the current session file, merges new metadata keys
// (new keys overwrite existing), and saves. Returns an error if the file
// does not exist.
func LoadAndMergeMeta(path string, meta map[string]string) error {
	sess, existingMeta, err := Load(path)
	if err != nil {
		return fmt.Errorf("tokenfile: reading session for metadata update: %w", err)
	}

	if sess == nil {
		return fmt.Errorf("tokenfile: no session file at %s", path)
	}

	if existingMeta == nil {
		existingMeta = make(map[string]string, len(meta))
	}

	maps.Copy(existingMeta, meta)

	return Save(path, sess, existingMeta)
}

// Remove deletes the session file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}
