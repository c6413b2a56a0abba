// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// PrefsFileName is the per-user preference file under the reups user
// directory. It intentionally stays tiny: tag ordering and the user
// tag directory, nothing that belongs in the shared config file.
const PrefsFileName = "prefs.toml"

// Prefs is the per-user preference overlay.
type Prefs struct {
	// TagPreference replaces the configured tag order when set.
	TagPreference []string `toml:"tag_preference"`
	// UserTagDir replaces the default user tag directory when set.
	UserTagDir string `toml:"user_tag_dir"`
}

// applyPrefs merges the user preference file, when present, over cfg.
func applyPrefs(cfg *Config) error {
	userDir, err := UserDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(userDir, PrefsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var prefs Prefs
	if err := toml.Unmarshal(data, &prefs); err != nil {
		return fmt.Errorf("invalid preference file %s: %w", path, err)
	}
	if len(prefs.TagPreference) > 0 {
		cfg.TagPreference = prefs.TagPreference
	}
	if prefs.UserTagDir != "" {
		cfg.UserTagDir = prefs.UserTagDir
	}
	return nil
}

// WritePrefs saves the preference overlay to the user directory.
func WritePrefs(prefs *Prefs) (string, error) {
	userDir, err := UserDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create user directory: %w", err)
	}
	data, err := toml.Marshal(prefs)
	if err != nil {
		return "", err
	}
	path := filepath.Join(userDir, PrefsFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write preference file: %w", err)
	}
	return path, nil
}
