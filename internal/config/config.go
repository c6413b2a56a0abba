// SPDX-License-Identifier: MPL-2.0

// Package config loads the reups configuration: stack locations, tag
// preferences, and cache placement. The config file is CUE validated
// against an embedded schema; a small TOML preference file under the
// user's reups directory layers per-user tag settings on top; the
// traditional REUPS_PATH / EUPS_PATH environment variables win last so
// existing shells keep working unchanged.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for config paths.
	AppName = "reups"
	// ConfigFileName is the config file name without extension.
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the reups configuration directory following
// $XDG_CONFIG_HOME conventions with a ~/.config fallback.
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, AppName), nil
}

// UserDir returns the per-user reups state directory (~/.reups),
// holding the preference file and user tag chains.
func UserDir() (string, error) {
	if userDirOverride != "" {
		return userDirOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, "."+AppName), nil
}

// Load resolves the effective configuration.
func Load() (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("stacks", defaults.Stacks)
	v.SetDefault("tag_preference", defaults.TagPreference)
	v.SetDefault("cache_dir", defaults.CacheDir)
	v.SetDefault("no_cache", defaults.NoCache)
	v.SetDefault("user_tag_dir", defaults.UserTagDir)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)

	if path, err := configFilePath(); err == nil && fileExists(path) {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := applyPrefs(&cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)

	if cfg.UserTagDir == "" {
		if userDir, err := UserDir(); err == nil {
			cfg.UserTagDir = filepath.Join(userDir, "tags")
		}
	}
	return &cfg, nil
}

// configFilePath resolves the config file location, honoring the
// --config flag override.
func configFilePath() (string, error) {
	if configFileOverride != "" {
		return configFileOverride, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// applyEnv merges the stack search path from the environment:
// REUPS_PATH first, then the traditional EUPS_PATH, both colon lists.
// Environment stacks are prepended so a shell-scoped path shadows the
// configured ones.
func applyEnv(cfg *Config) {
	var envStacks []string
	for _, envVar := range []string{"REUPS_PATH", "EUPS_PATH"} {
		for _, root := range filepath.SplitList(os.Getenv(envVar)) {
			if root != "" {
				envStacks = append(envStacks, root)
			}
		}
	}
	if len(envStacks) > 0 {
		cfg.Stacks = append(envStacks, cfg.Stacks...)
	}
}

// loadCUEIntoViper parses the CUE config file, validates it against
// the embedded #Config schema, and merges the result into viper.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}
	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return fmt.Errorf("invalid config %s: %w", path, userValue.Err())
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// GenerateCUE renders a configuration as config-file text, used by
// `reups config init` and `reups config show`.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder
	sb.WriteString("// reups configuration file.\n\n")

	if len(cfg.Stacks) > 0 {
		sb.WriteString("stacks: [\n")
		for _, root := range cfg.Stacks {
			sb.WriteString(fmt.Sprintf("\t%q,\n", root))
		}
		sb.WriteString("]\n")
	}
	sb.WriteString("tag_preference: [")
	for i, tag := range cfg.TagPreference {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%q", tag))
	}
	sb.WriteString("]\n")
	if cfg.CacheDir != "" {
		sb.WriteString(fmt.Sprintf("cache_dir: %q\n", cfg.CacheDir))
	}
	if cfg.NoCache {
		sb.WriteString("no_cache: true\n")
	}
	if cfg.UserTagDir != "" {
		sb.WriteString(fmt.Sprintf("user_tag_dir: %q\n", cfg.UserTagDir))
	}
	sb.WriteString("\nui: {\n")
	sb.WriteString(fmt.Sprintf("\tverbose: %v\n", cfg.UI.Verbose))
	sb.WriteString("}\n")
	return sb.String()
}

// CreateDefaultConfig writes a default config file when none exists.
func CreateDefaultConfig() (string, error) {
	path, err := configFilePath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
