// Package config loads and saves the pipeline's user-facing settings,
// the same shape the teacher's core config took, with the keys this
// pipeline actually needs.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the settings that drive a single transaction: where to
// cache and unpack archives, which prefix to link into, and how noisy
// and how interactive to be.
type Config struct {
	PkgsDirs       []string `yaml:"pkgs_dirs"`
	TargetPrefix   string   `yaml:"target_prefix"`
	Quiet          bool     `yaml:"quiet"`
	AlwaysYes      bool     `yaml:"always_yes"`
	DryRun         bool     `yaml:"dry_run"`
	JSON           bool     `yaml:"json"`
	NoProgressBars bool     `yaml:"no_progress_bars"`
}

// DefaultConfig returns a Config with host-appropriate defaults: a
// single pkgs_dir, ~/.pkgtx/pkgs under the user's home directory, and the current
// working directory as the target prefix.
func DefaultConfig() *Config {
	return &Config{
		PkgsDirs:     []string{defaultPkgsDir()},
		TargetPrefix: defaultTargetPrefix(),
	}
}

// Load reads config from path, falling back to DefaultConfig if path
// is unset or doesn't exist. An environment variable, PKGTX_PKGS_DIR,
// replaces PkgsDirs with that single directory when set, regardless
// of the file's contents.
func Load(path string) (*Config, error) {
	var cfg *Config

	if path == "" {
		path = defaultConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		cfg = DefaultConfig()
	case err != nil:
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	default:
		cfg = DefaultConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if override := os.Getenv("PKGTX_PKGS_DIR"); override != "" {
		cfg.PkgsDirs = []string{override}
	}

	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as
// needed.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = defaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating directory for %s: %w", path, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "pkgtx", "config.yaml")
}

func defaultPkgsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".pkgtx", "pkgs")
	}
	return filepath.Join(home, ".pkgtx", "pkgs")
}

func defaultTargetPrefix() string {
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}
