package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.PkgsDirs)
	assert.NotEmpty(t, cfg.TargetPrefix)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := &Config{
		PkgsDirs:     []string{"/var/cache/pkgtx"},
		TargetPrefix: "/opt/env",
		Quiet:        true,
		AlwaysYes:    true,
	}
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.PkgsDirs, loaded.PkgsDirs)
	assert.Equal(t, cfg.TargetPrefix, loaded.TargetPrefix)
	assert.True(t, loaded.Quiet)
	assert.True(t, loaded.AlwaysYes)
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(DefaultConfig(), path))

	t.Setenv("PKGTX_PKGS_DIR", "/custom/pkgs")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/custom/pkgs"}, cfg.PkgsDirs)
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.yaml")
	require.NoError(t, Save(DefaultConfig(), path))
	_, err := os.Stat(path)
	require.NoError(t, err)
}
