package repoindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repodata.json")
	content := `[
		{"Name": "numpy", "Version": "1.26.0", "BuildString": "py311h0", "Fn": "numpy-1.26.0-py311h0.tar.bz2"},
		{"Name": "scipy", "Version": "1.11.0", "BuildString": "0", "Fn": "scipy-1.11.0-0.tar.bz2"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	pool, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, pool, 2)
	assert.Equal(t, "1.26.0", pool["numpy"].Version)
}

func TestReadFileRejectsInvalidRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repodata.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"Version": "1.0"}]`), 0o644))

	_, err := ReadFile(path)
	assert.Error(t, err)
}
