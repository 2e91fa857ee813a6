package transaction

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-language/pkgtx/pkg/cache"
	"github.com/arc-language/pkgtx/pkg/fetch"
	"github.com/arc-language/pkgtx/pkg/history"
	"github.com/arc-language/pkgtx/pkg/link"
	"github.com/arc-language/pkgtx/pkg/pkginfo"
)

func buildCondaArchive(t *testing.T, payloadName, payloadContent string) []byte {
	t.Helper()
	tarOf := func(name, content string) []byte {
		var buf bytes.Buffer
		tw := tar.NewWriter(&buf)
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, tw.Close())
		return buf.Bytes()
	}

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	for _, m := range []struct {
		name string
		raw  []byte
	}{
		{"pkg-x.tar.zst", tarOf(payloadName, payloadContent)},
		{"info-x.tar.zst", tarOf("info/index.json", `{}`)},
	} {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		enc, err := zstd.NewWriter(w)
		require.NoError(t, err)
		_, err = enc.Write(m.raw)
		require.NoError(t, err)
		require.NoError(t, enc.Close())
	}
	require.NoError(t, zw.Close())
	return archive.Bytes()
}

func sha256hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestExecutorExecuteFreshInstall(t *testing.T) {
	archiveBytes := buildCondaArchive(t, "bin/tool", "payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archiveBytes)
	}))
	defer srv.Close()

	pkg := pkginfo.PackageInfo{
		Name: "tool", Version: "1.0", BuildString: "0",
		Fn: "tool-1.0-0.conda", Channel: srv.URL, Subdir: "linux-64",
		Size: uint64(len(archiveBytes)), SHA256: sha256hex(archiveBytes),
	}

	plan := NewPlanner().Plan([]pkginfo.PackageInfo{pkg}, nil)
	require.Len(t, plan.Steps, 1)
	require.Equal(t, Install, plan.Steps[0].Kind)

	cacheDir := t.TempDir()
	prefix := t.TempDir()
	mc := cache.NewMultiCache([]string{cacheDir})
	client := fetch.NewClient(nil)
	journal := history.Open(prefix)

	exec := NewExecutor(mc, client, prefix, journal)
	err := exec.Execute(context.Background(), plan, nil, []string{"tool"}, nil, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(prefix, "bin", "tool"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	last, ok, err := journal.Last()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, last.LinkDists, pkg.LongStr())
	assert.Equal(t, []string{"tool"}, last.RequestedAdd)
}

func TestExecutorExecuteNoOpTransaction(t *testing.T) {
	pkg := pkginfo.PackageInfo{Name: "tool", Version: "1.0", BuildString: "0", Subdir: "linux-64", Channel: "chan"}
	plan := NewPlanner().Plan([]pkginfo.PackageInfo{pkg}, []pkginfo.PackageInfo{pkg})
	assert.True(t, plan.Empty())

	prefix := t.TempDir()
	journal := history.Open(prefix)
	exec := NewExecutor(cache.NewMultiCache([]string{t.TempDir()}), fetch.NewClient(nil), prefix, journal)

	err := exec.Execute(context.Background(), plan, []pkginfo.PackageInfo{pkg}, nil, []string{"tool"}, nil)
	require.NoError(t, err)

	last, ok, err := journal.Last()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, last.LinkDists)
	assert.Equal(t, []string{"tool"}, last.RequestedRm)
}

func TestExecutorExecuteErase(t *testing.T) {
	prefix := t.TempDir()
	extracted := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(extracted, "info"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(extracted, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(extracted, "bin", "tool"), nil, 0o755))

	pkg := pkginfo.PackageInfo{Name: "tool", Version: "1.0", BuildString: "0", Subdir: "linux-64", Channel: "chan"}

	require.NoError(t, link.LinkPackage(pkg, extracted, prefix))

	plan := NewPlanner().Plan(nil, []pkginfo.PackageInfo{pkg})
	require.Len(t, plan.Steps, 1)
	require.Equal(t, Erase, plan.Steps[0].Kind)

	journal := history.Open(prefix)
	exec := NewExecutor(cache.NewMultiCache([]string{t.TempDir()}), fetch.NewClient(nil), prefix, journal)
	require.NoError(t, exec.Execute(context.Background(), plan, []pkginfo.PackageInfo{pkg}, nil, []string{"tool"}, nil))

	_, err := os.Stat(filepath.Join(prefix, "bin", "tool"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecutorExecuteNoarchUsesInstalledInterpreter(t *testing.T) {
	archiveBytes := buildCondaArchive(t, "lib/mod.py", "payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archiveBytes)
	}))
	defer srv.Close()

	noarchPkg := pkginfo.PackageInfo{
		Name: "a-module", Version: "1.0", BuildString: "0",
		Fn: "a-module-1.0-0.conda", Channel: srv.URL, Subdir: "linux-64",
		Size: uint64(len(archiveBytes)), SHA256: sha256hex(archiveBytes),
		PackageType: pkginfo.InterpreterNoarch,
	}
	python := pkginfo.PackageInfo{Name: "python", Version: "3.11", BuildString: "0", Subdir: "linux-64", Channel: "chan"}

	plan := NewPlanner().Plan([]pkginfo.PackageInfo{noarchPkg, python}, []pkginfo.PackageInfo{python})
	require.Len(t, plan.Steps, 2)

	cacheDir := t.TempDir()
	prefix := t.TempDir()
	journal := history.Open(prefix)
	exec := NewExecutor(cache.NewMultiCache([]string{cacheDir}), fetch.NewClient(nil), prefix, journal)

	err := exec.Execute(context.Background(), plan, []pkginfo.PackageInfo{python}, []string{"a-module"}, nil, nil)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(prefix, "lib", "mod.py"))
	require.NoError(t, err)
}

func TestExecutorExecuteVendorChangeWarnsAndSkips(t *testing.T) {
	have := pkginfo.PackageInfo{Name: "tool", Version: "1.0", BuildString: "0", Subdir: "linux-64", Channel: "https://old.example.org"}
	want := pkginfo.PackageInfo{Name: "tool", Version: "1.0", BuildString: "0", Subdir: "linux-64", Channel: "https://new.example.org"}

	plan := NewPlanner().Plan([]pkginfo.PackageInfo{want}, []pkginfo.PackageInfo{have})
	require.Len(t, plan.Steps, 1)
	require.Equal(t, VendorChange, plan.Steps[0].Kind)
	assert.Empty(t, plan.Installs())
	assert.Empty(t, plan.Removals())

	prefix := t.TempDir()
	journal := history.Open(prefix)
	exec := NewExecutor(cache.NewMultiCache([]string{t.TempDir()}), fetch.NewClient(nil), prefix, journal)

	err := exec.Execute(context.Background(), plan, []pkginfo.PackageInfo{have}, []string{"tool"}, nil, nil)
	require.NoError(t, err)

	last, ok, err := journal.Last()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, last.LinkDists)
	assert.Empty(t, last.UnlinkDists)
}
