// Package fetch implements downloading and validating package
// archives and extracting them into the cache, mirroring the original
// implementation's PackageDownloadExtractTarget state machine with
// goroutines in place of curl multi-transfer callbacks.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/arc-language/pkgtx/pkg/cache"
	"github.com/arc-language/pkgtx/pkg/pkgerr"
	"github.com/arc-language/pkgtx/pkg/pkginfo"
)

// State is one stage of a single package's fetch-and-extract pipeline.
type State int

const (
	Planned State = iota
	Downloading
	Validating
	Extracted
	Failed
)

func (s State) String() string {
	switch s {
	case Planned:
		return "planned"
	case Downloading:
		return "downloading"
	case Validating:
		return "validating"
	case Extracted:
		return "extracted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProgressFunc receives state transitions and, during Downloading,
// periodic byte-count updates, for a single target.
type ProgressFunc func(pkg pkginfo.PackageInfo, state State, bytesCopied, bytesTotal int64)

// extractMutex serializes archive extraction: package_handling's
// decompressors are not safe to run concurrently against the same
// process-wide working state, so only one extraction runs at a time
// even while many downloads proceed in parallel.
var extractMutex sync.Mutex

// Target drives one package through Planned -> Downloading ->
// Validating -> Extracted (or Failed).
type Target struct {
	Pkg   pkginfo.PackageInfo
	state State
	err   error
}

// NewTarget returns a Target in the Planned state.
func NewTarget(pkg pkginfo.PackageInfo) *Target {
	return &Target{Pkg: pkg, state: Planned}
}

func (t *Target) State() State { return t.state }
func (t *Target) Err() error   { return t.err }

// Run executes the target's pipeline against mc: if pkg already
// validates in mc, it's a cache hit and Run transitions straight to
// Extracted. Otherwise it downloads into the first writable cache,
// validates size/sha256, and extracts under extractMutex.
func (t *Target) Run(ctx context.Context, client *Client, mc *cache.MultiCache, onProgress ProgressFunc) error {
	if _, ok := mc.Query(t.Pkg); ok {
		t.state = Extracted
		if onProgress != nil {
			onProgress(t.Pkg, Extracted, 0, 0)
		}
		return nil
	}

	dest, err := mc.FirstWritable()
	if err != nil {
		t.fail(err)
		return t.err
	}

	t.state = Downloading
	if onProgress != nil {
		onProgress(t.Pkg, Downloading, 0, int64(t.Pkg.Size))
	}

	archivePath := dest.ArchivePath(t.Pkg)
	if err := t.download(ctx, client, archivePath, onProgress); err != nil {
		t.fail(err)
		return t.err
	}

	t.state = Validating
	if onProgress != nil {
		onProgress(t.Pkg, Validating, int64(t.Pkg.Size), int64(t.Pkg.Size))
	}
	if err := t.validate(archivePath); err != nil {
		t.fail(pkgerr.New(pkgerr.IntegrityFailed, "fetch.validate", t.Pkg.Str(), err))
		return t.err
	}

	extractMutex.Lock()
	extractDir := dest.ExtractedPath(t.Pkg)
	err = Extract(archivePath, extractDir)
	if err == nil {
		err = writeRepodataRecord(extractDir, t.Pkg)
	}
	if err == nil {
		err = dest.AppendURL(t.Pkg.URL())
	}
	extractMutex.Unlock()
	if err != nil {
		t.fail(pkgerr.New(pkgerr.ExtractFailed, "fetch.extract", t.Pkg.Str(), err))
		return t.err
	}

	t.state = Extracted
	if onProgress != nil {
		onProgress(t.Pkg, Extracted, int64(t.Pkg.Size), int64(t.Pkg.Size))
	}
	return nil
}

func (t *Target) fail(err error) {
	t.state = Failed
	t.err = err
}

func (t *Target) download(ctx context.Context, client *Client, archivePath string, onProgress ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return fmt.Errorf("fetch: creating cache directory: %w", err)
	}
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("fetch: creating %s: %w", archivePath, err)
	}
	defer out.Close()

	var progress func(int64)
	if onProgress != nil {
		progress = func(copied int64) {
			onProgress(t.Pkg, Downloading, copied, int64(t.Pkg.Size))
		}
	}

	_, err = client.Download(ctx, t.Pkg.URL(), out, progress)
	if err != nil {
		return pkgerr.New(pkgerr.TransferFailed, "fetch.download", t.Pkg.Str(), err)
	}
	return nil
}

func (t *Target) validate(archivePath string) error {
	fi, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", archivePath, err)
	}
	if t.Pkg.Size != 0 && uint64(fi.Size()) != t.Pkg.Size {
		return fmt.Errorf("downloaded size %d does not match expected %d", fi.Size(), t.Pkg.Size)
	}

	if t.Pkg.SHA256 == "" {
		return nil
	}
	sum, err := sha256sum(archivePath)
	if err != nil {
		return err
	}
	if sum != t.Pkg.SHA256 {
		return fmt.Errorf("sha256 %s does not match expected %s", sum, t.Pkg.SHA256)
	}
	return nil
}

func sha256sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeRepodataRecord writes info/repodata_record.json under
// extractDir by reading the package's own info/index.json, merging in
// the solver-derived fields, and overriding url/channel/fn, the same
// way write_repodata_record does.
func writeRepodataRecord(extractDir string, pkg pkginfo.PackageInfo) error {
	infoDir := filepath.Join(extractDir, "info")

	record := map[string]any{}
	indexData, err := os.ReadFile(filepath.Join(infoDir, "index.json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading index.json: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(indexData, &record); err != nil {
			return fmt.Errorf("parsing index.json: %w", err)
		}
	}

	solvable := map[string]any{
		"name":         pkg.Name,
		"version":      pkg.Version,
		"build":        pkg.BuildString,
		"build_number": pkg.BuildNumber,
		"size":         pkg.Size,
		"sha256":       pkg.SHA256,
		"md5":          pkg.MD5,
		"depends":      pkg.Depends,
		"constrains":   pkg.Constrains,
		"license":      pkg.License,
		"subdir":       pkg.Subdir,
	}
	for k, v := range solvable {
		record[k] = v
	}
	record["url"] = pkg.URL()
	record["channel"] = pkg.Channel
	record["fn"] = pkg.Fn

	data, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling repodata_record.json: %w", err)
	}
	if err := os.MkdirAll(infoDir, 0o755); err != nil {
		return fmt.Errorf("creating info directory: %w", err)
	}
	return os.WriteFile(filepath.Join(infoDir, "repodata_record.json"), data, 0o644)
}

// RunAll drives targets concurrently, bounded by maxConcurrency
// simultaneous downloads. It returns the first error encountered; that
// error's context cancellation stops in-flight downloads early, so the
// caller should inspect each target's own State()/Err() rather than
// assume every target reached a terminal state.
func RunAll(ctx context.Context, client *Client, mc *cache.MultiCache, targets []*Target, maxConcurrency int64, onProgress ProgressFunc) error {
	sem := semaphore.NewWeighted(maxConcurrency)
	g, ctx := errgroup.WithContext(ctx)

	for _, target := range targets {
		target := target
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			return target.Run(ctx, client, mc, onProgress)
		})
	}
	return g.Wait()
}
