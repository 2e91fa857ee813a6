// Package cache implements the on-disk package cache: archive-form and
// extracted-form validation against one or more pkgs_dirs, and the
// first-writable/union-query policy used across them.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/arc-language/pkgtx/pkg/pkgerr"
	"github.com/arc-language/pkgtx/pkg/pkginfo"
)

// MagicFile marks a directory as a package cache, the sentinel file
// checked for writability. It is distinct from URLsFile, which logs
// every archive URL ever fetched into this cache.
const MagicFile = "urls"

// URLsFile is the append-only log of every archive URL extracted into
// this cache, one per line.
const URLsFile = "urls.txt"

// Writable enumerates the three states of a cache directory's
// writability, memoized after the first check.
type Writable int

const (
	Unknown Writable = iota
	WritableYes
	WritableNo
	DirDoesNotExist
)

// Cache is a single pkgs_dir: a directory holding downloaded archives
// and their extracted package trees.
type Cache struct {
	dir string

	mu       sync.Mutex
	writable Writable
	valid    map[string]bool // memoized query() results, keyed by pkginfo.Fingerprint
}

// New returns a Cache rooted at dir. It performs no I/O.
func New(dir string) *Cache {
	return &Cache{dir: dir, valid: make(map[string]bool)}
}

// Dir returns the cache's root directory.
func (c *Cache) Dir() string { return c.dir }

// IsWritable reports (and memoizes) whether dir exists and is writable.
func (c *Cache) IsWritable() Writable {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writable == Unknown {
		c.checkWritable()
	}
	return c.writable
}

func (c *Cache) checkWritable() {
	magic := filepath.Join(c.dir, MagicFile)
	if _, err := os.Stat(magic); err == nil {
		f, err := os.OpenFile(magic, os.O_WRONLY, 0)
		if err != nil {
			c.writable = WritableNo
			return
		}
		f.Close()
		c.writable = WritableYes
		return
	}
	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		c.writable = DirDoesNotExist
		return
	}
	c.writable = DirDoesNotExist
}

// CreateDirectory creates dir and its magic file.
func (c *Cache) CreateDirectory() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return pkgerr.New(pkgerr.CacheNotWritable, "cache.create_directory", "", err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, MagicFile), nil, 0o644); err != nil {
		return pkgerr.New(pkgerr.CacheNotWritable, "cache.create_directory", "", err)
	}
	return nil
}

// SetWritable forces the memoized writable state, used once a caller
// has just created the directory.
func (c *Cache) SetWritable(w Writable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writable = w
}

// repodataRecord mirrors the fields of info/repodata_record.json that
// extracted-form validation consults.
type repodataRecord struct {
	Size    uint64 `json:"size"`
	SHA256  string `json:"sha256"`
	Channel string `json:"channel"`
	URL     string `json:"url"`
}

// Query reports whether pkg is already present and valid in this
// cache, either as a downloaded archive (size + MD5 match) or as an
// extracted package tree (repodata_record.json fields match). Results
// are memoized by pkginfo.Fingerprint.
func (c *Cache) Query(pkg pkginfo.PackageInfo) bool {
	key := pkg.Fingerprint()

	c.mu.Lock()
	if v, ok := c.valid[key]; ok {
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	valid := c.queryUncached(pkg)

	c.mu.Lock()
	c.valid[key] = valid
	c.mu.Unlock()

	return valid
}

func (c *Cache) queryUncached(pkg pkginfo.PackageInfo) bool {
	tarballPath := filepath.Join(c.dir, pkg.Fn)
	if fi, err := os.Stat(tarballPath); err == nil && !fi.IsDir() && uint64(fi.Size()) == pkg.Size {
		if sum, err := md5sum(tarballPath); err == nil && sum == pkg.MD5 {
			return true
		}
	}

	extractedDir := filepath.Join(c.dir, pkginfo.StripExt(pkg.Fn))
	recordPath := filepath.Join(extractedDir, "info", "repodata_record.json")
	data, err := os.ReadFile(recordPath)
	if err != nil {
		return false
	}
	var rec repodataRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return false
	}
	return rec.Size == pkg.Size &&
		rec.SHA256 == pkg.SHA256 &&
		rec.Channel == pkg.Channel &&
		rec.URL == pkg.URL()
}

// ExtractedPath returns the directory a validated extracted-form
// entry for pkg would live at, regardless of whether it exists yet.
func (c *Cache) ExtractedPath(pkg pkginfo.PackageInfo) string {
	return filepath.Join(c.dir, pkginfo.StripExt(pkg.Fn))
}

// ArchivePath returns the path the downloaded archive for pkg would
// live at, regardless of whether it exists yet.
func (c *Cache) ArchivePath(pkg pkginfo.PackageInfo) string {
	return filepath.Join(c.dir, pkg.Fn)
}

// AppendURL appends url as a new line to urls.txt in the cache root,
// the way add_url records every extracted archive's source.
func (c *Cache) AppendURL(url string) error {
	f, err := os.OpenFile(filepath.Join(c.dir, URLsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return pkgerr.New(pkgerr.CacheNotWritable, "cache.append_url", "", err)
	}
	defer f.Close()
	_, err = f.WriteString(url + "\n")
	if err != nil {
		return pkgerr.New(pkgerr.CacheNotWritable, "cache.append_url", "", err)
	}
	return nil
}

func md5sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MultiCache is an ordered list of Cache directories: first-writable
// for placing new downloads, union-query for checking whether a
// package is already cached anywhere.
type MultiCache struct {
	caches []*Cache
}

// NewMultiCache wraps dirs, in priority order, as a MultiCache.
func NewMultiCache(dirs []string) *MultiCache {
	mc := &MultiCache{}
	for _, d := range dirs {
		mc.caches = append(mc.caches, New(d))
	}
	return mc
}

// Caches returns the underlying list, in priority order.
func (mc *MultiCache) Caches() []*Cache { return mc.caches }

// FirstWritable returns the first cache directory that is writable,
// creating it if it doesn't exist yet but could be created.
func (mc *MultiCache) FirstWritable() (*Cache, error) {
	for _, c := range mc.caches {
		switch c.IsWritable() {
		case WritableYes:
			return c, nil
		case DirDoesNotExist:
			if err := c.CreateDirectory(); err == nil {
				c.SetWritable(WritableYes)
				return c, nil
			}
		}
	}
	return nil, pkgerr.New(pkgerr.CacheNotWritable, "cache.first_writable", "", pkgerr.ErrCacheNotWritable)
}

// Query reports whether pkg validates in any of the underlying
// caches, searched in order.
func (mc *MultiCache) Query(pkg pkginfo.PackageInfo) (*Cache, bool) {
	for _, c := range mc.caches {
		if c.Query(pkg) {
			return c, true
		}
	}
	return nil, false
}
