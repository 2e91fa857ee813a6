// Package repoindex is a minimal stand-in for the repository-index
// fetcher and parser (repodata.json et al.) that produces the package
// metadata records this pipeline consumes. A full implementation
// parses a channel's repodata.json, handles compression, ETags, and
// incremental shards; this stand-in reads a flat JSON array of
// pkginfo.PackageInfo records, enough to exercise pkg/solve and
// pkg/transaction against a concrete source without building that
// parser. See DESIGN.md.
package repoindex

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/arc-language/pkgtx/pkg/pkginfo"
)

// ReadFile parses path as a JSON array of pkginfo.PackageInfo records
// and returns them keyed by name, the shape pkg/solve.Pool expects.
func ReadFile(path string) (map[string]pkginfo.PackageInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("repoindex: reading %s: %w", path, err)
	}

	var records []pkginfo.PackageInfo
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("repoindex: parsing %s: %w", path, err)
	}

	pool := make(map[string]pkginfo.PackageInfo, len(records))
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("repoindex: %s: %w", path, err)
		}
		pool[rec.Name] = rec
	}
	return pool, nil
}
