// Package pkginfo defines the immutable descriptor used throughout the
// transaction pipeline to identify a single package build.
package pkginfo

import (
	"fmt"
	"regexp"
	"strings"
)

// PackageType classifies how a package's payload relates to the host
// architecture.
type PackageType string

const (
	// Generic packages are tied to a specific CPU architecture/subdir.
	Generic PackageType = "generic"
	// InterpreterNoarch packages are architecture-neutral and need
	// post-link compilation against an interpreter found in the prefix.
	InterpreterNoarch PackageType = "noarch"
	// VirtualSystem packages are synthetic, reflecting a host capability.
	// They are never fetched, only consulted by the planner.
	VirtualSystem PackageType = "virtual"
)

// VirtualChannel is the canonical channel value used by virtual packages.
const VirtualChannel = "@"

var (
	md5Pattern    = regexp.MustCompile(`^[0-9a-f]{32}$`)
	sha256Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

var recognizedExts = []string{".tar.bz2", ".conda", ".tar.xz"}

// PackageInfo is an immutable descriptor of one package build, as
// produced by the external solver/index layer and consumed by every
// stage of the transaction pipeline.
type PackageInfo struct {
	Name         string
	Version      string
	BuildString  string
	BuildNumber  uint64
	Channel      string
	Subdir       string
	Fn           string
	Size         uint64
	Timestamp    int64
	MD5          string
	SHA256       string
	Depends      []string
	Constrains   []string
	License      string
	PackageType  PackageType
}

// URL returns channel + "/" + subdir + "/" + fn, per the data model.
func (p PackageInfo) URL() string {
	return p.Channel + "/" + p.Subdir + "/" + p.Fn
}

// Str returns the canonical short form: name-version-build_string.
func (p PackageInfo) Str() string {
	return fmt.Sprintf("%s-%s-%s", p.Name, p.Version, p.BuildString)
}

// LongStr returns the canonical long form: channel/subdir::name-version-build_string.
func (p PackageInfo) LongStr() string {
	return fmt.Sprintf("%s/%s::%s", p.Channel, p.Subdir, p.Str())
}

// Fingerprint is the key used to memoize cache queries: it is exactly
// Str(), per spec.
func (p PackageInfo) Fingerprint() string {
	return p.Str()
}

// Equivalent reports whether two PackageInfo values identify the same
// build: equal (name, version, build_string, build_number, sha256).
func (p PackageInfo) Equivalent(o PackageInfo) bool {
	return p.Name == o.Name &&
		p.Version == o.Version &&
		p.BuildString == o.BuildString &&
		p.BuildNumber == o.BuildNumber &&
		p.SHA256 == o.SHA256
}

// Validate checks the invariants from the data model: a non-empty name,
// a canonical fn, and well-formed hashes when present.
func (p PackageInfo) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pkginfo: name is required")
	}
	if p.MD5 != "" && !md5Pattern.MatchString(p.MD5) {
		return fmt.Errorf("pkginfo: %s: md5 %q is not 32 lowercase hex", p.Name, p.MD5)
	}
	if p.SHA256 != "" && !sha256Pattern.MatchString(p.SHA256) {
		return fmt.Errorf("pkginfo: %s: sha256 %q is not 64 lowercase hex", p.Name, p.SHA256)
	}
	if p.Fn != "" {
		want := fmt.Sprintf("%s-%s-%s", p.Name, p.Version, p.BuildString) + extOf(p.Fn)
		if p.Fn != want {
			return fmt.Errorf("pkginfo: %s: fn %q is not canonical (want %q)", p.Name, p.Fn, want)
		}
	}
	return nil
}

// extOf returns the recognized archive extension suffix of fn, or "".
func extOf(fn string) string {
	for _, ext := range recognizedExts {
		if strings.HasSuffix(fn, ext) {
			return ext
		}
	}
	return ""
}

// StripExt returns fn with its recognized archive extension removed.
func StripExt(fn string) string {
	for _, ext := range recognizedExts {
		if strings.HasSuffix(fn, ext) {
			return strings.TrimSuffix(fn, ext)
		}
	}
	return fn
}

// NewVirtualPackage builds a synthetic PackageInfo reflecting a host
// capability, per the virtual-package rules: channel "@", a placeholder
// MD5, never fetched. Grounded on virtual_packages.cpp's
// make_virtual_package.
func NewVirtualPackage(name, version, buildString, subdir string) PackageInfo {
	if version == "" {
		version = "0"
	}
	if buildString == "" {
		buildString = "0"
	}
	return PackageInfo{
		Name:        name,
		Version:     version,
		BuildString: buildString,
		BuildNumber: 0,
		Channel:     VirtualChannel,
		Subdir:      subdir,
		Fn:          name,
		MD5:         "12345678901234567890123456789012",
		PackageType: VirtualSystem,
	}
}
