// Package virtualpkg synthesizes the virtual packages (__win, __unix,
// __linux, __osx) that describe host capabilities to the planner,
// mirroring the original implementation's dist_packages probe. It
// intentionally does not probe for CUDA: detecting a GPU driver
// requires dlopen'ing a platform-specific shared library, which has no
// equivalent need in this pipeline's own operations (nothing here
// gates a package on CUDA availability) — see DESIGN.md.
package virtualpkg

import (
	"runtime"

	"github.com/arc-language/pkgtx/pkg/pkginfo"
)

// Probe returns the virtual packages that apply to the running host.
func Probe(subdir string) []pkginfo.PackageInfo {
	var pkgs []pkginfo.PackageInfo

	switch runtime.GOOS {
	case "windows":
		pkgs = append(pkgs, pkginfo.NewVirtualPackage("__win", "", "", subdir))
	case "linux":
		pkgs = append(pkgs, pkginfo.NewVirtualPackage("__unix", "", "", subdir))
		pkgs = append(pkgs, pkginfo.NewVirtualPackage("__linux", "", "", subdir))
	case "darwin":
		pkgs = append(pkgs, pkginfo.NewVirtualPackage("__unix", "", "", subdir))
		pkgs = append(pkgs, pkginfo.NewVirtualPackage("__osx", "", "", subdir))
	}

	return pkgs
}
