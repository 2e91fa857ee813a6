// Package solve is a minimal stand-in for the SAT-based dependency
// solver that sits upstream of the transaction pipeline in a full
// package manager. It performs a direct name-keyed set diff between a
// requested package list and the installed set — it does not resolve
// dependency graphs, version constraints, or conflicts, and is not a
// substitute for one. Its only job here is to hand the planner a
// to-install/installed pair shaped the way a real solver's output
// would be, so pkg/transaction can be exercised end to end without
// vendoring a constraint solver. See DESIGN.md.
package solve

import "github.com/arc-language/pkgtx/pkg/pkginfo"

// Request is what a caller asks to change: specs to add, by exact
// name, and specs to remove, by exact name. A real solver would accept
// version/build match specs; this stand-in only matches on name.
type Request struct {
	Install []string
	Remove  []string
}

// Pool is the set of package builds Classify can choose from when
// satisfying an Install request, keyed by name (one build per name,
// since there's no constraint solving to choose among alternatives).
type Pool map[string]pkginfo.PackageInfo

// Classify resolves req against pool and installed, returning the
// desired post-transaction package set: every name in req.Install
// pulled from pool, every currently-installed package not named in
// req.Remove, unless it's also being reinstalled by req.Install.
func Classify(req Request, pool Pool, installed []pkginfo.PackageInfo) ([]pkginfo.PackageInfo, error) {
	remove := make(map[string]bool, len(req.Remove))
	for _, name := range req.Remove {
		remove[name] = true
	}
	install := make(map[string]bool, len(req.Install))
	for _, name := range req.Install {
		install[name] = true
	}

	var result []pkginfo.PackageInfo
	for _, name := range req.Install {
		pkg, ok := pool[name]
		if !ok {
			return nil, &UnresolvedError{Name: name}
		}
		result = append(result, pkg)
	}
	for _, pkg := range installed {
		if remove[pkg.Name] || install[pkg.Name] {
			continue
		}
		result = append(result, pkg)
	}
	return result, nil
}

// UnresolvedError reports a requested package with no candidate build
// in the pool, the nearest analogue this stand-in has to a real
// solver's "package not found" failure.
type UnresolvedError struct {
	Name string
}

func (e *UnresolvedError) Error() string {
	return "solve: no candidate build found for " + e.Name
}
