package transaction

import (
	"github.com/Masterminds/semver/v3"

	"github.com/arc-language/pkgtx/pkg/pkginfo"
)

// InterpreterName is the package name whose post-install version
// determines how noarch packages get compiled (e.g. "python").
const InterpreterName = "python"

// Planner turns a desired package set (as produced by the solver) and
// the currently-installed package set into an ordered Plan, the way
// MTransaction::init classifies libsolv's transaction steps.
type Planner struct{}

// NewPlanner returns a ready-to-use Planner. It holds no state.
func NewPlanner() *Planner { return &Planner{} }

// Plan classifies toInstall against installed: packages present in
// both with an equivalent build from the same channel and subdir are
// Ignore; present in both otherwise are ArchChange (subdir differs),
// VendorChange (channel differs), or Upgraded/Downgraded/Changed (by
// version comparison, falling back to Changed when versions don't
// parse as semver); present only in installed are Erase; present only
// in toInstall are Install.
func (pl *Planner) Plan(toInstall, installed []pkginfo.PackageInfo) Plan {
	installedByName := make(map[string]pkginfo.PackageInfo, len(installed))
	for _, p := range installed {
		installedByName[p.Name] = p
	}
	wantByName := make(map[string]pkginfo.PackageInfo, len(toInstall))
	for _, p := range toInstall {
		wantByName[p.Name] = p
	}

	var plan Plan

	for _, want := range toInstall {
		if have, ok := installedByName[want.Name]; ok {
			if have.Equivalent(want) && have.Channel == want.Channel && have.Subdir == want.Subdir {
				plan.Steps = append(plan.Steps, Step{Kind: Ignore, From: have, To: want})
				continue
			}
			plan.Steps = append(plan.Steps, Step{Kind: classifyChange(have, want), From: have, To: want})
			continue
		}
		plan.Steps = append(plan.Steps, Step{Kind: Install, To: want})
	}

	for _, have := range installed {
		if _, stillWanted := wantByName[have.Name]; !stillWanted {
			plan.Steps = append(plan.Steps, Step{Kind: Erase, From: have})
		}
	}

	return plan
}

// classifyChange decides whether replacing have with want is an
// upgrade, downgrade, vendor/arch change, or a plain "changed" (same
// version family, different build).
func classifyChange(have, want pkginfo.PackageInfo) StepKind {
	if have.Subdir != want.Subdir {
		return ArchChange
	}
	if have.Channel != want.Channel {
		return VendorChange
	}

	haveVer, haveErr := semver.NewVersion(have.Version)
	wantVer, wantErr := semver.NewVersion(want.Version)
	if haveErr != nil || wantErr != nil {
		return Changed
	}

	switch haveVer.Compare(wantVer) {
	case -1:
		return Upgraded
	case 1:
		return Downgraded
	default:
		return Changed
	}
}

// FindInterpreterVersion returns the version of InterpreterName that
// will be present once plan is applied: first checked against
// toInstall (the interpreter is itself being installed/upgraded),
// falling back to installed (it's untouched), and empty if it is
// being removed. Mirrors MTransaction::find_python_version.
func FindInterpreterVersion(toInstall, installed []pkginfo.PackageInfo, removing []pkginfo.PackageInfo) string {
	for _, p := range toInstall {
		if p.Name == InterpreterName {
			return p.Version
		}
	}

	var version string
	for _, p := range installed {
		if p.Name == InterpreterName {
			version = p.Version
			break
		}
	}
	if version == "" {
		return ""
	}

	for _, p := range removing {
		if p.Name == InterpreterName {
			return ""
		}
	}
	return version
}
