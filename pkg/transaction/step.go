// Package transaction classifies a desired and an installed package set
// into an ordered plan of link/unlink steps, and executes that plan,
// mirroring MTransaction's classify-then-execute split.
package transaction

import "github.com/arc-language/pkgtx/pkg/pkginfo"

// StepKind is one of the classification outcomes a package can fall
// into between the installed set and the desired set.
type StepKind string

const (
	Install      StepKind = "install"
	Erase        StepKind = "erase"
	Upgraded     StepKind = "upgraded"
	Downgraded   StepKind = "downgraded"
	Changed      StepKind = "changed"
	Ignore       StepKind = "ignore"
	VendorChange StepKind = "vendor_change"
	ArchChange   StepKind = "arch_change"
)

// Step is one unit of work in a Plan: for Install/Erase only one side
// is populated; for Upgraded/Downgraded/Changed both From and To are
// set and execution unlinks From then links To; for VendorChange/
// ArchChange both are set but execution only logs a warning.
type Step struct {
	Kind StepKind
	From pkginfo.PackageInfo // the currently-installed build, if any
	To   pkginfo.PackageInfo // the desired build, if any
}

// IsReplace reports whether this step both unlinks and links a build
// as a straightforward upgrade/downgrade/change: the packages the
// executor actually fetches and materializes.
func (s Step) IsReplace() bool {
	switch s.Kind {
	case Upgraded, Downgraded, Changed:
		return true
	default:
		return false
	}
}

// IsWarning reports whether this step is a vendor or architecture
// change. Unlike a plain replace, swapping the channel or subdir out
// from under a linked package isn't a simple file substitution, so
// these are logged as a warning and dropped rather than executed.
func (s Step) IsWarning() bool {
	switch s.Kind {
	case VendorChange, ArchChange:
		return true
	default:
		return false
	}
}

// Plan is an ordered set of steps plus fields for the original
// install/remove request. Planner.Plan leaves Requested and
// RequestedRm empty; Executor.Execute records the specs passed to it
// as arguments, not these fields.
type Plan struct {
	Steps       []Step
	Requested   []string // match specs the user asked to install
	RequestedRm []string // match specs the user asked to remove
}

// Empty reports whether the plan has no work to do.
func (p Plan) Empty() bool {
	for _, s := range p.Steps {
		if s.Kind != Ignore {
			return false
		}
	}
	return true
}

// Installs returns the packages this plan will newly download and
// link, in step order.
func (p Plan) Installs() []pkginfo.PackageInfo {
	var out []pkginfo.PackageInfo
	for _, s := range p.Steps {
		if s.Kind == Install || s.IsReplace() {
			out = append(out, s.To)
		}
	}
	return out
}

// Removals returns the packages this plan will unlink, in step order.
func (p Plan) Removals() []pkginfo.PackageInfo {
	var out []pkginfo.PackageInfo
	for _, s := range p.Steps {
		if s.Kind == Erase || s.IsReplace() {
			out = append(out, s.From)
		}
	}
	return out
}
