package transaction

import (
	"context"
	"fmt"
	"log"

	"github.com/arc-language/pkgtx/pkg/cache"
	"github.com/arc-language/pkgtx/pkg/fetch"
	"github.com/arc-language/pkgtx/pkg/history"
	"github.com/arc-language/pkgtx/pkg/link"
	"github.com/arc-language/pkgtx/pkg/pkgerr"
	"github.com/arc-language/pkgtx/pkg/pkginfo"
)

// MaxConcurrentDownloads bounds how many archives Executor fetches at
// once, the way the original implementation bounds curl's multi
// handle.
const MaxConcurrentDownloads = 5

// Executor applies a Plan: it fetches every package the plan installs
// into cache, then walks the plan in order unlinking/linking against
// prefix, and finally records the whole transaction to a journal.
type Executor struct {
	Cache   *cache.MultiCache
	Client  *fetch.Client
	Prefix  string
	History *history.Journal
	// Logger receives warnings for steps the executor won't materialize
	// (vendor/architecture changes). Defaults to log.Default() if nil.
	Logger *log.Logger
}

// NewExecutor wires the pieces an Executor needs; client and journal
// must be non-nil, mc must have at least one entry.
func NewExecutor(mc *cache.MultiCache, client *fetch.Client, prefix string, journal *history.Journal) *Executor {
	return &Executor{Cache: mc, Client: client, Prefix: prefix, History: journal}
}

func (e *Executor) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// Execute fetches and extracts every package plan.Installs() names,
// then applies every step in order, then appends one history Entry
// covering the whole transaction. installed is the package set the
// plan was computed against, consulted to find an untouched
// interpreter's version. requestedAdd/requestedRm are the original
// match specs the user asked for, recorded verbatim.
func (e *Executor) Execute(ctx context.Context, plan Plan, installed []pkginfo.PackageInfo, requestedAdd, requestedRm []string, onProgress fetch.ProgressFunc) error {
	if plan.Empty() {
		return e.History.Append(history.Entry{RequestedAdd: requestedAdd, RequestedRm: requestedRm})
	}

	targets := make([]*fetch.Target, 0, len(plan.Installs()))
	for _, pkg := range plan.Installs() {
		targets = append(targets, fetch.NewTarget(pkg))
	}
	if err := fetch.RunAll(ctx, e.Client, e.Cache, targets, MaxConcurrentDownloads, onProgress); err != nil {
		return fmt.Errorf("transaction: fetching packages: %w", err)
	}
	for _, t := range targets {
		if t.State() != fetch.Extracted {
			return fmt.Errorf("transaction: %s did not extract: %w", t.Pkg.Str(), t.Err())
		}
	}

	var entry history.Entry
	entry.RequestedAdd = requestedAdd
	entry.RequestedRm = requestedRm

	interpreterVersion := FindInterpreterVersion(plan.Installs(), installed, plan.Removals())

	for _, step := range plan.Steps {
		switch step.Kind {
		case Ignore:
			continue
		case Install:
			if err := e.link(step.To, interpreterVersion); err != nil {
				return err
			}
			entry.LinkDists = append(entry.LinkDists, step.To.LongStr())
		case Erase:
			if err := link.UnlinkPackage(step.From, e.Prefix); err != nil {
				return err
			}
			entry.UnlinkDists = append(entry.UnlinkDists, step.From.LongStr())
		case VendorChange, ArchChange:
			e.logger().Printf("warning: skipping %s: %s -> %s (%s), not applied", step.From.Name, step.From.LongStr(), step.To.LongStr(), step.Kind)
			continue
		default: // Upgraded, Downgraded, Changed
			if err := link.UnlinkPackage(step.From, e.Prefix); err != nil {
				return err
			}
			entry.UnlinkDists = append(entry.UnlinkDists, step.From.LongStr())

			if err := e.link(step.To, interpreterVersion); err != nil {
				return err
			}
			entry.LinkDists = append(entry.LinkDists, step.To.LongStr())
		}
	}

	return e.History.Append(entry)
}

func (e *Executor) link(pkg pkginfo.PackageInfo, interpreterVersion string) error {
	extracted, ok := e.Cache.Query(pkg)
	if !ok {
		// A miss memoized before the fetch is stale once the fetch has
		// extracted pkg, so re-validate each cache without that memo.
		for _, c := range e.Cache.Caches() {
			if cache.New(c.Dir()).Query(pkg) {
				extracted, ok = c, true
				break
			}
		}
	}
	if !ok {
		return pkgerr.New(pkgerr.LinkFailed, "transaction.link", pkg.Str(), fmt.Errorf("no validated cache entry after fetch"))
	}
	if err := link.LinkPackage(pkg, extracted.ExtractedPath(pkg), e.Prefix); err != nil {
		return err
	}
	if pkg.PackageType == pkginfo.InterpreterNoarch {
		if err := link.CompileNoarch(pkg, e.Prefix, interpreterVersion); err != nil {
			return err
		}
	}
	return nil
}
