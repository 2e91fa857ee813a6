// internal/cli/create.go
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arc-language/pkgtx/pkg/cache"
	"github.com/arc-language/pkgtx/pkg/console"
	"github.com/arc-language/pkgtx/pkg/fetch"
	"github.com/arc-language/pkgtx/pkg/history"
	"github.com/arc-language/pkgtx/pkg/link"
	"github.com/arc-language/pkgtx/pkg/pkginfo"
	"github.com/arc-language/pkgtx/pkg/platform"
	"github.com/arc-language/pkgtx/pkg/repoindex"
	"github.com/arc-language/pkgtx/pkg/solve"
	"github.com/arc-language/pkgtx/pkg/transaction"
	"github.com/arc-language/pkgtx/pkg/virtualpkg"
)

var (
	createRemove   []string
	createRepoPath string
)

var createCmd = &cobra.Command{
	Use:   "create [package...]",
	Short: "Resolve, fetch, and link a set of packages into the target prefix",
	Long: `create plans and executes a transaction against the configured
target prefix: packages named as arguments are installed (or upgraded
to the build found in the repository index), packages named with
--remove are unlinked, and everything else already installed is left
alone.`,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringSliceVar(&createRemove, "remove", nil, "package names to remove")
	createCmd.Flags().StringVar(&createRepoPath, "repo", "", "path to a repository index (JSON array of package records)")
}

func runCreate(cmd *cobra.Command, args []string) error {
	if createRepoPath == "" && len(args) > 0 {
		return fmt.Errorf("create: --repo is required to install packages")
	}

	ctx := context.Background()

	pool := map[string]pkginfo.PackageInfo{}
	if createRepoPath != "" {
		var err error
		pool, err = repoindex.ReadFile(createRepoPath)
		if err != nil {
			return err
		}
	}

	installed, err := readInstalled(cfg.TargetPrefix)
	if err != nil {
		return err
	}

	subdir, err := platform.Subdir()
	if err != nil {
		return err
	}
	installed = append(installed, virtualpkg.Probe(subdir)...)

	toInstall, err := solve.Classify(solve.Request{Install: args, Remove: createRemove}, pool, installed)
	if err != nil {
		return err
	}

	plan := transaction.NewPlanner().Plan(toInstall, installed)

	con := console.New()
	con.Quiet = cfg.Quiet
	con.NoBars = cfg.NoProgressBars
	con.PrintPlan(plan)

	if plan.Empty() {
		return nil
	}
	if cfg.DryRun {
		return nil
	}

	confirmed, err := con.Confirm("Proceed with this transaction?", cfg.AlwaysYes)
	if err != nil {
		return err
	}
	if !confirmed {
		return nil
	}

	mc := cache.NewMultiCache(cfg.PkgsDirs)
	client := fetch.NewClient(nil)
	journal := history.Open(cfg.TargetPrefix)
	exec := transaction.NewExecutor(mc, client, cfg.TargetPrefix, journal)

	return exec.Execute(ctx, plan, installed, args, createRemove, con.ProgressCallback())
}

// readInstalled reconstructs the installed package set from the
// conda-meta manifests link.LinkPackage leaves behind in prefix.
func readInstalled(prefix string) ([]pkginfo.PackageInfo, error) {
	manifests, err := link.ListManifests(prefix)
	if err != nil {
		return nil, err
	}

	installed := make([]pkginfo.PackageInfo, 0, len(manifests))
	for _, m := range manifests {
		installed = append(installed, pkginfo.PackageInfo{
			Name:        m.Name,
			Version:     m.Version,
			BuildString: m.Build,
			Channel:     m.Channel,
		})
	}
	return installed, nil
}
