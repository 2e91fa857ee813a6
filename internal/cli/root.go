// internal/cli/root.go
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arc-language/pkgtx/pkg/config"
)

var (
	cfgFile string
	quiet   bool
	yes     bool
	dryRun  bool
	jsonOut bool
	noBars  bool
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pkgtx",
	Short: "Package transaction pipeline",
	Long: `pkgtx - fetch, link, and unlink package builds against a prefix.

Resolves a requested set of package names against a repository index,
plans the install/upgrade/removal steps needed to reach that set, and
executes them: download and verify archives, extract, and link or
unlink files in the target prefix.`,
	Version: "0.1.0",
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pkgtx/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&yes, "yes", "y", false, "assume yes to all prompts")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "show the plan without executing it")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "set the json config key (no command changes its output for it)")
	rootCmd.PersistentFlags().BoolVar(&noBars, "no-progress-bars", false, "disable progress bars")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	if quiet {
		cfg.Quiet = true
	}
	if yes {
		cfg.AlwaysYes = true
	}
	if dryRun {
		cfg.DryRun = true
	}
	if jsonOut {
		cfg.JSON = true
	}
	if noBars {
		cfg.NoProgressBars = true
	}
}
