// Package console renders transaction progress to the terminal: a
// per-package progress bar during fetch/extract, a summary table
// before execution, and a confirm prompt, mirroring the original
// implementation's Console/ProgressProxy split.
package console

import (
	"fmt"
	"sync"

	"github.com/pterm/pterm"

	"github.com/arc-language/pkgtx/pkg/fetch"
	"github.com/arc-language/pkgtx/pkg/pkginfo"
	"github.com/arc-language/pkgtx/pkg/transaction"
)

// Console is the single point through which the pipeline writes
// user-facing output. Quiet suppresses Printf, the plan table, and the
// progress bars; NoBars suppresses only the progress bars.
type Console struct {
	mu      sync.Mutex
	Quiet   bool
	NoBars  bool
	printer *pterm.MultiPrinter
	bars    map[string]*progressBar
}

type progressBar struct {
	printer *pterm.ProgressbarPrinter
	copied  int64
}

// New returns a ready-to-use Console.
func New() *Console {
	return &Console{bars: make(map[string]*progressBar)}
}

// Printf writes a line to stdout unless Quiet is set.
func (c *Console) Printf(format string, args ...any) {
	if c.Quiet {
		return
	}
	pterm.Println(fmt.Sprintf(format, args...))
}

// PrintPlan renders the non-Ignore steps of plan as a table with
// package, change, and channel columns, the way MTransaction::print
// does.
func (c *Console) PrintPlan(plan transaction.Plan) {
	if c.Quiet {
		return
	}
	if plan.Empty() {
		pterm.Info.Println("All requested packages already installed")
		return
	}

	rows := pterm.TableData{{"Package", "Change", "Channel"}}
	for _, step := range plan.Steps {
		if step.Kind == transaction.Ignore {
			continue
		}
		rows = append(rows, planRow(step))
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		pterm.Error.Printfln("rendering transaction table: %v", err)
	}
}

func planRow(step transaction.Step) []string {
	switch step.Kind {
	case transaction.Install:
		return []string{step.To.Name, fmt.Sprintf("+ %s", step.To.Str()), step.To.Channel}
	case transaction.Erase:
		return []string{step.From.Name, fmt.Sprintf("- %s", step.From.Str()), step.From.Channel}
	default:
		return []string{step.To.Name, fmt.Sprintf("%s -> %s", step.From.Str(), step.To.Str()), step.To.Channel}
	}
}

// Confirm prompts the user with message, defaulting to yes, unless
// alwaysYes is set (in which case it returns true without prompting).
func (c *Console) Confirm(message string, alwaysYes bool) (bool, error) {
	if alwaysYes {
		return true, nil
	}
	result, err := pterm.DefaultInteractiveConfirm.WithDefaultText(message).WithDefaultValue(true).Show()
	if err != nil {
		return false, fmt.Errorf("console: prompting: %w", err)
	}
	return result, nil
}

// InitMultiProgress prepares a multi-bar display for a batch of
// concurrent downloads. The callback from ProgressCallback then adds
// one bar per package to it as that package's first update arrives.
func (c *Console) InitMultiProgress() *pterm.MultiPrinter {
	c.mu.Lock()
	defer c.mu.Unlock()
	mp := pterm.DefaultMultiPrinter
	c.printer = &mp
	return c.printer
}

// ProgressCallback adapts Console into a fetch.ProgressFunc, updating
// (or creating) one progress bar per package.
func (c *Console) ProgressCallback() fetch.ProgressFunc {
	return func(pkg pkginfo.PackageInfo, state fetch.State, copied, total int64) {
		if c.Quiet || c.NoBars {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()

		bar, ok := c.bars[pkg.Str()]
		if !ok {
			builder := pterm.DefaultProgressbar.WithTotal(int(total)).WithTitle(pkg.Name)
			if c.printer != nil {
				builder = builder.WithWriter(c.printer.NewWriter())
			}
			printer, _ := builder.Start()
			bar = &progressBar{printer: printer}
			c.bars[pkg.Str()] = bar
		}

		switch state {
		case fetch.Downloading:
			if delta := copied - bar.copied; delta > 0 {
				bar.printer.Add(int(delta))
				bar.copied = copied
			}
		case fetch.Validating:
			bar.printer.UpdateTitle(pkg.Name + " (validating)")
		case fetch.Extracted:
			bar.printer.UpdateTitle(pkg.Name + " (done)")
			bar.printer.Stop()
		case fetch.Failed:
			bar.printer.UpdateTitle(pkg.Name + " (failed)")
			bar.printer.Stop()
		}
	}
}
