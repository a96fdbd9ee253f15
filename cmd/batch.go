package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/etnz/taxclean"
	"github.com/etnz/taxclean/renderer"
	"github.com/google/subcommands"
)

type batchCmd struct {
	reset   bool
	workers int
	json    bool
}

func (*batchCmd) Name() string     { return "batch" }
func (*batchCmd) Synopsis() string { return "process a folder of statements or a scenario pack" }
func (*batchCmd) Usage() string {
	return `tcs batch [-reset] [-workers <n>] [-json] <dir>

  Processes every statement of a folder. When the folder holds a
  manifest.json, it is read as a scenario pack: each scenario is read from
  scenarios/<id>/input/input_report.json and compared with
  scenarios/<id>/expected/expected_outcomes.json when present. Otherwise
  every *.json file of the folder is processed, in file name order.

  Statements of one account are processed in order; accounts are processed
  concurrently.
`
}

func (c *batchCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.reset, "reset", false, "Clear the whole state before processing")
	f.IntVar(&c.workers, "workers", 0, "Number of accounts processed concurrently. Defaults to the configuration.")
	f.BoolVar(&c.json, "json", false, "Print the summary as JSON")
}

func (c *batchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one folder is required")
		return subcommands.ExitUsageError
	}
	dir := f.Arg(0)

	var items []taxclean.BatchItem
	var err error
	if _, serr := os.Stat(filepath.Join(dir, "manifest.json")); serr == nil {
		items, err = taxclean.LoadManifest(dir)
	} else {
		items, err = taxclean.LoadDir(dir)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	workers := c.workers
	if workers <= 0 {
		workers = a.cfg.Workers
	}
	summary, err := a.pipeline.ProcessBatch(ctx, items, taxclean.BatchOptions{Workers: workers, Reset: c.reset})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := a.save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving state: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.json {
		if err := printJSON(summary); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}
	printMarkdown(renderer.Batch(summary))
	return subcommands.ExitSuccess
}
