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

type ingestCmd struct {
	source string
	json   bool
}

func (*ingestCmd) Name() string     { return "ingest" }
func (*ingestCmd) Synopsis() string { return "process broker P&L statements" }
func (*ingestCmd) Usage() string {
	return `tcs ingest [-json] [-source <name>] <statement.json>...

  Runs each statement through the pipeline: client resolution,
  classification, validation, reconciliation and tax derivation. Statements
  are processed in the order given and the state file is updated at the end.

  A statement may be the document itself or be wrapped under "payload" or
  "data".

Usage Examples:
$ tcs ingest pnl_2024.json
`
}

func (c *ingestCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.source, "source", "", "Source name recorded with the statements. Defaults to the file name.")
	f.BoolVar(&c.json, "json", false, "Print the outcomes as JSON")
}

func (c *ingestCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one statement file is required")
		return subcommands.ExitUsageError
	}
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	status := subcommands.ExitSuccess
	outcomes := make([]taxclean.Outcome, 0, f.NArg())
	for _, file := range f.Args() {
		s, err := taxclean.ReadSubmission(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			status = subcommands.ExitFailure
			continue
		}
		source := c.source
		if source == "" {
			source = filepath.Base(file)
		}
		out := a.pipeline.Process(ctx, s, source)
		if out.OverallStatus == taxclean.OutcomeError {
			status = subcommands.ExitFailure
		}
		outcomes = append(outcomes, out)
	}

	if err := a.save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving state: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.json {
		if err := printJSON(outcomes); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return status
	}
	for i := range outcomes {
		printMarkdown(renderer.Outcome(&outcomes[i]))
	}
	return status
}
