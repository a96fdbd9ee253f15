package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/taxclean"
	"github.com/etnz/taxclean/renderer"
	"github.com/google/subcommands"
)

type exceptionsCmd struct {
	status   string
	account  string
	typ      string
	severity string
	json     bool
}

func (*exceptionsCmd) Name() string     { return "exceptions" }
func (*exceptionsCmd) Synopsis() string { return "list the exceptions raised for review" }
func (*exceptionsCmd) Usage() string {
	return `tcs exceptions [-status OPEN|RESOLVED] [-account <id>] [-type <type>] [-severity LOW|MEDIUM|HIGH] [-json]

  Lists the exceptions in the order they were raised. Filters combine.
`
}

func (c *exceptionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.status, "status", "", "Only exceptions with this status (OPEN, RESOLVED)")
	f.StringVar(&c.account, "account", "", "Only exceptions of this account")
	f.StringVar(&c.typ, "type", "", "Only exceptions of this type, for instance TOTALS_MISMATCH_NET_PNL")
	f.StringVar(&c.severity, "severity", "", "Only exceptions of this severity (LOW, MEDIUM, HIGH)")
	f.BoolVar(&c.json, "json", false, "Print the exceptions as JSON")
}

func (c *exceptionsCmd) filter() (taxclean.ExceptionFilter, error) {
	fl := taxclean.ExceptionFilter{AccountID: c.account}
	var err error
	if c.status != "" {
		if fl.Status, err = taxclean.ParseExceptionStatus(c.status); err != nil {
			return fl, err
		}
	}
	if c.typ != "" {
		if fl.Type, err = taxclean.ParseExceptionType(c.typ); err != nil {
			return fl, err
		}
	}
	if c.severity != "" {
		if fl.Severity, err = taxclean.ParseSeverity(c.severity); err != nil {
			return fl, err
		}
	}
	return fl, nil
}

func (c *exceptionsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fl, err := c.filter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	excs := a.pipeline.Exceptions(fl)
	if c.json {
		if err := printJSON(excs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}
	printMarkdown(renderer.Exceptions(excs))
	return subcommands.ExitSuccess
}

type resolveCmd struct {
	resolution string
	notes      string
}

func (*resolveCmd) Name() string     { return "resolve" }
func (*resolveCmd) Synopsis() string { return "close an exception with a decision" }
func (*resolveCmd) Usage() string {
	return `tcs resolve -resolution ACCEPT|REJECT [-notes <text>] <exception_id>

  Records the reviewer decision on an exception. The decision is written to
  the audit trail.

Usage Examples:
$ tcs resolve -resolution ACCEPT -notes "broker rounding" EXC-00003
`
}

func (c *resolveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.resolution, "resolution", "", "The decision: ACCEPT or REJECT")
	f.StringVar(&c.notes, "notes", "", "Free text notes recorded with the decision")
}

func (c *resolveCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one exception id is required")
		return subcommands.ExitUsageError
	}
	res, err := taxclean.ParseResolution(c.resolution)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	e, err := a.pipeline.ResolveException(f.Arg(0), res, c.notes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := a.save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving state: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "Exception %s resolved: %s\n", e.ID, e.Resolution)
	return subcommands.ExitSuccess
}
