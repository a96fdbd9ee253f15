package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/taxclean"
	"github.com/google/subcommands"
)

type eventsCmd struct {
	account string
	typ     string
	run     string
}

func (*eventsCmd) Name() string     { return "events" }
func (*eventsCmd) Synopsis() string { return "print the audit trail" }
func (*eventsCmd) Usage() string {
	return `tcs events [-account <id>] [-type <event_type>] [-run <run_id>]

  Prints the audit events as JSON lines, oldest first.
`
}

func (c *eventsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Only events of this account")
	f.StringVar(&c.typ, "type", "", "Only events of this type, for instance REPORT_INGESTED")
	f.StringVar(&c.run, "run", "", "Only events of this run")
}

func (c *eventsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	events := a.pipeline.Events(taxclean.EventFilter{AccountID: c.account, Type: taxclean.EventType(c.typ), RunID: c.run})
	for _, e := range events {
		if err := printJSONLine(e); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}
