package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/taxclean/renderer"
	"github.com/google/subcommands"
)

type clientsCmd struct {
	json bool
}

func (*clientsCmd) Name() string     { return "clients" }
func (*clientsCmd) Synopsis() string { return "list the clients on file" }
func (*clientsCmd) Usage() string {
	return `tcs clients [-json]

  Lists the client registry, sorted by account id.
`
}

func (c *clientsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "Print the clients as JSON")
}

func (c *clientsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	clients := a.pipeline.Clients()
	if c.json {
		if err := printJSON(clients); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}
	printMarkdown(renderer.Clients(clients))
	return subcommands.ExitSuccess
}

type clientCmd struct {
	json bool
}

func (*clientCmd) Name() string     { return "client" }
func (*clientCmd) Synopsis() string { return "show a client with its history" }
func (*clientCmd) Usage() string {
	return `tcs client [-json] <account_id>

  Shows a client with its report versions, tax reports, exceptions and
  audit trail.
`
}

func (c *clientCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "Print the client as JSON")
}

func (c *clientCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one account id is required")
		return subcommands.ExitUsageError
	}
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	d, err := a.pipeline.ClientDetail(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.json {
		if err := printJSON(d); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}
	printMarkdown(renderer.ClientDetail(&d))
	return subcommands.ExitSuccess
}
