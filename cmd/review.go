package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/taxclean"
	"github.com/google/subcommands"
)

// reviewCmd moves a tax report through the review workflow. The same command
// serves approve, reject and flag.
type reviewCmd struct {
	to    string
	actor string
	notes string
}

func (c *reviewCmd) Name() string { return c.to }
func (c *reviewCmd) Synopsis() string {
	switch c.to {
	case "approve":
		return "approve a tax report"
	case "reject":
		return "reject a tax report"
	}
	return "send a tax report back to review"
}
func (c *reviewCmd) Usage() string {
	return fmt.Sprintf(`tcs %s [-actor <name>] [-notes <text>] <report_id>

  Reports can be approved or rejected while DRAFT or NEEDS_REVIEW. Any
  report can be flagged back to NEEDS_REVIEW. Every move is written to the
  audit trail.
`, c.to)
}

func (c *reviewCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.actor, "actor", taxclean.DefaultActor, "Reviewer recorded with the decision")
	f.StringVar(&c.notes, "notes", "", "Review notes")
}

func (c *reviewCmd) move(p *taxclean.Pipeline, id string) (taxclean.TaxReport, error) {
	switch c.to {
	case "approve":
		return p.ApproveTaxReport(id, c.actor, c.notes)
	case "reject":
		return p.RejectTaxReport(id, c.actor, c.notes)
	}
	return p.FlagTaxReport(id, c.actor, c.notes)
}

func (c *reviewCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one report id is required")
		return subcommands.ExitUsageError
	}
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	r, err := c.move(a.pipeline, f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := a.save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving state: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "Tax report %s is now %s\n", r.ID, r.Status)
	return subcommands.ExitSuccess
}
