package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/taxclean"
	"github.com/etnz/taxclean/renderer"
	"github.com/google/subcommands"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type reportsCmd struct {
	status  string
	year    int
	account string
	json    bool
}

func (*reportsCmd) Name() string     { return "reports" }
func (*reportsCmd) Synopsis() string { return "list the tax reports with their review status" }
func (*reportsCmd) Usage() string {
	return `tcs reports [-status DRAFT|APPROVED|REJECTED|NEEDS_REVIEW] [-year <year>] [-account <id>] [-json]

  Lists the tax reports by account and year, with statistics on the whole set.
`
}

func (c *reportsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.status, "status", "", "Only reports with this status")
	f.IntVar(&c.year, "year", 0, "Only reports of this tax year")
	f.StringVar(&c.account, "account", "", "Only reports of this account")
	f.BoolVar(&c.json, "json", false, "Print the reports as JSON")
}

func (c *reportsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fl := taxclean.TaxReportFilter{Year: taxclean.TaxYear(c.year), AccountID: c.account}
	if c.status != "" {
		var err error
		if fl.Status, err = taxclean.ParseWorkflowStatus(c.status); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
	}
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	list := renderer.TaxReportList{Reports: a.pipeline.TaxReports(fl), Stats: a.pipeline.TaxReportStats()}
	if c.json {
		if err := printJSON(list.Reports); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}
	printMarkdown(renderer.TaxReports(&list))
	return subcommands.ExitSuccess
}

type reportCmd struct {
	json bool
	path string
	html bool
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "show a tax report" }
func (*reportCmd) Usage() string {
	return `tcs report [-json | -path <jsonpath> | -html] <report_id>

  Shows a tax report with its annual summary, monthly breakdown, fee
  schedule, explanations and compliance notes.

  -path extracts a single value from the JSON form of the report.

Usage Examples:
$ tcs report -path '$.tax_data.annual_summary.computed_tax_liability.amount' TR-0001
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "Print the report as JSON")
	f.StringVar(&c.path, "path", "", "Print only the value at this JSONPath expression")
	f.BoolVar(&c.html, "html", false, "Print the report as HTML")
}

func (c *reportCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	r, err := a.pipeline.TaxReport(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	switch {
	case c.path != "":
		err = printPath(&r, c.path)
	case c.json:
		err = printJSON(r)
	case c.html:
		err = printHTML(renderer.TaxReport(&r))
	default:
		printMarkdown(renderer.TaxReport(&r))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// printPath prints the value at path in the JSON form of v. Strings are
// printed bare.
func printPath(v any, path string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	val, err := jsonpath.Get(path, doc)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", path, err)
	}
	switch val := val.(type) {
	case string:
		fmt.Fprintln(stdout, val)
	case json.Number:
		fmt.Fprintln(stdout, val.String())
	case bool:
		fmt.Fprintln(stdout, strconv.FormatBool(val))
	default:
		return printJSON(val)
	}
	return nil
}

// printHTML converts md to HTML.
func printHTML(md string) error {
	var buf bytes.Buffer
	if err := goldmark.New(goldmark.WithExtensions(extension.GFM)).Convert([]byte(md), &buf); err != nil {
		return fmt.Errorf("could not convert to HTML: %w", err)
	}
	_, err := stdout.Write(buf.Bytes())
	return err
}
