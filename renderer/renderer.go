// Package renderer renders the pipeline results as Markdown.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
	"time"

	"github.com/etnz/taxclean"
)

//go:embed templates/*.md
var templateFS embed.FS

var templates = func() fs.FS {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}()

var funcs = template.FuncMap{
	"join": strings.Join,
	"cell": func(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ") },
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format("2006-01-02 15:04")
	},
	"datep": func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format("2006-01-02 15:04")
	},
	"pct": func(p *taxclean.Percent) string {
		if p == nil {
			return "n/a"
		}
		return p.String()
	},
	"check": func(b bool) string {
		if b {
			return "✅"
		}
		return "❌"
	},
	"years": func(ys []taxclean.TaxYear) string {
		s := make([]string, len(ys))
		for i, y := range ys {
			s[i] = y.String()
		}
		return strings.Join(s, ", ")
	},
	"dash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
}

// Outcome renders the result of processing one submission.
func Outcome(o *taxclean.Outcome) string {
	partials := map[string]string{
		"outcome_steps":      "outcome_steps.md",
		"outcome_validation": "outcome_validation.md",
		"outcome_reconcile":  "outcome_reconcile.md",
	}
	return renderTemplate("outcome", "outcome.md", partials, o)
}

// Batch renders the summary of a batch run.
func Batch(b *taxclean.BatchSummary) string {
	partials := map[string]string{
		"batch_counts":  "batch_counts.md",
		"batch_results": "batch_results.md",
	}
	return renderTemplate("batch", "batch.md", partials, b)
}

// Clients renders the client registry.
func Clients(clients []taxclean.Client) string {
	return renderTemplate("clients", "clients.md", nil, clients)
}

// ClientDetail renders one client with its history.
func ClientDetail(d *taxclean.ClientDetail) string {
	partials := map[string]string{
		"client_versions": "client_versions.md",
		"report_list":     "reports_table.md",
		"exception_list":  "exceptions_table.md",
		"client_events":   "client_events.md",
	}
	return renderTemplate("client", "client.md", partials, d)
}

// Exceptions renders a list of exceptions.
func Exceptions(excs []taxclean.Exception) string {
	partials := map[string]string{"exception_list": "exceptions_table.md"}
	return renderTemplate("exceptions", "exceptions.md", partials, excs)
}

// TaxReportList is the data rendered by TaxReports.
type TaxReportList struct {
	Reports []taxclean.TaxReport
	Stats   taxclean.TaxReportStats
}

// TaxReports renders the list of tax reports with their statistics.
func TaxReports(l *TaxReportList) string {
	partials := map[string]string{"report_list": "reports_table.md"}
	return renderTemplate("reports", "reports.md", partials, l)
}

// TaxReport renders one tax report in full.
func TaxReport(r *taxclean.TaxReport) string {
	partials := map[string]string{
		"report_summary":      "report_summary.md",
		"report_monthly":      "report_monthly.md",
		"report_fees":         "report_fees.md",
		"report_explanations": "report_explanations.md",
		"report_compliance":   "report_compliance.md",
	}
	return renderTemplate("report", "report.md", partials, r)
}

// renderTemplate renders a main template that depends on several partials.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Funcs(funcs).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		content, err := fs.ReadFile(templates, file)
		if err != nil {
			return fmt.Sprintf("error reading partial template %q: %v", file, err)
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
