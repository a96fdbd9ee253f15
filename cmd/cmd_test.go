package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/etnz/taxclean"
	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pnl = `{
  "source_report_type": "COLMEX_PNL",
  "report_header": {
    "account_id": "ACC-2002",
    "year": 2024,
    "client_display_name": "Noa Cohen",
    "username": "ncohen",
    "report_period_start": "2024-01-01",
    "report_period_end": "2024-12-31"
  },
  "summary_totals": {
    "opening_balance": 5000,
    "total_deposit_withdrawal": 0,
    "total_credit_debit": 0,
    "profit_loss": 1000,
    "closing_balance_equity": 6000
  },
  "monthly_rows": [
    {"month": "March", "trade_date": "2024-03-28", "total_comm": 40, "net_pnl": 1000, "net_cash": 1000}
  ],
  "grand_totals_row": {"total_comm": 40, "net_pnl": 1000, "net_cash": 1000}
}`

// setup points the commands to a fresh state file in a temp dir, and
// returns the dir.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TAXCLEAN_LOG_LEVEL", "error")
	t.Setenv(EnvTestingNow, "2025-03-01 09:30:00")

	oldState, oldRaw, oldStdout := *stateFile, *rawOutput, stdout
	*stateFile = filepath.Join(dir, "state.jsonl")
	*rawOutput = true
	t.Cleanup(func() { *stateFile, *rawOutput, stdout = oldState, oldRaw, oldStdout })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pnl.json"), []byte(pnl), 0o644))
	return dir
}

// run executes cmd with args and returns its exit status and output.
func run(t *testing.T, cmd subcommands.Command, args ...string) (subcommands.ExitStatus, string) {
	t.Helper()
	var buf bytes.Buffer
	stdout = &buf
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(fs)
	require.NoError(t, fs.Parse(args))
	return cmd.Execute(context.Background(), fs), buf.String()
}

func TestIngestAndReview(t *testing.T) {
	dir := setup(t)

	status, out := run(t, &ingestCmd{}, "-json", filepath.Join(dir, "pnl.json"))
	require.Equal(t, subcommands.ExitSuccess, status)
	var outcomes []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &outcomes))
	require.Len(t, outcomes, 1)
	assert.Equal(t, "SUCCESS", outcomes[0]["overall_status"])
	assert.Equal(t, "pnl.json", outcomes[0]["source"])

	status, out = run(t, &reportCmd{}, "-path", "$.tax_data.annual_summary.computed_tax_liability.amount", "TR-0001")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Equal(t, "250\n", out)

	status, out = run(t, &reviewCmd{to: "approve"}, "-actor", "dana", "TR-0001")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Equal(t, "Tax report TR-0001 is now APPROVED\n", out)

	status, _ = run(t, &reviewCmd{to: "reject"}, "TR-0001")
	assert.Equal(t, subcommands.ExitFailure, status, "an approved report cannot be rejected")

	status, out = run(t, &reviewCmd{to: "flag"}, "-notes", "fees to double check", "TR-0001")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Equal(t, "Tax report TR-0001 is now NEEDS_REVIEW\n", out)
	status, _ = run(t, &reviewCmd{to: "approve"}, "-actor", "dana", "TR-0001")
	require.Equal(t, subcommands.ExitSuccess, status)

	status, out = run(t, &reportsCmd{}, "-json", "-status", "APPROVED")
	require.Equal(t, subcommands.ExitSuccess, status)
	var reports []taxclean.TaxReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "dana", reports[0].ApprovedBy)

	st, err := taxclean.LoadState(*stateFile)
	require.NoError(t, err)
	r, ok := st.TaxReportFor("ACC-2002", 2024)
	require.True(t, ok)
	assert.Equal(t, taxclean.Approved, r.Status)
}

func TestIngest_Errors(t *testing.T) {
	dir := setup(t)

	status, _ := run(t, &ingestCmd{})
	assert.Equal(t, subcommands.ExitUsageError, status)

	status, _ = run(t, &ingestCmd{}, filepath.Join(dir, "missing.json"))
	assert.Equal(t, subcommands.ExitFailure, status)

	status, _ = run(t, &reportsCmd{}, "-status", "PENDING")
	assert.Equal(t, subcommands.ExitUsageError, status)

	status, _ = run(t, &reportCmd{}, "TR-0042")
	assert.Equal(t, subcommands.ExitFailure, status)
}

func TestReset(t *testing.T) {
	dir := setup(t)
	status, _ := run(t, &ingestCmd{}, filepath.Join(dir, "pnl.json"))
	require.Equal(t, subcommands.ExitSuccess, status)

	status, _ = run(t, &resetCmd{})
	assert.Equal(t, subcommands.ExitUsageError, status)
	st, err := taxclean.LoadState(*stateFile)
	require.NoError(t, err)
	assert.Len(t, st.Clients(), 1)

	status, _ = run(t, &resetCmd{}, "-yes")
	require.Equal(t, subcommands.ExitSuccess, status)
	st, err = taxclean.LoadState(*stateFile)
	require.NoError(t, err)
	assert.Empty(t, st.Clients())
	_, ok := st.TaxReportFor("ACC-2002", 2024)
	assert.False(t, ok)
}

func TestTopic(t *testing.T) {
	setup(t)
	status, out := run(t, &topicCmd{}, "-list")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, "workflow")
	assert.NotContains(t, out, "readme")

	status, out = run(t, &topicCmd{}, "statuses")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.NotEmpty(t, out)
}
