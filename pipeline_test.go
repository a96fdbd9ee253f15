package taxclean

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func process(p *Pipeline, s *Submission) Outcome {
	return p.Process(context.Background(), s, "test.json")
}

func TestPipeline_New(t *testing.T) {
	p, st := newTestPipeline()
	out := process(p, statement("ACC-1001", 2024))

	assert.Equal(t, OutcomeSuccess, out.OverallStatus)
	assert.True(t, out.Succeeded())
	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, CreateClient, out.Client.Action)
	assert.Equal(t, StateNew, out.Classification.State)
	assert.Equal(t, Validated, out.Validation.Status)
	assert.Equal(t, Reconciled, out.Reconciliation.Status)
	assert.Equal(t, TaxGenerated, out.Tax.Status)
	assert.Equal(t, "$875.00", out.Tax.Preview.EstimatedTaxReserve.String())
	assert.Equal(t, StorageResult{Stored: true, Active: true, VersionID: "RPT-ACC-1001-2024-a3884d-v1", Version: 1, TaxReportID: "TR-0001"}, out.Storage)
	assert.Empty(t, out.ExceptionIDs)

	assert.Equal(t, []EventType{
		EventReportIngested,
		EventValidationCompleted,
		EventReconciliationCompleted,
		EventTaxGenerated,
		EventProcessingCompleted,
	}, eventTypes(p.Events(EventFilter{RunID: "run-1"})))

	c, ok := st.Client("ACC-1001")
	require.True(t, ok)
	assert.Equal(t, 1, c.ReportCount)
	assert.Equal(t, []TaxYear{2024}, c.YearsOnFile)

	r, err := p.TaxReport("TR-0001")
	require.NoError(t, err)
	assert.Equal(t, Draft, r.Status)
	assert.Equal(t, "RPT-ACC-1001-2024-a3884d-v1", r.VersionID)
	assert.Equal(t, []string{"pnl_2024.pdf"}, r.SourceFiles)
	assert.Equal(t, "$875.00", r.Liability().String())
}

func TestPipeline_Duplicate(t *testing.T) {
	p, st := newTestPipeline()
	process(p, statement("ACC-1001", 2024))
	out := process(p, statement("ACC-1001", 2024))

	assert.Equal(t, OutcomeDuplicateSkipped, out.OverallStatus)
	assert.Equal(t, StateDuplicate, out.Classification.State)
	assert.Equal(t, "RPT-ACC-1001-2024-a3884d-v1", out.Classification.DuplicateOf)
	assert.Equal(t, ValidationSkipped, out.Validation.Status)
	assert.Equal(t, ReconciliationSkipped, out.Reconciliation.Status)
	assert.Equal(t, TaxSkipped, out.Tax.Status)
	assert.Nil(t, out.Tax.Preview)
	assert.False(t, out.Storage.Stored)
	assert.Empty(t, out.Storage.TaxReportID)

	assert.Equal(t, []EventType{EventReportIngested, EventDuplicateSkipped}, eventTypes(p.Events(EventFilter{RunID: "run-2"})))
	assert.Len(t, st.AccountVersions("ACC-1001"), 1)
	c, _ := st.Client("ACC-1001")
	assert.Equal(t, 1, c.ReportCount)
}

func TestPipeline_Revision(t *testing.T) {
	p, st := newTestPipeline()
	process(p, statement("ACC-1001", 2024))
	_, err := p.ApproveTaxReport("TR-0001", "dana", "")
	require.NoError(t, err)

	rev := statement("ACC-1001", 2024)
	rev.MonthlyRows[1].NetPnL, rev.MonthlyRows[1].NetCash = N("1700"), N("1700")
	rev.GrandTotals.NetPnL, rev.GrandTotals.NetCash = N("3700"), N("3700")
	rev.Header.ClientDisplayName = "Dana Levi-Cohen"
	out := process(p, rev)

	assert.Equal(t, OutcomeSuccess, out.OverallStatus)
	assert.Equal(t, StateRevision, out.Classification.State)
	assert.Equal(t, UpdateClient, out.Client.Action)
	assert.Equal(t, "RPT-ACC-1001-2024-a3884d-v2", out.Storage.VersionID)
	assert.Equal(t, []string{"RPT-ACC-1001-2024-a3884d-v1"}, out.Storage.Archived)
	assert.Equal(t, "TR-0001", out.Storage.TaxReportID)
	assert.Contains(t, eventTypes(p.Events(EventFilter{RunID: out.RunID})), EventPriorVersionArchived)

	r, _ := p.TaxReport("TR-0001")
	assert.Equal(t, Draft, r.Status, "a regenerated report is reviewed again")
	assert.Equal(t, 2, r.Version)
	assert.Equal(t, "$925.00", r.Liability().String())
	assert.Equal(t, "Dana Levi-Cohen", r.ClientName)

	d, err := p.ClientDetail("ACC-1001")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Client.ReportCount)
	assert.Len(t, d.Client.DisplayNameHistory, 1)
	assert.Len(t, d.Versions, 2)
	require.Len(t, d.ActiveVersions, 1)
	assert.Equal(t, "RPT-ACC-1001-2024-a3884d-v2", d.ActiveVersions[0].ID)
	assert.Len(t, d.TaxReports, 1)

	active, ok := st.ActiveVersion(NewNaturalKey(rev))
	require.True(t, ok)
	assert.Equal(t, 2, active.Version)
}

func TestPipeline_PeriodsOfOneYear(t *testing.T) {
	p, st := newTestPipeline()
	h1 := statement("ACC-9", 2024)
	h1.Header.PeriodEnd = "2024-06-30"
	h2 := statement("ACC-9", 2024)
	h2.Header.PeriodStart = "2024-07-01"
	h2.MonthlyRows[0].Month, h2.MonthlyRows[0].TradeDate = "July", "2024-07-31"
	h2.MonthlyRows[1].Month, h2.MonthlyRows[1].TradeDate = "August", "2024-08-30"

	first, second := process(p, h1), process(p, h2)
	for _, out := range []Outcome{first, second} {
		assert.Equal(t, OutcomeSuccess, out.OverallStatus, out.Error)
		assert.Equal(t, StateNew, out.Classification.State)
		assert.True(t, out.Storage.Active)
	}
	assert.Equal(t, "RPT-ACC-9-2024-b83ce2-v1", first.Storage.VersionID)
	assert.Equal(t, "RPT-ACC-9-2024-693232-v1", second.Storage.VersionID)

	versions := st.AccountVersions("ACC-9")
	require.Len(t, versions, 2)
	for _, v := range versions {
		assert.True(t, v.IsActive, v.ID)
	}
}

func TestPipeline_Concurrent(t *testing.T) {
	p, st := newTestPipeline()
	accounts := []string{"ACC-1001", "ACC-2002"}
	const n = 50

	outs := make([]Outcome, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// every submission is a distinct revision of the same statement.
			s := statement(accounts[i%len(accounts)], 2024)
			net, total := N(fmt.Sprint(1500+i)), N(fmt.Sprint(3500+i))
			s.MonthlyRows[1].NetPnL, s.MonthlyRows[1].NetCash = net, net
			s.GrandTotals.NetPnL, s.GrandTotals.NetCash = total, total
			outs[i] = process(p, s)
		}()
	}
	wg.Wait()

	states := make(map[ReportState]int)
	for _, out := range outs {
		assert.Equal(t, OutcomeSuccess, out.OverallStatus, out.Error)
		states[out.Classification.State]++
	}
	assert.Equal(t, map[ReportState]int{StateNew: 2, StateRevision: n - 2}, states)

	for _, acct := range accounts {
		versions := st.AccountVersions(acct)
		require.Len(t, versions, n/len(accounts))
		seen := make(map[int]bool)
		var active []StoredVersion
		for _, v := range versions {
			seen[v.Version] = true
			if v.IsActive {
				active = append(active, v)
			}
		}
		assert.Len(t, seen, n/len(accounts), "version numbers are unique")
		require.Len(t, active, 1)
		assert.Equal(t, n/len(accounts), active[0].Version, "the last version is active")

		r, ok := st.TaxReportFor(acct, 2024)
		require.True(t, ok)
		assert.Equal(t, n/len(accounts), r.Version)
	}
}

func TestPipeline_YearConflict(t *testing.T) {
	p, st := newTestPipeline()
	process(p, statement("ACC-1001", 2024))

	s := statement("ACC-1001", 2024)
	s.Header.Year = 2025
	out := process(p, s)

	assert.Equal(t, OutcomeConflict, out.OverallStatus)
	assert.Equal(t, StateConflict, out.Classification.State)
	assert.Equal(t, TaxBlocked, out.Tax.Status)
	assert.True(t, out.Storage.Stored)
	assert.False(t, out.Storage.Active)
	assert.Equal(t, "Held for review: YEAR_MISMATCH with RPT-ACC-1001-2024-a3884d-v1", out.Storage.Reason)
	assert.Empty(t, out.Storage.TaxReportID)

	// the 2024 version stays active.
	v1, _ := st.Version("RPT-ACC-1001-2024-a3884d-v1")
	assert.True(t, v1.IsActive)
	assert.Len(t, p.TaxReports(TaxReportFilter{}), 1)
	c, _ := st.Client("ACC-1001")
	assert.Equal(t, []TaxYear{2024}, c.YearsOnFile)
}

func TestPipeline_IdentityConflict(t *testing.T) {
	p, st := newTestPipeline()
	process(p, statement("ACC-1001", 2024))

	s := statement("ACC-1001", 2023)
	s.Header.Username = "mallory"
	s.Header.ClientDisplayName = "Someone Else"
	out := process(p, s)

	assert.Equal(t, OutcomeConflict, out.OverallStatus)
	assert.Equal(t, ManualReviewRequired, out.Client.Action)
	require.NotNil(t, out.Client.Conflict)
	assert.Equal(t, "mallory", out.Client.Conflict.IncomingUsername)
	assert.Equal(t, TaxBlocked, out.Tax.Status)
	assert.False(t, out.Storage.Active)

	excs := p.Exceptions(ExceptionFilter{Type: IdentityConflict})
	require.Len(t, excs, 1)
	assert.Equal(t, SeverityHigh, excs[0].Severity)
	assert.Equal(t, []string{excs[0].ID}, out.ExceptionIDs)

	c, _ := st.Client("ACC-1001")
	assert.Equal(t, "Dana Levi", c.DisplayName)
	assert.Equal(t, "dlevi", c.Username)
	assert.Equal(t, 1, c.ReportCount)
	_, found := st.TaxReportFor("ACC-1001", 2023)
	assert.False(t, found)
}

func TestPipeline_ValidationFailed(t *testing.T) {
	p, st := newTestPipeline()
	s := statement("ACC-1001", 2024)
	s.GrandTotals = nil
	out := process(p, s)

	assert.Equal(t, OutcomeValidationFailed, out.OverallStatus)
	assert.Equal(t, ValidationFailed, out.Validation.Status)
	assert.Equal(t, ReconciliationPartial, out.Reconciliation.Status)
	assert.Equal(t, TaxBlocked, out.Tax.Status)
	assert.True(t, out.Storage.Stored)
	assert.Empty(t, out.Storage.TaxReportID)

	require.Len(t, out.ExceptionIDs, 1)
	e, ok := st.Exception(out.ExceptionIDs[0])
	require.True(t, ok)
	assert.Equal(t, MissingGrandTotals, e.Type)
	assert.Equal(t, ExceptionOpen, e.Status)
	assert.Equal(t, "run-1", e.RunID)
}

func TestPipeline_Mismatch(t *testing.T) {
	p, _ := newTestPipeline()
	s := statement("ACC-1001", 2024)
	s.GrandTotals.NetPnL = N("3500.05")
	out := process(p, s)

	assert.Equal(t, OutcomeReconciliationMismatch, out.OverallStatus)
	assert.Equal(t, TaxGenerated, out.Tax.Status)
	excs := p.Exceptions(ExceptionFilter{Type: TotalsMismatch("net_pnl")})
	require.Len(t, excs, 1)
	assert.Equal(t, SeverityHigh, excs[0].Severity)
	assert.Equal(t, "0.05", excs[0].Context["difference"])

	_, err := p.ResolveException(excs[0].ID, Accept, "rounding at the broker")
	require.NoError(t, err)
	assert.Empty(t, p.Exceptions(ExceptionFilter{Status: ExceptionOpen}))
}

func TestPipeline_Errors(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		s    *Submission
		opts []Option
	}{
		{"no submission", context.Background(), nil, nil},
		{"no header", context.Background(), &Submission{}, nil},
		{"no account", context.Background(), &Submission{Header: &Header{Year: 2024}}, nil},
		{"canceled", canceled, statement("ACC-1001", 2024), nil},
		{"timeout", context.Background(), statement("ACC-1001", 2024), []Option{WithTimeout(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, st := newTestPipeline(tt.opts...)
			out := p.Process(tt.ctx, tt.s, "broken.json")

			assert.Equal(t, OutcomeError, out.OverallStatus)
			assert.NotEmpty(t, out.Error)
			assert.False(t, out.Storage.Stored)
			assert.Equal(t, ValidationSkipped, out.Validation.Status)
			assert.Equal(t, ReconciliationSkipped, out.Reconciliation.Status)
			assert.Equal(t, TaxSkipped, out.Tax.Status)

			events := st.Events(EventFilter{})
			require.Len(t, events, 1)
			assert.Equal(t, EventProcessingError, events[0].Type)
			assert.Equal(t, "broken.json", events[0].Details["source"])
			assert.Empty(t, st.Clients())
		})
	}
}

func TestPipeline_Workflow(t *testing.T) {
	p, _ := newTestPipeline()
	process(p, statement("ACC-1001", 2024))

	r, err := p.FlagTaxReport("TR-0001", "", "")
	require.NoError(t, err)
	assert.Equal(t, NeedsReview, r.Status)
	assert.Equal(t, DefaultFlagNotes, r.ReviewNotes)

	r, err = p.RejectTaxReport("TR-0001", "dana", "wrong year")
	require.NoError(t, err)
	assert.Equal(t, Rejected, r.Status)
	assert.Equal(t, "dana", r.RejectedBy)

	_, err = p.ApproveTaxReport("TR-0001", "dana", "")
	assert.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)

	_, err = p.ApproveTaxReport("TR-0042", "dana", "")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	events := p.Events(EventFilter{Type: EventTaxReportRejected})
	require.Len(t, events, 1)
	assert.Equal(t, "TR-0001", events[0].Details["report_id"])
	assert.Equal(t, "wrong year", events[0].Details["notes"])

	stats := p.TaxReportStats()
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.TotalClients)
}

func TestPipeline_Reset(t *testing.T) {
	p, st := newTestPipeline()
	process(p, statement("ACC-1001", 2024))
	s := statement("ACC-2002", 2024)
	s.GrandTotals = nil
	process(p, s)

	p.Reset()
	assert.Empty(t, p.Clients())
	assert.Empty(t, p.TaxReports(TaxReportFilter{}))
	assert.Empty(t, p.Exceptions(ExceptionFilter{}))
	assert.Empty(t, p.Events(EventFilter{}))
	assert.Empty(t, st.AccountVersions("ACC-1001"))

	_, err := p.ClientDetail("ACC-1001")
	assert.ErrorIs(t, err, ErrNotFound)

	out := process(p, statement("ACC-1001", 2024))
	assert.Equal(t, StateNew, out.Classification.State)
	assert.Equal(t, "TR-0001", out.Storage.TaxReportID)
}

func TestPipeline_Logging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p, _ := newTestPipeline(WithLogger(zap.New(core)))
	process(p, statement("ACC-1001", 2024))
	p.Process(context.Background(), &Submission{}, "broken.json")

	processed := logs.FilterMessage("submission processed").All()
	require.Len(t, processed, 2)
	fields := processed[0].ContextMap()
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "ACC-1001", fields["account_id"])
	assert.Equal(t, "SUCCESS", fields["status"])
	assert.Equal(t, "ERROR", processed[1].ContextMap()["status"])

	failed := logs.FilterMessage("submission failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
}
