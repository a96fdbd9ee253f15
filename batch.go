package taxclean

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchItem is one submission of a batch.
type BatchItem struct {
	ID         string
	Title      string
	Group      string
	Submission *Submission
	Expected   *Expected
	// Err is set when the submission could not be loaded.
	Err error
}

// BatchOptions configures ProcessBatch.
type BatchOptions struct {
	// Workers bounds the number of accounts processed at the same time.
	Workers int
	// Reset clears the state before the batch runs.
	Reset bool
}

// BatchResult is the result of one item.
type BatchResult struct {
	ID             string               `json:"id"`
	Title          string               `json:"title,omitempty"`
	Group          string               `json:"group,omitempty"`
	AccountID      string               `json:"account_id,omitempty"`
	Year           TaxYear              `json:"year,omitempty"`
	RunID          string               `json:"run_id,omitempty"`
	ReportState    ReportState          `json:"report_state,omitempty"`
	Validation     ValidationStatus     `json:"validation_status,omitempty"`
	Reconciliation ReconciliationStatus `json:"reconciliation_status,omitempty"`
	Tax            TaxStatus            `json:"tax_cleaned_status,omitempty"`
	ClientAction   ClientAction         `json:"client_action,omitempty"`
	OverallStatus  OverallStatus        `json:"overall_status"`
	Exceptions     int                  `json:"exceptions"`
	TaxReportID    string               `json:"tax_report_id,omitempty"`
	ProcessingTime time.Duration        `json:"processing_time_ns"`
	Matches        *ExpectationMatch    `json:"matches_expected,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// GroupSummary counts the results of one scenario group.
type GroupSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// ClientBatchSummary gathers the items of one account.
type ClientBatchSummary struct {
	ClientName string          `json:"client_name"`
	Years      []TaxYear       `json:"years"`
	Sources    []string        `json:"sources"`
	Statuses   []OverallStatus `json:"statuses"`
}

// BatchSummary is the tally of a batch run.
type BatchSummary struct {
	Total             int                            `json:"total"`
	Processed         int                            `json:"processed"`
	States            map[ReportState]int            `json:"counts"`
	Validation        map[ValidationStatus]int       `json:"validation"`
	Reconciliation    map[ReconciliationStatus]int   `json:"reconciliation"`
	Tax               map[TaxStatus]int              `json:"tax_cleaned"`
	Overall           map[OverallStatus]int          `json:"overall_status"`
	ExceptionsCreated int                            `json:"exceptions_created"`
	Groups            map[string]*GroupSummary       `json:"groups"`
	Clients           map[string]*ClientBatchSummary `json:"client_summary"`
	Results           []BatchResult                  `json:"results"`
	Runtime           time.Duration                  `json:"runtime_ns"`
}

func newBatchSummary(total int) *BatchSummary {
	b := &BatchSummary{
		Total:          total,
		States:         make(map[ReportState]int),
		Validation:     make(map[ValidationStatus]int),
		Reconciliation: make(map[ReconciliationStatus]int),
		Tax:            make(map[TaxStatus]int),
		Overall:        make(map[OverallStatus]int),
		Groups:         make(map[string]*GroupSummary),
		Clients:        make(map[string]*ClientBatchSummary),
		Results:        make([]BatchResult, 0, total),
	}
	for _, s := range []ReportState{StateNew, StateDuplicate, StateRevision, StateConflict} {
		b.States[s] = 0
	}
	for _, s := range []ValidationStatus{Validated, ValidationFailed, ValidationReviewRequired, ValidationSkipped} {
		b.Validation[s] = 0
	}
	for _, s := range []ReconciliationStatus{Reconciled, ReconciliationMismatch, ReconciliationPartial, ReconciliationSkipped} {
		b.Reconciliation[s] = 0
	}
	for _, s := range []TaxStatus{TaxGenerated, TaxBlocked, TaxSkipped} {
		b.Tax[s] = 0
	}
	for _, s := range OverallStatuses() {
		b.Overall[s] = 0
	}
	return b
}

// add tallies one result.
func (b *BatchSummary) add(it *BatchItem, o *Outcome) {
	r := BatchResult{ID: it.ID, Title: it.Title, Group: it.Group}
	b.Processed++
	if o == nil {
		r.OverallStatus = OutcomeError
		r.Error = it.Err.Error()
	} else {
		r.AccountID, r.Year, r.RunID = o.AccountID, o.Year, o.RunID
		r.ReportState = o.Classification.State
		r.Validation = o.Validation.Status
		r.Reconciliation = o.Reconciliation.Status
		r.Tax = o.Tax.Status
		r.ClientAction = o.Client.Action
		r.OverallStatus = o.OverallStatus
		r.Exceptions = len(o.ExceptionIDs)
		r.TaxReportID = o.Storage.TaxReportID
		r.ProcessingTime = o.ProcessingTime
		r.Error = o.Error
		if it.Expected != nil {
			m := it.Expected.Matches(o)
			r.Matches = &m
		}
		if r.ReportState != 0 {
			b.States[r.ReportState]++
		}
		if r.Validation != 0 {
			b.Validation[r.Validation]++
		}
		if r.Reconciliation != 0 {
			b.Reconciliation[r.Reconciliation]++
		}
		if r.Tax != 0 {
			b.Tax[r.Tax]++
		}
		b.ExceptionsCreated += r.Exceptions

		if o.AccountID != "" {
			c, ok := b.Clients[o.AccountID]
			if !ok {
				c = &ClientBatchSummary{Years: []TaxYear{}, Sources: []string{}, Statuses: []OverallStatus{}}
				b.Clients[o.AccountID] = c
			}
			if h := it.Submission.Header; h != nil && h.ClientDisplayName != "" {
				c.ClientName = h.ClientDisplayName
			}
			if !slices.Contains(c.Years, o.Year) {
				c.Years = append(c.Years, o.Year)
				slices.Sort(c.Years)
			}
			c.Sources = append(c.Sources, it.ID)
			c.Statuses = append(c.Statuses, o.OverallStatus)
		}
	}
	b.Overall[r.OverallStatus]++

	if it.Group != "" {
		g, ok := b.Groups[it.Group]
		if !ok {
			g = &GroupSummary{}
			b.Groups[it.Group] = g
		}
		g.Total++
		if r.OverallStatus == OutcomeSuccess || r.OverallStatus == OutcomeDuplicateSkipped {
			g.Success++
		} else {
			g.Failed++
		}
	}
	b.Results = append(b.Results, r)
}

// ProcessBatch runs every item through the pipeline. Items of one account
// are processed in input order; accounts run concurrently, at most
// o.Workers at a time. Results are reported in input order.
func (p *Pipeline) ProcessBatch(ctx context.Context, items []BatchItem, o BatchOptions) (*BatchSummary, error) {
	start := time.Now()
	if o.Reset {
		p.Reset()
	}
	workers := o.Workers
	if workers <= 0 {
		workers = 1
	}

	// group item indexes by account, keeping the first-seen order.
	var accounts []string
	byAccount := make(map[string][]int)
	for i := range items {
		acct := ""
		if s := items[i].Submission; s != nil {
			acct = s.AccountID()
		}
		if _, ok := byAccount[acct]; !ok {
			accounts = append(accounts, acct)
		}
		byAccount[acct] = append(byAccount[acct], i)
	}

	outcomes := make([]*Outcome, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, acct := range accounts {
		g.Go(func() error {
			for _, i := range byAccount[acct] {
				if err := gctx.Err(); err != nil {
					return err
				}
				it := &items[i]
				if it.Err != nil || it.Submission == nil {
					continue
				}
				out := p.Process(gctx, it.Submission, it.ID)
				outcomes[i] = &out
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch interrupted: %w", err)
	}

	b := newBatchSummary(len(items))
	for i := range items {
		it := &items[i]
		if outcomes[i] == nil && it.Err == nil {
			it.Err = fmt.Errorf("%s: no submission", it.ID)
		}
		b.add(it, outcomes[i])
	}
	b.Runtime = time.Since(start)
	p.log.Info("batch processed",
		zap.Int("total", b.Total),
		zap.Int("exceptions", b.ExceptionsCreated),
		zap.Int("workers", workers),
		zap.Duration("elapsed", b.Runtime))
	return b, nil
}
