package taxclean

import (
	"fmt"
	"time"
)

// DefaultActor is the reviewer recorded when none is given.
const DefaultActor = "ops_user"

// DefaultFlagNotes are the review notes recorded when a report is flagged
// without notes.
const DefaultFlagNotes = "Flagged for review"

// TaxReport is the reviewable tax artifact of one account and year. It is
// regenerated each time a new version of a statement for that year is
// derived.
type TaxReport struct {
	ID          string         `json:"id"`
	AccountID   string         `json:"account_id"`
	Year        TaxYear        `json:"year"`
	ClientName  string         `json:"client_name"`
	Status      WorkflowStatus `json:"status"`
	Data        *TaxData       `json:"tax_data"`
	SourceFiles []string       `json:"source_files"`
	VersionID   string         `json:"report_version_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	ApprovedBy  string         `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time     `json:"approved_at,omitempty"`
	RejectedBy  string         `json:"rejected_by,omitempty"`
	RejectedAt  *time.Time     `json:"rejected_at,omitempty"`
	ReviewNotes string         `json:"review_notes,omitempty"`
	// Version counts the generations of this report, starting at 1.
	Version int `json:"version"`
}

func taxReportKey(accountID string, year TaxYear) string {
	return fmt.Sprintf("%s_%d", accountID, year)
}

// Liability returns the computed tax liability, zero when there is no data.
func (r *TaxReport) Liability() Money {
	if r.Data == nil {
		return Money{}
	}
	return r.Data.AnnualSummary.ComputedTaxLiability
}

// TaxReportInput is what the pipeline hands to the store to (re)generate a
// tax report.
type TaxReportInput struct {
	AccountID  string
	Year       TaxYear
	ClientName string
	Data       *TaxData
	SourceFile string
	VersionID  string
}

// regenerate returns the report generated from in, replacing prev when it
// exists. Regeneration restarts the review: approval and rejection are
// cleared.
func (in TaxReportInput) regenerate(prev *TaxReport, id string, now time.Time) TaxReport {
	r := TaxReport{
		ID:          id,
		AccountID:   in.AccountID,
		Year:        in.Year,
		ClientName:  in.ClientName,
		Status:      Draft,
		Data:        in.Data,
		SourceFiles: []string{},
		VersionID:   in.VersionID,
		GeneratedAt: now,
		Version:     1,
	}
	if in.SourceFile != "" {
		r.SourceFiles = append(r.SourceFiles, in.SourceFile)
	}
	if prev != nil {
		r.ID = prev.ID
		r.Version = prev.Version + 1
	}
	return r
}

// TaxReportFilter selects tax reports. Zero fields match everything.
type TaxReportFilter struct {
	Status    WorkflowStatus
	Year      TaxYear
	AccountID string
}

func (f TaxReportFilter) match(r *TaxReport) bool {
	return (f.Status == 0 || r.Status == f.Status) &&
		(f.Year == 0 || r.Year == f.Year) &&
		(f.AccountID == "" || r.AccountID == f.AccountID)
}

// Transition is a requested workflow change of a tax report.
type Transition struct {
	ReportID string
	To       WorkflowStatus
	Actor    string
	Notes    string
}

// canTransition reports whether a report in status from may move to to.
// Decisions are taken on draft or flagged reports; flagging is always
// allowed.
func canTransition(from, to WorkflowStatus) bool {
	switch to {
	case Approved, Rejected:
		return from == Draft || from == NeedsReview
	case NeedsReview:
		return true
	default:
		return false
	}
}

// apply returns r after the transition t at time now.
func (t Transition) apply(r TaxReport, now time.Time) (TaxReport, error) {
	if !canTransition(r.Status, t.To) {
		return r, fmt.Errorf("%s report %s cannot become %s: %w", r.Status, r.ID, t.To, ErrInvalidTransition)
	}
	actor := t.Actor
	if actor == "" {
		actor = DefaultActor
	}
	r.Status = t.To
	switch t.To {
	case Approved:
		r.ApprovedBy, r.ApprovedAt = actor, &now
		r.RejectedBy, r.RejectedAt = "", nil
		r.ReviewNotes = t.Notes
	case Rejected:
		r.RejectedBy, r.RejectedAt = actor, &now
		r.ApprovedBy, r.ApprovedAt = "", nil
		r.ReviewNotes = t.Notes
	case NeedsReview:
		r.ReviewNotes = t.Notes
		if r.ReviewNotes == "" {
			r.ReviewNotes = DefaultFlagNotes
		}
	}
	return r, nil
}

// event returns the audit event type logged for the transition.
func (t Transition) event() EventType {
	switch t.To {
	case Approved:
		return EventTaxReportApproved
	case Rejected:
		return EventTaxReportRejected
	default:
		return EventTaxReportFlagged
	}
}

// TaxReportStats summarizes the tax reports on file.
type TaxReportStats struct {
	Total             int   `json:"total"`
	Draft             int   `json:"draft"`
	Approved          int   `json:"approved"`
	Rejected          int   `json:"rejected"`
	NeedsReview       int   `json:"needs_review"`
	TotalTaxLiability Money `json:"total_tax_liability"`
	TotalClients      int   `json:"total_clients"`
}

// ComputeTaxReportStats tallies reports.
func ComputeTaxReportStats(reports []TaxReport) TaxReportStats {
	var s TaxReportStats
	clients := make(map[string]struct{})
	for i := range reports {
		r := &reports[i]
		s.Total++
		switch r.Status {
		case Draft:
			s.Draft++
		case Approved:
			s.Approved++
		case Rejected:
			s.Rejected++
		case NeedsReview:
			s.NeedsReview++
		}
		s.TotalTaxLiability = s.TotalTaxLiability.Add(r.Liability())
		clients[r.AccountID] = struct{}{}
	}
	s.TotalClients = len(clients)
	return s
}
