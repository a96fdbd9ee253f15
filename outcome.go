package taxclean

import (
	"time"
)

// ClientStep is the identity resolution part of an Outcome.
type ClientStep struct {
	Action   ClientAction            `json:"client_action"`
	Conflict *IdentityConflictDetail `json:"conflict,omitempty"`
}

// TaxStep is the tax derivation part of an Outcome. The full tax data is
// kept with the stored version and the tax report.
type TaxStep struct {
	Status  TaxStatus       `json:"status"`
	Reason  string          `json:"reason,omitempty"`
	Preview *SummaryPreview `json:"summary_preview,omitempty"`
}

// StorageResult is the storage part of an Outcome.
type StorageResult struct {
	Stored bool `json:"stored"`
	// Active is false for versions held for review.
	Active      bool     `json:"active"`
	VersionID   string   `json:"version_id,omitempty"`
	Version     int      `json:"version,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Archived    []string `json:"archived,omitempty"`
	TaxReportID string   `json:"tax_report_id,omitempty"`
}

// Outcome is the complete record of processing one submission. Every step
// is present: a step that did not run says SKIPPED and why.
type Outcome struct {
	RunID          string               `json:"run_id"`
	Source         string               `json:"source,omitempty"`
	AccountID      string               `json:"account_id"`
	Year           TaxYear              `json:"year"`
	Client         ClientStep           `json:"client_resolution"`
	Classification Classification       `json:"report_classification"`
	Validation     ValidationResult     `json:"validation"`
	Reconciliation ReconciliationResult `json:"reconciliation"`
	Tax            TaxStep              `json:"tax_cleaned"`
	Storage        StorageResult        `json:"storage"`
	ExceptionIDs   []string             `json:"exception_ids"`
	OverallStatus  OverallStatus        `json:"overall_status"`
	Error          string               `json:"error,omitempty"`
	ProcessingTime time.Duration        `json:"processing_time_ns"`
}

// overallRules derive the overall status of an outcome, first match wins.
var overallRules = []struct {
	match  func(*Outcome) bool
	status OverallStatus
}{
	{func(o *Outcome) bool {
		return o.Client.Conflict != nil || o.Classification.State == StateConflict
	}, OutcomeConflict},
	{func(o *Outcome) bool { return o.Validation.Status == ValidationFailed }, OutcomeValidationFailed},
	{func(o *Outcome) bool { return o.Reconciliation.Status == ReconciliationMismatch }, OutcomeReconciliationMismatch},
	{func(o *Outcome) bool { return o.Validation.Status == ValidationReviewRequired }, OutcomeReviewRequired},
	{func(o *Outcome) bool { return o.Classification.State == StateDuplicate }, OutcomeDuplicateSkipped},
	{func(*Outcome) bool { return true }, OutcomeSuccess},
}

func overallStatus(o *Outcome) OverallStatus {
	for _, r := range overallRules {
		if r.match(o) {
			return r.status
		}
	}
	return OutcomeSuccess
}

// Succeeded reports whether the outcome needs no attention.
func (o *Outcome) Succeeded() bool {
	return o.OverallStatus == OutcomeSuccess || o.OverallStatus == OutcomeDuplicateSkipped
}
