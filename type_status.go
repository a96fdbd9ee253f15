package taxclean

import (
	"fmt"
	"slices"
)

// Every status of the pipeline is a small closed enumeration. The zero value
// of each is reserved for "unknown" so that a forgotten assignment is visible.

func enumString(names []string, i int) string {
	if i <= 0 || i >= len(names) {
		return "UNKNOWN"
	}
	return names[i]
}

func enumParse[E ~int](kind string, names []string, s string) (E, error) {
	i := slices.Index(names, s)
	if i <= 0 {
		return 0, fmt.Errorf("unknown %s: %q", kind, s)
	}
	return E(i), nil
}

// ReportState is the classification of a submission against stored history.
type ReportState int

const (
	_ ReportState = iota
	StateNew
	StateDuplicate
	StateRevision
	StateConflict
)

var reportStateNames = []string{"", "NEW", "DUPLICATE", "REVISION", "CONFLICT"}

func (s ReportState) String() string { return enumString(reportStateNames, int(s)) }

// ParseReportState parses a string into a ReportState.
func ParseReportState(s string) (ReportState, error) {
	return enumParse[ReportState]("report state", reportStateNames, s)
}

func (s ReportState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *ReportState) UnmarshalText(b []byte) (err error) {
	*s, err = ParseReportState(string(b))
	return
}

// ValidationStatus is the outcome of structural and numeric validation.
type ValidationStatus int

const (
	_ ValidationStatus = iota
	Validated
	ValidationFailed
	ValidationReviewRequired
	ValidationSkipped
)

var validationStatusNames = []string{"", "VALIDATED", "FAILED", "REVIEW_REQUIRED", "SKIPPED"}

func (s ValidationStatus) String() string { return enumString(validationStatusNames, int(s)) }

// ParseValidationStatus parses a string into a ValidationStatus.
func ParseValidationStatus(s string) (ValidationStatus, error) {
	return enumParse[ValidationStatus]("validation status", validationStatusNames, s)
}

func (s ValidationStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *ValidationStatus) UnmarshalText(b []byte) (err error) {
	*s, err = ParseValidationStatus(string(b))
	return
}

// ReconciliationStatus is the outcome of the monthly against annual cross-check.
type ReconciliationStatus int

const (
	_ ReconciliationStatus = iota
	Reconciled
	ReconciliationMismatch
	ReconciliationPartial
	ReconciliationSkipped
)

var reconciliationStatusNames = []string{"", "RECONCILED", "MISMATCH", "PARTIAL", "SKIPPED"}

func (s ReconciliationStatus) String() string { return enumString(reconciliationStatusNames, int(s)) }

// ParseReconciliationStatus parses a string into a ReconciliationStatus.
func ParseReconciliationStatus(s string) (ReconciliationStatus, error) {
	return enumParse[ReconciliationStatus]("reconciliation status", reconciliationStatusNames, s)
}

func (s ReconciliationStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *ReconciliationStatus) UnmarshalText(b []byte) (err error) {
	*s, err = ParseReconciliationStatus(string(b))
	return
}

// TaxStatus is the outcome of tax derivation.
type TaxStatus int

const (
	_ TaxStatus = iota
	TaxGenerated
	TaxBlocked
	TaxSkipped
)

var taxStatusNames = []string{"", "GENERATED", "BLOCKED", "SKIPPED"}

func (s TaxStatus) String() string { return enumString(taxStatusNames, int(s)) }

// ParseTaxStatus parses a string into a TaxStatus.
func ParseTaxStatus(s string) (TaxStatus, error) {
	return enumParse[TaxStatus]("tax status", taxStatusNames, s)
}

func (s TaxStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *TaxStatus) UnmarshalText(b []byte) (err error) {
	*s, err = ParseTaxStatus(string(b))
	return
}

// WorkflowStatus is the review state of a tax report.
type WorkflowStatus int

const (
	_ WorkflowStatus = iota
	Draft
	Approved
	Rejected
	NeedsReview
)

var workflowStatusNames = []string{"", "DRAFT", "APPROVED", "REJECTED", "NEEDS_REVIEW"}

func (s WorkflowStatus) String() string { return enumString(workflowStatusNames, int(s)) }

// ParseWorkflowStatus parses a string into a WorkflowStatus.
func ParseWorkflowStatus(s string) (WorkflowStatus, error) {
	return enumParse[WorkflowStatus]("workflow status", workflowStatusNames, s)
}

func (s WorkflowStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *WorkflowStatus) UnmarshalText(b []byte) (err error) {
	*s, err = ParseWorkflowStatus(string(b))
	return
}

// OverallStatus summarizes the processing of one submission.
type OverallStatus int

const (
	_ OverallStatus = iota
	OutcomeSuccess
	OutcomeConflict
	OutcomeValidationFailed
	OutcomeReconciliationMismatch
	OutcomeReviewRequired
	OutcomeDuplicateSkipped
	OutcomeError
)

var overallStatusNames = []string{"", "SUCCESS", "CONFLICT", "VALIDATION_FAILED",
	"RECONCILIATION_MISMATCH", "REVIEW_REQUIRED", "DUPLICATE_SKIPPED", "ERROR"}

// OverallStatuses lists every overall status, in report order.
func OverallStatuses() []OverallStatus {
	return []OverallStatus{OutcomeSuccess, OutcomeConflict, OutcomeValidationFailed,
		OutcomeReconciliationMismatch, OutcomeReviewRequired, OutcomeDuplicateSkipped, OutcomeError}
}

func (s OverallStatus) String() string { return enumString(overallStatusNames, int(s)) }

// ParseOverallStatus parses a string into an OverallStatus.
func ParseOverallStatus(s string) (OverallStatus, error) {
	return enumParse[OverallStatus]("overall status", overallStatusNames, s)
}

func (s OverallStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *OverallStatus) UnmarshalText(b []byte) (err error) {
	*s, err = ParseOverallStatus(string(b))
	return
}

// Severity ranks exceptions for triage.
type Severity int

const (
	_ Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

var severityNames = []string{"", "LOW", "MEDIUM", "HIGH"}

func (s Severity) String() string { return enumString(severityNames, int(s)) }

// ParseSeverity parses a string into a Severity.
func ParseSeverity(s string) (Severity, error) {
	return enumParse[Severity]("severity", severityNames, s)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *Severity) UnmarshalText(b []byte) (err error) {
	*s, err = ParseSeverity(string(b))
	return
}

// ExceptionStatus tracks whether an exception still needs attention.
type ExceptionStatus int

const (
	_ ExceptionStatus = iota
	ExceptionOpen
	ExceptionResolved
)

var exceptionStatusNames = []string{"", "OPEN", "RESOLVED"}

func (s ExceptionStatus) String() string { return enumString(exceptionStatusNames, int(s)) }

// ParseExceptionStatus parses a string into an ExceptionStatus.
func ParseExceptionStatus(s string) (ExceptionStatus, error) {
	return enumParse[ExceptionStatus]("exception status", exceptionStatusNames, s)
}

func (s ExceptionStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *ExceptionStatus) UnmarshalText(b []byte) (err error) {
	*s, err = ParseExceptionStatus(string(b))
	return
}

// Resolution is the human decision that closes an exception.
type Resolution int

const (
	_ Resolution = iota
	Accept
	Reject
)

var resolutionNames = []string{"", "ACCEPT", "REJECT"}

func (r Resolution) String() string { return enumString(resolutionNames, int(r)) }

// ParseResolution parses a string into a Resolution.
func ParseResolution(s string) (Resolution, error) {
	return enumParse[Resolution]("resolution", resolutionNames, s)
}

func (r Resolution) MarshalText() ([]byte, error) { return []byte(r.String()), nil }
func (r *Resolution) UnmarshalText(b []byte) (err error) {
	*r, err = ParseResolution(string(b))
	return
}

// ClientAction is what the identity resolver did with the client registry.
type ClientAction int

const (
	_ ClientAction = iota
	CreateClient
	UpdateClient
	ManualReviewRequired
)

var clientActionNames = []string{"", "CREATE_CLIENT", "UPDATE_CLIENT", "MANUAL_REVIEW_REQUIRED"}

func (a ClientAction) String() string { return enumString(clientActionNames, int(a)) }

// ParseClientAction parses a string into a ClientAction.
func ParseClientAction(s string) (ClientAction, error) {
	return enumParse[ClientAction]("client action", clientActionNames, s)
}

func (a ClientAction) MarshalText() ([]byte, error) { return []byte(a.String()), nil }
func (a *ClientAction) UnmarshalText(b []byte) (err error) {
	*a, err = ParseClientAction(string(b))
	return
}
