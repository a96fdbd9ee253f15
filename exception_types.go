package taxclean

import (
	"fmt"
	"sort"
	"strings"
)

// ExceptionType is the closed taxonomy of anomalies raised for human review.
// Field-specific types are built from the known field lists only, so every
// value is enumerable with ExceptionTypes.
type ExceptionType string

const (
	MissingReportHeader      ExceptionType = "MISSING_REPORT_HEADER"
	MissingHeaderField       ExceptionType = "MISSING_HEADER_FIELD"
	MissingSummaryTotals     ExceptionType = "MISSING_SUMMARY_TOTALS"
	MissingSummaryField      ExceptionType = "MISSING_SUMMARY_FIELD"
	NumericParseErrorSummary ExceptionType = "NUMERIC_PARSE_ERROR_SUMMARY"
	MissingMonthlyRows       ExceptionType = "MISSING_MONTHLY_ROWS"
	MissingGrandTotals       ExceptionType = "MISSING_GRAND_TOTALS"
	HeaderYearMonthMismatch  ExceptionType = "HEADER_YEAR_MONTH_MISMATCH"
	PeriodYearMismatch       ExceptionType = "PERIOD_YEAR_MISMATCH"
	LowConfidencePayload     ExceptionType = "LOW_CONFIDENCE_PAYLOAD"
	IdentityConflict         ExceptionType = "IDENTITY_CONFLICT_USERNAME_MISMATCH"
)

const (
	numericPrefix      = "NUMERIC_PARSE_ERROR_"
	grandNumericPrefix = "NUMERIC_PARSE_ERROR_GRAND_"
	mismatchPrefix     = "TOTALS_MISMATCH_"
)

// NumericParseError is the type raised for a non-numeric monthly row field.
func NumericParseError(field string) ExceptionType {
	return ExceptionType(numericPrefix + strings.ToUpper(field))
}

// GrandNumericParseError is the type raised for a non-numeric grand total field.
func GrandNumericParseError(field string) ExceptionType {
	return ExceptionType(grandNumericPrefix + strings.ToUpper(field))
}

// TotalsMismatch is the type raised when monthly rows do not sum to the grand total of field.
func TotalsMismatch(field string) ExceptionType {
	return ExceptionType(mismatchPrefix + strings.ToUpper(field))
}

// Kind is the category of an exception type.
type Kind int

const (
	_ Kind = iota
	// Structural anomalies are missing sections or fields.
	Structural
	// Numeric anomalies are non-numeric values where a number is required.
	Numeric
	// Consistency anomalies are cross-field disagreements.
	Consistency
	// Identity anomalies are conflicting client identities.
	Identity
)

func (k Kind) String() string {
	return enumString([]string{"", "structural", "numeric", "consistency", "identity"}, int(k))
}

var exceptionTypes = func() map[ExceptionType]Kind {
	m := map[ExceptionType]Kind{
		MissingReportHeader:      Structural,
		MissingHeaderField:       Structural,
		MissingSummaryTotals:     Structural,
		MissingSummaryField:      Structural,
		MissingMonthlyRows:       Structural,
		MissingGrandTotals:       Structural,
		NumericParseErrorSummary: Numeric,
		HeaderYearMonthMismatch:  Consistency,
		PeriodYearMismatch:       Consistency,
		LowConfidencePayload:     Consistency,
		IdentityConflict:         Identity,
	}
	for _, f := range RowFields {
		m[NumericParseError(f)] = Numeric
		m[GrandNumericParseError(f)] = Numeric
		m[TotalsMismatch(f)] = Consistency
	}
	return m
}()

// Kind returns the category of t, or 0 when t is not part of the taxonomy.
func (t ExceptionType) Kind() Kind { return exceptionTypes[t] }

// Valid reports whether t belongs to the taxonomy.
func (t ExceptionType) Valid() bool { return t.Kind() != 0 }

// DefaultSeverity is the severity an exception of type t is raised with.
// Missing data, identity conflicts and totals mismatches need attention
// first.
func (t ExceptionType) DefaultSeverity() Severity {
	switch {
	case t.Kind() == Structural, t.Kind() == Identity:
		return SeverityHigh
	case strings.HasPrefix(string(t), mismatchPrefix):
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// ParseExceptionType parses a string into an ExceptionType of the taxonomy.
func ParseExceptionType(s string) (ExceptionType, error) {
	t := ExceptionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown exception type: %q", s)
	}
	return t, nil
}

// ExceptionTypes returns every type of the taxonomy, sorted.
func ExceptionTypes() []ExceptionType {
	all := make([]ExceptionType, 0, len(exceptionTypes))
	for t := range exceptionTypes {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all
}

// EventType names an audit event.
type EventType string

const (
	EventReportIngested          EventType = "REPORT_INGESTED"
	EventDuplicateSkipped        EventType = "DUPLICATE_SKIPPED"
	EventValidationCompleted     EventType = "VALIDATION_COMPLETED"
	EventReconciliationCompleted EventType = "RECONCILIATION_COMPLETED"
	EventTaxGenerated            EventType = "TAX_CLEANED_GENERATED"
	EventPriorVersionArchived    EventType = "PRIOR_VERSION_ARCHIVED"
	EventProcessingCompleted     EventType = "PROCESSING_COMPLETED"
	EventProcessingError         EventType = "PROCESSING_ERROR"
	EventExceptionCreated        EventType = "EXCEPTION_CREATED"
	EventExceptionResolved       EventType = "EXCEPTION_RESOLVED"
	EventTaxReportApproved       EventType = "TAX_REPORT_APPROVED"
	EventTaxReportRejected       EventType = "TAX_REPORT_REJECTED"
	EventTaxReportFlagged        EventType = "TAX_REPORT_FLAGGED"
)
