package taxclean

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/etnz/taxclean/date"
	"github.com/go-playground/validator/v10"
)

// ValidationChecks are the four structural checks reported for every statement.
type ValidationChecks struct {
	RequiredFieldsPresent     bool `json:"required_fields_present"`
	NumericParse              bool `json:"numeric_parse"`
	HeaderPeriodPresent       bool `json:"header_period_present"`
	TableHeadersMatchTemplate bool `json:"table_headers_match_template"`
}

// Finding is an anomaly found by a pure check. The pipeline raises each
// finding as an Exception.
type Finding struct {
	Type    ExceptionType  `json:"type"`
	Detail  string         `json:"detail"`
	Context map[string]any `json:"context,omitempty"`
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Status   ValidationStatus `json:"status"`
	Reason   string           `json:"reason,omitempty"`
	Checks   ValidationChecks `json:"checks"`
	Warnings []string         `json:"warnings"`
	Findings []Finding        `json:"exceptions"`
}

func (v *ValidationResult) add(t ExceptionType, ctx map[string]any, format string, args ...any) {
	v.Findings = append(v.Findings, Finding{Type: t, Detail: fmt.Sprintf(format, args...), Context: ctx})
}

func (v *ValidationResult) has(match func(ExceptionType) bool) bool {
	for _, f := range v.Findings {
		if match(f.Type) {
			return true
		}
	}
	return false
}

// validationRules derive the status from the findings, first match wins.
var validationRules = []struct {
	match  func(*ValidationResult) bool
	status ValidationStatus
}{
	{func(v *ValidationResult) bool {
		return v.has(func(t ExceptionType) bool { return t.Kind() == Numeric || t.Kind() == Structural })
	}, ValidationFailed},
	{func(v *ValidationResult) bool {
		return v.has(func(t ExceptionType) bool {
			return strings.Contains(string(t), "MISMATCH") || strings.Contains(string(t), "CONFLICT")
		})
	}, ValidationReviewRequired},
	{func(v *ValidationResult) bool { return len(v.Warnings) > 0 }, ValidationReviewRequired},
	{func(*ValidationResult) bool { return true }, Validated},
}

// headerValidate checks the required header fields, reported by their JSON name.
var headerValidate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// SkippedValidation is the result reported when validation did not run.
func SkippedValidation(reason string) ValidationResult {
	return ValidationResult{Status: ValidationSkipped, Reason: reason, Warnings: []string{}, Findings: []Finding{}}
}

// Validate checks the structure and the numeric well-formedness of a
// submission. It has no side effects.
func Validate(s *Submission) ValidationResult {
	v := ValidationResult{
		Checks: ValidationChecks{
			RequiredFieldsPresent:     true,
			NumericParse:              true,
			HeaderPeriodPresent:       true,
			TableHeadersMatchTemplate: true,
		},
		Warnings: []string{},
		Findings: []Finding{},
	}

	h := s.Header
	if h == nil {
		v.Checks.RequiredFieldsPresent = false
		v.add(MissingReportHeader, nil, "report_header is missing")
	} else if err := headerValidate.Struct(h); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			panic(fmt.Sprintf("header validation: %v", err))
		}
		v.Checks.RequiredFieldsPresent = false
		for _, fe := range errs {
			v.add(MissingHeaderField, map[string]any{"field": fe.Field()}, "Missing required header field: %s", fe.Field())
		}
	}

	if t := s.Summary; t == nil {
		v.Checks.RequiredFieldsPresent = false
		v.add(MissingSummaryTotals, nil, "summary_totals is missing")
	} else {
		for _, f := range SummaryFields {
			a := t.Field(f)
			switch {
			case !a.Present():
				v.Checks.RequiredFieldsPresent = false
				v.add(MissingSummaryField, map[string]any{"field": f}, "Missing required summary field: %s", f)
			case !a.IsNumber():
				v.Checks.NumericParse = false
				v.add(NumericParseErrorSummary, map[string]any{"field": f, "value": a.String()},
					"Non-numeric summary field: %s = %q", f, a.String())
			}
		}
	}

	if s.MonthlyRows == nil || s.RowsMalformed {
		v.Checks.TableHeadersMatchTemplate = false
		v.add(MissingMonthlyRows, nil, "monthly_rows is missing or not an array")
	} else {
		for i := range s.MonthlyRows {
			row := &s.MonthlyRows[i]
			for _, f := range RowFields {
				a := row.Field(f)
				if a.Present() && !a.IsNumber() {
					v.Checks.NumericParse = false
					v.add(NumericParseError(f), map[string]any{"month": string(row.Month), "field": f, "value": a.String()},
						"Non-numeric value in monthly row %s: %s = %q", row.Month, f, a.String())
				}
			}
			if h != nil && h.Year != 0 && row.TradeDate != "" {
				if y, ok := date.LabelYear(row.TradeDate); !ok || y != int(h.Year) {
					v.Checks.HeaderPeriodPresent = false
					v.Warnings = append(v.Warnings, fmt.Sprintf("Monthly trade_date %q year does not match header year %d", row.TradeDate, h.Year))
					v.add(HeaderYearMonthMismatch, map[string]any{"month": string(row.Month), "trade_date": row.TradeDate},
						"trade_date %q inconsistent with header year %d", row.TradeDate, h.Year)
				}
			}
		}
	}

	if g := s.GrandTotals; g == nil {
		v.Checks.TableHeadersMatchTemplate = false
		v.add(MissingGrandTotals, nil, "grand_totals_row is missing")
	} else {
		for _, f := range RowFields {
			a := g.Field(f)
			if a.Present() && !a.IsNumber() {
				v.Checks.NumericParse = false
				v.add(GrandNumericParseError(f), map[string]any{"field": f, "value": a.String()},
					"Non-numeric grand total field: %s = %q", f, a.String())
			}
		}
	}

	if h != nil && h.Year != 0 && h.PeriodStart != "" && h.PeriodEnd != "" {
		for _, p := range []struct{ name, label string }{
			{"report_period_start", h.PeriodStart},
			{"report_period_end", h.PeriodEnd},
		} {
			if y, ok := date.LabelYear(p.label); ok && y != int(h.Year) {
				v.Warnings = append(v.Warnings, fmt.Sprintf("Period %s year %d does not match header year %d", p.name, y, h.Year))
				v.add(PeriodYearMismatch, map[string]any{"field": p.name, "value": p.label},
					"%s year %d != header year %d", p.name, y, h.Year)
			}
		}
	}

	if s.Metadata.IsLowConfidence() {
		v.Warnings = append(v.Warnings, "Low confidence structured payload, manual review recommended")
		v.add(LowConfidencePayload, nil, "Payload flagged as low confidence")
	}

	for _, r := range validationRules {
		if r.match(&v) {
			v.Status = r.status
			break
		}
	}
	return v
}
