package taxclean

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultTolerance is the absolute difference, in currency units, under which
// a monthly sum matches its grand total. It absorbs rounding in the source
// statement only.
var DefaultTolerance = decimal.RequireFromString("0.02")

// ReconcileOptions configures Reconcile.
type ReconcileOptions struct {
	// Fields are the row columns whose monthly sum is compared to the grand total.
	Fields []string
	// Tolerance is the maximum absolute difference accepted.
	Tolerance decimal.Decimal
}

// DefaultReconcileOptions reconciles net P&L and net cash with DefaultTolerance.
func DefaultReconcileOptions() ReconcileOptions {
	return ReconcileOptions{Fields: []string{"net_pnl", "net_cash"}, Tolerance: DefaultTolerance}
}

// WithFees returns o extended to the seven fee columns.
func (o ReconcileOptions) WithFees() ReconcileOptions {
	o.Fields = append(append([]string(nil), o.Fields...), FeeFields...)
	return o
}

// ReconciliationCheck is the pass/fail result of one named check.
type ReconciliationCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// ReconciliationDetail explains one failed check.
type ReconciliationDetail struct {
	Field      string `json:"field"`
	Message    string `json:"message"`
	MonthlySum Amount `json:"monthly_sum"`
	GrandTotal Amount `json:"grand_total"`
	Difference Amount `json:"difference"`
	// Mismatch is set when the difference exceeds the tolerance.
	Mismatch bool `json:"mismatch"`
}

// ReconciliationResult is the outcome of Reconcile.
type ReconciliationResult struct {
	Status  ReconciliationStatus   `json:"status"`
	Reason  string                 `json:"reason,omitempty"`
	Checks  []ReconciliationCheck  `json:"checks"`
	Details []ReconciliationDetail `json:"details"`
}

// Mismatches returns the details of the fields exceeding the tolerance.
func (r ReconciliationResult) Mismatches() []ReconciliationDetail {
	var m []ReconciliationDetail
	for _, d := range r.Details {
		if d.Mismatch {
			m = append(m, d)
		}
	}
	return m
}

// SkippedReconciliation is the result reported when reconciliation did not run.
func SkippedReconciliation(reason string) ReconciliationResult {
	return ReconciliationResult{Status: ReconciliationSkipped, Reason: reason,
		Checks: []ReconciliationCheck{}, Details: []ReconciliationDetail{}}
}

func checkName(field string) string { return fmt.Sprintf("monthly_%s_sum_matches_grand_total", field) }

// Reconcile sums each tracked field across the monthly rows and compares it
// to the grand totals row. Values are read leniently: a numeric string counts
// as a number here, since the validator already reports it.
func Reconcile(s *Submission, o ReconcileOptions) ReconciliationResult {
	if len(o.Fields) == 0 {
		o.Fields = DefaultReconcileOptions().Fields
	}
	r := ReconciliationResult{Checks: []ReconciliationCheck{}, Details: []ReconciliationDetail{}}

	partial := func(field, message string) ReconciliationResult {
		for _, f := range o.Fields {
			r.Checks = append(r.Checks, ReconciliationCheck{Name: checkName(f)})
		}
		r.Details = append(r.Details, ReconciliationDetail{Field: field, Message: message})
		r.Status = ReconciliationPartial
		return r
	}
	if len(s.MonthlyRows) == 0 || s.RowsMalformed {
		return partial("monthly_rows", "No monthly rows to reconcile")
	}
	if s.GrandTotals == nil {
		return partial("grand_totals_row", "Grand totals row missing, cannot reconcile")
	}

	var mismatch, unparsed bool
	for _, f := range o.Fields {
		sum := decimal.Zero
		for i := range s.MonthlyRows {
			v, ok := s.MonthlyRows[i].Field(f).Parse()
			if !ok {
				unparsed = true
				continue
			}
			sum = sum.Add(v)
		}

		raw := s.GrandTotals.Field(f)
		grand, ok := raw.Parse()
		if !ok {
			unparsed = true
			r.Checks = append(r.Checks, ReconciliationCheck{Name: checkName(f)})
			r.Details = append(r.Details, ReconciliationDetail{
				Field:      f,
				Message:    fmt.Sprintf("Grand total %s is not a valid number", f),
				MonthlySum: NewAmount(sum.Round(2)),
				GrandTotal: raw,
			})
			continue
		}

		diff := sum.Sub(grand).Abs()
		passed := diff.LessThanOrEqual(o.Tolerance)
		r.Checks = append(r.Checks, ReconciliationCheck{Name: checkName(f), Passed: passed})
		if !passed {
			mismatch = true
			r.Details = append(r.Details, ReconciliationDetail{
				Field: f,
				Message: fmt.Sprintf("Sum of monthly %s (%s) does not match grand total (%s). Difference: %s",
					f, sum.StringFixed(2), grand.StringFixed(2), diff.StringFixed(2)),
				MonthlySum: NewAmount(sum.Round(2)),
				GrandTotal: NewAmount(grand),
				Difference: NewAmount(diff.Round(2)),
				Mismatch:   true,
			})
		}
	}

	switch {
	case mismatch:
		r.Status = ReconciliationMismatch
	case unparsed:
		r.Status = ReconciliationPartial
	default:
		r.Status = Reconciled
	}
	return r
}
