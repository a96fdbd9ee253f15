package taxclean

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// derived runs the checks and derives the tax of s with the Israeli rules.
func derived(t *testing.T, s *Submission) TaxResult {
	t.Helper()
	return Derive(s, Validate(s), Reconcile(s, DefaultReconcileOptions()), StateNew, IsraeliRules())
}

func TestDerive_ProfitYear(t *testing.T) {
	got := derived(t, statement("ACC-1001", 2024))
	require.Equal(t, TaxGenerated, got.Status)
	a := got.Data.AnnualSummary

	for _, tt := range []struct {
		name string
		got  Money
		want Money
	}{
		{"net taxable", a.NetTaxablePnL, USD("3500")},
		{"fees", a.TotalDeductibleFees, USD("232")},
		{"gross", a.GrossTradingPnL, USD("3732")},
		{"taxable after offset", a.TaxableGainAfterOffset, USD("3500")},
		{"liability", a.ComputedTaxLiability, USD("875")},
		{"carry forward", a.CarryForwardLoss, USD("0")},
	} {
		if !tt.got.Equal(tt.want) {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	assert.Equal(t, "$875.00", a.ComputedTaxLiability.String())
	assert.Equal(t, "25%", a.TaxRateDisplay)
	assert.True(t, a.IsProfitYear)
	assert.True(t, a.EffectiveTaxRate.Equal(23.45), "effective rate %v", a.EffectiveTaxRate)

	require.NotNil(t, got.Preview)
	assert.Equal(t, a.ComputedTaxLiability, got.Preview.EstimatedTaxReserve)
	assert.Equal(t, []string{"TAX-CLEANED", "NON-OFFICIAL", "COLMEX_PNL_SOURCE"}, got.Preview.StatusBadges)

	la := got.Data.LossAnalysis
	assert.Equal(t, PositionProfit, la.NetPosition)
	assert.Equal(t, 2, la.GainMonths)
	assert.Equal(t, Label("January"), la.BestMonth.Month)
	assert.Equal(t, Label("February"), la.WorstMonth.Month)

	m := got.Data.MonthlyBreakdown
	require.Len(t, m, 2)
	assert.Equal(t, "$2,116.00", m[0].GrossPnL.String())
	assert.Equal(t, "$116.00", m[0].Fees.String())
	assert.Equal(t, "$3,500.00", m[1].CumulativePnL.String())
	assert.Equal(t, "$232.00", m[1].CumulativeFees.String())

	assert.Equal(t, "01.01.2024 -- 31.12.2024", got.Data.ClientSummary.ReportPeriod)
	assert.Len(t, got.Data.Explanations, 7)
	assert.Equal(t, 7, got.Data.Explanations[6].Step)
	assert.Equal(t, "Summary", got.Data.Explanations[6].Title)
	assert.NotContains(t, got.Data.ComplianceNotes, MismatchWarning)
}

func TestDerive_LossYear(t *testing.T) {
	s := statement("ACC-1001", 2024)
	s.MonthlyRows[0].NetPnL, s.MonthlyRows[0].NetCash = N("-700"), N("-700")
	s.MonthlyRows[1].NetPnL, s.MonthlyRows[1].NetCash = N("-500"), N("-500")
	s.GrandTotals.NetPnL, s.GrandTotals.NetCash = N("-1200"), N("-1200")

	got := derived(t, s)
	require.Equal(t, TaxGenerated, got.Status)
	a := got.Data.AnnualSummary
	assert.False(t, a.IsProfitYear)
	assert.True(t, a.ComputedTaxLiability.IsZero())
	assert.True(t, a.TaxableGainAfterOffset.IsZero())
	assert.Equal(t, "$1,200.00", a.CarryForwardLoss.String())
	assert.Equal(t, PositionLoss, got.Data.LossAnalysis.NetPosition)
	assert.Equal(t, a.CarryForwardLoss, got.Data.LossAnalysis.CarryForwardAmount)
	assert.Equal(t, "Loss Year -- No Tax Liability", got.Data.Explanations[4].Title)
}

func TestDerive_Breakeven(t *testing.T) {
	s := statement("ACC-1001", 2024)
	s.MonthlyRows[1].NetPnL, s.MonthlyRows[1].NetCash = N("-2000"), N("-2000")
	s.GrandTotals.NetPnL, s.GrandTotals.NetCash = N("0"), N("0")

	got := derived(t, s)
	assert.Equal(t, PositionBreakeven, got.Data.LossAnalysis.NetPosition)
	assert.True(t, got.Data.AnnualSummary.ComputedTaxLiability.IsZero())
	assert.True(t, got.Data.AnnualSummary.CarryForwardLoss.IsZero())
}

func TestDerive_Blocked(t *testing.T) {
	s := statement("ACC-1001", 2024)
	v, r := Validate(s), Reconcile(s, DefaultReconcileOptions())

	tests := []struct {
		name   string
		v      ValidationResult
		state  ReportState
		status TaxStatus
	}{
		{"conflict", v, StateConflict, TaxBlocked},
		{"validation failed", ValidationResult{Status: ValidationFailed}, StateNew, TaxBlocked},
		{"duplicate", v, StateDuplicate, TaxSkipped},
		{"revision", v, StateRevision, TaxGenerated},
		{"review required", ValidationResult{Status: ValidationReviewRequired}, StateNew, TaxGenerated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(s, tt.v, r, tt.state, IsraeliRules())
			assert.Equal(t, tt.status, got.Status)
			if tt.status != TaxGenerated {
				assert.Nil(t, got.Data)
				assert.NotEmpty(t, got.Reason)
			}
		})
	}
}

func TestDerive_Mismatch(t *testing.T) {
	s := statement("ACC-1001", 2024)
	s.GrandTotals.NetPnL = N("3600")
	got := derived(t, s)
	require.Equal(t, TaxGenerated, got.Status)
	// the grand total is authoritative.
	assert.Equal(t, "$900.00", got.Data.AnnualSummary.ComputedTaxLiability.String())
	assert.Contains(t, got.Data.ComplianceNotes, MismatchWarning)
	assert.Equal(t, ReconciliationMismatch, got.Data.Metadata.ReconciliationStatus)
}

func TestDerive_Deterministic(t *testing.T) {
	a := derived(t, statement("ACC-1001", 2024))
	b := derived(t, statement("ACC-1001", 2024))
	assert.Equal(t, a, b)
}

func TestDerive_Rules(t *testing.T) {
	rules := IsraeliRules()
	rules.Rate = NewRate(decimal.RequireFromString("0.3"))
	s := statement("ACC-1001", 2024)
	got := Derive(s, Validate(s), Reconcile(s, DefaultReconcileOptions()), StateNew, rules)
	assert.Equal(t, "$1,050.00", got.Data.AnnualSummary.ComputedTaxLiability.String())
	assert.Equal(t, "30%", got.Data.AnnualSummary.TaxRateDisplay)
}

func TestParseRate(t *testing.T) {
	for _, tt := range []struct{ in, want string }{
		{"25%", "25%"},
		{"0.25", "25%"},
		{" 12.5 % ", "12.5%"},
	} {
		r, err := ParseRate(tt.in)
		if err != nil {
			t.Fatalf("ParseRate(%q) error = %v", tt.in, err)
		}
		if got := r.String(); got != tt.want {
			t.Errorf("ParseRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	_, err := ParseRate("quarter")
	assert.Error(t, err)
}
