package taxclean

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name   string
		grand  string // net_pnl grand total, the monthly rows sum to 3500
		status ReconciliationStatus
	}{
		{"exact", "3500", Reconciled},
		{"within tolerance", "3500.01", Reconciled},
		{"at tolerance", "3500.02", Reconciled},
		{"over tolerance", "3500.05", ReconciliationMismatch},
		{"under", "3499.97", ReconciliationMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := statement("ACC-1001", 2024)
			s.GrandTotals.NetPnL = N(tt.grand)
			got := Reconcile(s, DefaultReconcileOptions())
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, []ReconciliationCheck{
				{Name: "monthly_net_pnl_sum_matches_grand_total", Passed: tt.status == Reconciled},
				{Name: "monthly_net_cash_sum_matches_grand_total", Passed: true},
			}, got.Checks)
		})
	}
}

func TestReconcile_MismatchDetail(t *testing.T) {
	s := statement("ACC-1001", 2024)
	s.GrandTotals.NetPnL = N("3500.05")
	got := Reconcile(s, DefaultReconcileOptions())

	m := got.Mismatches()
	require.Len(t, m, 1)
	assert.Equal(t, "net_pnl", m[0].Field)
	assert.Equal(t, "Sum of monthly net_pnl (3500.00) does not match grand total (3500.05). Difference: 0.05", m[0].Message)
	assert.Equal(t, "0.05", m[0].Difference.String())
	assert.Equal(t, "3500", m[0].MonthlySum.String())
}

func TestReconcile_Partial(t *testing.T) {
	t.Run("no rows", func(t *testing.T) {
		s := statement("ACC-1001", 2024)
		s.MonthlyRows = nil
		got := Reconcile(s, DefaultReconcileOptions())
		assert.Equal(t, ReconciliationPartial, got.Status)
		assert.Len(t, got.Checks, 2)
		assert.Empty(t, got.Mismatches())
	})
	t.Run("no grand totals", func(t *testing.T) {
		s := statement("ACC-1001", 2024)
		s.GrandTotals = nil
		got := Reconcile(s, DefaultReconcileOptions())
		assert.Equal(t, ReconciliationPartial, got.Status)
		assert.Equal(t, "grand_totals_row", got.Details[0].Field)
	})
	t.Run("text grand total", func(t *testing.T) {
		s := statement("ACC-1001", 2024)
		s.GrandTotals.NetCash = RawAmount(`"n/a"`)
		got := Reconcile(s, DefaultReconcileOptions())
		assert.Equal(t, ReconciliationPartial, got.Status)
		assert.Equal(t, "Grand total net_cash is not a valid number", got.Details[0].Message)
	})
	t.Run("numeric strings are read", func(t *testing.T) {
		s := statement("ACC-1001", 2024)
		s.MonthlyRows[0].NetPnL = RawAmount(`"2,000.00"`)
		assert.Equal(t, Reconciled, Reconcile(s, DefaultReconcileOptions()).Status)
	})
}

func TestReconcile_Options(t *testing.T) {
	s := statement("ACC-1001", 2024)
	s.GrandTotals.SecFee = N("11")

	assert.Equal(t, Reconciled, Reconcile(s, DefaultReconcileOptions()).Status)

	withFees := Reconcile(s, DefaultReconcileOptions().WithFees())
	assert.Equal(t, ReconciliationMismatch, withFees.Status)
	assert.Len(t, withFees.Checks, 9)
	require.Len(t, withFees.Mismatches(), 1)
	assert.Equal(t, "sec_fee", withFees.Mismatches()[0].Field)

	loose := DefaultReconcileOptions().WithFees()
	loose.Tolerance = decimal.NewFromInt(1)
	assert.Equal(t, Reconciled, Reconcile(s, loose).Status)
}
