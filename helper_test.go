package taxclean

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// testNow is the frozen clock of the test pipelines.
var testNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

// USD is a helper for test to create dollars from a decimal literal.
func USD(s string) Money { return M(decimal.RequireFromString(s), "USD") }

// row is a monthly row with 116 of fees.
func row(month, tradeDate, net string) Row {
	return Row{
		Month:      Label(month),
		TradeDate:  tradeDate,
		TotalComm:  N("100"),
		SecFee:     N("5"),
		NasdFee:    N("2.5"),
		EcnTake:    N("3"),
		EcnAdd:     N("1"),
		RoutingFee: N("4"),
		NsccFee:    N("0.5"),
		NetPnL:     N(net),
		NetCash:    N(net),
	}
}

// statement returns a valid, reconciled statement of two months netting
// 2000 and 1500, with 116 of fees each.
func statement(account string, year int) *Submission {
	y := fmt.Sprint(year)
	rows := []Row{
		row("January", y+"-01-31", "2000"),
		row("February", y+"-02-28", "1500"),
	}
	return &Submission{
		SourceReportType: "COLMEX_PNL",
		Header: &Header{
			AccountID:         account,
			Year:              TaxYear(year),
			ClientDisplayName: "Dana Levi",
			Username:          "dlevi",
			PeriodStart:       y + "-01-01",
			PeriodEnd:         y + "-12-31",
			SourceFileName:    "pnl_" + y + ".pdf",
		},
		Summary: &SummaryTotals{
			OpeningBalance:         N("10000"),
			TotalDepositWithdrawal: N("0"),
			TotalCreditDebit:       N("0"),
			ProfitLoss:             N("3500"),
			ClosingBalanceEquity:   N("13500"),
		},
		MonthlyRows: rows,
		GrandTotals: &Row{
			Label:      "Total",
			TotalComm:  N("200"),
			SecFee:     N("10"),
			NasdFee:    N("5"),
			EcnTake:    N("6"),
			EcnAdd:     N("2"),
			RoutingFee: N("8"),
			NsccFee:    N("1"),
			NetPnL:     N("3500"),
			NetCash:    N("3500"),
		},
	}
}

// newTestPipeline returns a pipeline on a fresh memory store with a frozen
// clock and run ids run-1, run-2...
func newTestPipeline(opts ...Option) (*Pipeline, *MemoryStore) {
	s := NewMemoryStore()
	var n atomic.Int64
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithRunIDs(func() string { return fmt.Sprintf("run-%d", n.Add(1)) }),
	}
	return NewPipeline(s, append(base, opts...)...), s
}

// eventTypes lists the types of events, in order.
func eventTypes(events []AuditEvent) []EventType {
	types := make([]EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}
