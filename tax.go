package taxclean

import (
	"github.com/etnz/taxclean/date"
	"github.com/shopspring/decimal"
)

// TaxRules are the jurisdiction parameters of the tax derivation.
type TaxRules struct {
	Rate          Rate   `yaml:"rate" json:"rate"`
	Jurisdiction  string `yaml:"jurisdiction" json:"jurisdiction"`
	Currency      string `yaml:"currency" json:"currency"`
	Broker        string `yaml:"broker" json:"broker"`
	ApplicableLaw string `yaml:"applicable_law" json:"applicable_law"`
	RateBasis     string `yaml:"rate_basis" json:"rate_basis"`
	ExpenseBasis  string `yaml:"expense_basis" json:"expense_basis"`
	LossBasis     string `yaml:"loss_basis" json:"loss_basis"`
	RateLegal     string `yaml:"rate_legal_basis" json:"rate_legal_basis"`
	FilingForm    string `yaml:"filing_form" json:"filing_form"`
}

// IsraeliRules are the rules for Israeli residents trading foreign
// securities: a flat 25% on real capital gains, trading costs deductible,
// losses carried forward.
func IsraeliRules() TaxRules {
	return TaxRules{
		Rate:          NewRate(decimal.RequireFromString("0.25")),
		Jurisdiction:  "Israel",
		Currency:      DefaultCurrency,
		Broker:        "Colmex Pro",
		ApplicableLaw: "Israeli Income Tax Ordinance (Pkudat Mas Hachnasa)",
		RateBasis:     "Section 91(b)(1) -- 25% on real capital gains from securities",
		ExpenseBasis:  "Section 17 of the Israeli Income Tax Ordinance -- expenses incurred in the production of income are deductible.",
		LossBasis:     "Section 92 of the Israeli Income Tax Ordinance -- capital losses may be carried forward indefinitely and offset against future capital gains. Foreign-source losses must first be offset against foreign-source gains.",
		RateLegal:     "Section 91(b)(1) of the Israeli Income Tax Ordinance -- real capital gains from securities are taxed at 25% (30% for significant shareholders holding 10%+).",
		FilingForm:    "Form 1301",
	}
}

// TaxResult is the outcome of Derive. Data is nil unless Status is TaxGenerated.
type TaxResult struct {
	Status  TaxStatus       `json:"status"`
	Reason  string          `json:"reason,omitempty"`
	Data    *TaxData        `json:"tax_data,omitempty"`
	Preview *SummaryPreview `json:"summary_preview,omitempty"`
}

// TaxData is the full derived tax computation of one statement. It depends on
// the statement and the rules only, so identical inputs yield identical data.
type TaxData struct {
	ClientSummary    ClientSummary   `json:"client_summary"`
	AnnualSummary    AnnualSummary   `json:"annual_summary"`
	MonthlyBreakdown []MonthTax      `json:"monthly_breakdown"`
	FeeSchedule      FeeSchedule     `json:"fee_schedule"`
	LossAnalysis     LossAnalysis    `json:"loss_analysis"`
	AccountSummary   AccountSummary  `json:"account_summary"`
	Explanations     []Explanation   `json:"explanations"`
	ComplianceNotes  []string        `json:"compliance_notes"`
	Metadata         TaxDataMetadata `json:"report_metadata"`
}

type ClientSummary struct {
	AccountID    string  `json:"account_id"`
	ClientName   string  `json:"client_name"`
	Username     string  `json:"username"`
	TaxYear      TaxYear `json:"tax_year"`
	ReportPeriod string  `json:"report_period"`
	SourceFile   string  `json:"source_file,omitempty"`
	ActiveMonths int     `json:"active_months"`
}

type AnnualSummary struct {
	GrossTradingPnL        Money   `json:"gross_trading_pnl"`
	TotalDeductibleFees    Money   `json:"total_deductible_fees"`
	NetTaxablePnL          Money   `json:"net_taxable_pnl"`
	LossOffsetApplied      Money   `json:"loss_offset_applied"`
	TaxableGainAfterOffset Money   `json:"taxable_gain_after_offset"`
	TaxRate                Rate    `json:"tax_rate"`
	TaxRateDisplay         string  `json:"tax_rate_display"`
	ComputedTaxLiability   Money   `json:"computed_tax_liability"`
	EffectiveTaxRate       Percent `json:"effective_tax_rate"`
	IsProfitYear           bool    `json:"is_profit_year"`
	CarryForwardLoss       Money   `json:"carry_forward_loss"`
}

// FeeBreakdown itemizes the seven deductible fee components.
type FeeBreakdown struct {
	Commissions Money `json:"commissions"`
	SecFee      Money `json:"sec_fee"`
	NasdFee     Money `json:"nasd_fee"`
	EcnTake     Money `json:"ecn_take"`
	EcnAdd      Money `json:"ecn_add"`
	RoutingFee  Money `json:"routing_fee"`
	NsccFee     Money `json:"nscc_fee"`
}

// FeeItem is one labeled fee component.
type FeeItem struct {
	Label  string
	Amount Money
}

// Items returns the fee components in statement order.
func (f FeeBreakdown) Items() []FeeItem {
	return []FeeItem{
		{"Trading Commissions", f.Commissions},
		{"SEC Fees", f.SecFee},
		{"NASD/FINRA Fees", f.NasdFee},
		{"ECN Take Fees", f.EcnTake},
		{"ECN Add Fees", f.EcnAdd},
		{"Routing Fees", f.RoutingFee},
		{"NSCC Fees", f.NsccFee},
	}
}

// Total is the sum of all components.
func (f FeeBreakdown) Total() Money {
	total := Money{cur: f.Commissions.cur}
	for _, it := range f.Items() {
		total = total.Add(it.Amount)
	}
	return total
}

func newFeeBreakdown(r *Row, currency string) FeeBreakdown {
	m := func(a Amount) Money { return M(a.Decimal(), currency) }
	return FeeBreakdown{
		Commissions: m(r.TotalComm),
		SecFee:      m(r.SecFee),
		NasdFee:     m(r.NasdFee),
		EcnTake:     m(r.EcnTake),
		EcnAdd:      m(r.EcnAdd),
		RoutingFee:  m(r.RoutingFee),
		NsccFee:     m(r.NsccFee),
	}
}

type FeeSchedule struct {
	FeeBreakdown
	Total Money `json:"total"`
	// FeeToGrossRatio is nil when the gross P&L is zero.
	FeeToGrossRatio *Percent `json:"fee_to_gross_pnl_ratio"`
}

// MonthTax is the fee, gross and net decomposition of one monthly row.
type MonthTax struct {
	Month          Label        `json:"month"`
	TradeDate      string       `json:"trade_date"`
	GrossPnL       Money        `json:"gross_pnl"`
	Fees           Money        `json:"fees"`
	FeeBreakdown   FeeBreakdown `json:"fee_breakdown"`
	NetPnL         Money        `json:"net_pnl"`
	NetCash        Money        `json:"net_cash"`
	CumulativePnL  Money        `json:"cumulative_pnl"`
	CumulativeFees Money        `json:"cumulative_fees"`
	IsProfit       bool         `json:"is_profit"`
	IsLoss         bool         `json:"is_loss"`
}

// MonthExtreme identifies the best or worst month.
type MonthExtreme struct {
	Month     Label  `json:"month"`
	TradeDate string `json:"trade_date"`
	NetPnL    Money  `json:"net_pnl"`
}

// NetPosition is the sign of the annual result.
type NetPosition string

const (
	PositionProfit    NetPosition = "PROFIT"
	PositionLoss      NetPosition = "LOSS"
	PositionBreakeven NetPosition = "BREAKEVEN"
)

type LossAnalysis struct {
	GainMonths         int           `json:"gain_months"`
	LossMonths         int           `json:"loss_months"`
	ZeroMonths         int           `json:"zero_months"`
	BestMonth          *MonthExtreme `json:"best_month"`
	WorstMonth         *MonthExtreme `json:"worst_month"`
	NetPosition        NetPosition   `json:"net_position"`
	CarryForwardAmount Money         `json:"carry_forward_amount"`
}

// AccountSummary restates the statement summary totals.
type AccountSummary struct {
	OpeningBalance         Money `json:"opening_balance"`
	TotalDepositWithdrawal Money `json:"total_deposit_withdrawal"`
	TotalCreditDebit       Money `json:"total_credit_debit"`
	ProfitLoss             Money `json:"profit_loss"`
	ClosingBalanceEquity   Money `json:"closing_balance_equity"`
}

// Explanation is one numbered step of the computation rationale.
type Explanation struct {
	Step       int      `json:"step"`
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	Formula    string   `json:"formula,omitempty"`
	Items      []string `json:"items,omitempty"`
	LegalBasis string   `json:"legal_basis,omitempty"`
}

type TaxDataMetadata struct {
	SourceReportType     string               `json:"source_report_type"`
	TemplateVersion      string               `json:"template_version,omitempty"`
	TaxJurisdiction      string               `json:"tax_jurisdiction"`
	ApplicableLaw        string               `json:"applicable_law"`
	TaxRateBasis         string               `json:"tax_rate_basis"`
	StatusBadges         []string             `json:"status_badges"`
	ReconciliationStatus ReconciliationStatus `json:"reconciliation_status"`
	ValidationStatus     ValidationStatus     `json:"validation_status"`
}

// SummaryPreview is the short form of a tax result shown with an outcome.
type SummaryPreview struct {
	ReportedAnnualPnL   Money    `json:"reported_annual_pnl"`
	AnnualFeeTotal      Money    `json:"annual_fee_total"`
	EstimatedTaxReserve Money    `json:"estimated_tax_reserve"`
	StatusBadges        []string `json:"status_badges"`
}

// Derive computes the tax position of a statement. It runs only when the
// statement is neither in conflict nor invalid, and is skipped for
// duplicates, whose result already exists.
func Derive(s *Submission, v ValidationResult, r ReconciliationResult, state ReportState, rules TaxRules) TaxResult {
	switch {
	case state == StateConflict:
		return TaxResult{Status: TaxBlocked, Reason: "Report state is CONFLICT, cannot generate tax outputs"}
	case v.Status == ValidationFailed:
		return TaxResult{Status: TaxBlocked, Reason: "Validation failed, cannot generate tax outputs"}
	case state == StateDuplicate:
		return TaxResult{Status: TaxSkipped, Reason: "Duplicate report, tax outputs already exist for this version"}
	case s.Header == nil || s.GrandTotals == nil:
		return TaxResult{Status: TaxBlocked, Reason: "Report header or grand totals missing, cannot generate tax outputs"}
	}
	if rules.Currency == "" {
		rules.Currency = DefaultCurrency
	}

	d := derive(s, r, rules)
	d.Metadata.ValidationStatus = v.Status
	d.Metadata.ReconciliationStatus = r.Status
	return TaxResult{
		Status: TaxGenerated,
		Data:   d,
		Preview: &SummaryPreview{
			ReportedAnnualPnL:   d.AnnualSummary.NetTaxablePnL,
			AnnualFeeTotal:      d.AnnualSummary.TotalDeductibleFees,
			EstimatedTaxReserve: d.AnnualSummary.ComputedTaxLiability,
			StatusBadges:        d.Metadata.StatusBadges,
		},
	}
}

func derive(s *Submission, r ReconciliationResult, rules TaxRules) *TaxData {
	h, g, cur := s.Header, s.GrandTotals, rules.Currency
	zero := M(decimal.Zero, cur)

	fees := newFeeBreakdown(g, cur)
	totalFees := fees.Total()

	// The broker's net P&L already includes commissions and direct fees:
	// gross is reconstructed by adding every fee back.
	net := M(g.NetPnL.Decimal(), cur)
	gross := net.Add(totalFees)

	a := AnnualSummary{
		GrossTradingPnL:        gross,
		TotalDeductibleFees:    totalFees,
		NetTaxablePnL:          net,
		LossOffsetApplied:      zero,
		TaxableGainAfterOffset: zero,
		TaxRate:                rules.Rate,
		TaxRateDisplay:         rules.Rate.String(),
		IsProfitYear:           net.IsPositive(),
		CarryForwardLoss:       zero,
	}
	if net.IsPositive() {
		a.TaxableGainAfterOffset = net
	} else {
		a.CarryForwardLoss = net.Abs()
	}
	a.ComputedTaxLiability = a.TaxableGainAfterOffset.Mul(rules.Rate.Decimal())
	a.EffectiveTaxRate, _ = a.ComputedTaxLiability.RatioPercent(gross.Abs())

	months, loss := monthlyBreakdown(s.MonthlyRows, cur)
	loss.CarryForwardAmount = a.CarryForwardLoss
	switch {
	case net.IsPositive():
		loss.NetPosition = PositionProfit
	case net.IsNegative():
		loss.NetPosition = PositionLoss
	default:
		loss.NetPosition = PositionBreakeven
	}

	schedule := FeeSchedule{FeeBreakdown: fees, Total: totalFees}
	if ratio, ok := totalFees.RatioPercent(gross.Abs()); ok {
		schedule.FeeToGrossRatio = &ratio
	}

	var account AccountSummary
	if t := s.Summary; t != nil {
		account = AccountSummary{
			OpeningBalance:         M(t.OpeningBalance.Decimal(), cur),
			TotalDepositWithdrawal: M(t.TotalDepositWithdrawal.Decimal(), cur),
			TotalCreditDebit:       M(t.TotalCreditDebit.Decimal(), cur),
			ProfitLoss:             M(t.ProfitLoss.Decimal(), cur),
			ClosingBalanceEquity:   M(t.ClosingBalanceEquity.Decimal(), cur),
		}
	}

	period := h.PeriodStart + " -- " + h.PeriodEnd
	if rg, err := date.ParseRange(h.PeriodStart, h.PeriodEnd); err == nil {
		period = rg.String()
	}

	d := &TaxData{
		ClientSummary: ClientSummary{
			AccountID:    h.AccountID,
			ClientName:   h.ClientDisplayName,
			Username:     h.Username,
			TaxYear:      h.Year,
			ReportPeriod: period,
			SourceFile:   h.SourceFileName,
			ActiveMonths: len(s.MonthlyRows),
		},
		AnnualSummary:    a,
		MonthlyBreakdown: months,
		FeeSchedule:      schedule,
		LossAnalysis:     loss,
		AccountSummary:   account,
		Metadata: TaxDataMetadata{
			SourceReportType: s.ReportType(),
			TemplateVersion:  s.TemplateVersion,
			TaxJurisdiction:  rules.Jurisdiction,
			ApplicableLaw:    rules.ApplicableLaw,
			TaxRateBasis:     rules.RateBasis,
			StatusBadges:     []string{"TAX-CLEANED", "NON-OFFICIAL", "COLMEX_PNL_SOURCE"},
		},
	}
	d.Explanations = explain(h, d, rules)
	d.ComplianceNotes = complianceNotes(d, r.Status, rules)
	return d
}

func monthlyBreakdown(rows []Row, cur string) ([]MonthTax, LossAnalysis) {
	months := make([]MonthTax, 0, len(rows))
	var la LossAnalysis
	cumPnL, cumFees := M(decimal.Zero, cur), M(decimal.Zero, cur)
	for i := range rows {
		row := &rows[i]
		fees := newFeeBreakdown(row, cur)
		total := fees.Total()
		net := M(row.NetPnL.Decimal(), cur)
		cumPnL = cumPnL.Add(net)
		cumFees = cumFees.Add(total)

		switch {
		case net.IsPositive():
			la.GainMonths++
		case net.IsNegative():
			la.LossMonths++
		default:
			la.ZeroMonths++
		}
		// first occurrence wins ties.
		if la.BestMonth == nil || net.GreaterThan(la.BestMonth.NetPnL) {
			la.BestMonth = &MonthExtreme{Month: row.Month, TradeDate: row.TradeDate, NetPnL: net}
		}
		if la.WorstMonth == nil || net.LessThan(la.WorstMonth.NetPnL) {
			la.WorstMonth = &MonthExtreme{Month: row.Month, TradeDate: row.TradeDate, NetPnL: net}
		}

		months = append(months, MonthTax{
			Month:          row.Month,
			TradeDate:      row.TradeDate,
			GrossPnL:       net.Add(total),
			Fees:           total,
			FeeBreakdown:   fees,
			NetPnL:         net,
			NetCash:        M(row.NetCash.Decimal(), cur),
			CumulativePnL:  cumPnL,
			CumulativeFees: cumFees,
			IsProfit:       net.IsPositive(),
			IsLoss:         net.IsNegative(),
		})
	}
	return months, la
}
