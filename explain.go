package taxclean

import (
	"fmt"
)

// explain returns the numbered rationale of a tax computation. The text is
// built from the computed figures only, so identical inputs give identical
// explanations.
func explain(h *Header, d *TaxData, rules TaxRules) []Explanation {
	a := d.AnnualSummary
	broker := rules.Broker
	if broker == "" {
		broker = "broker"
	}

	steps := []Explanation{
		{
			Title: "Source Data",
			Text: fmt.Sprintf("This report is based on the %s P&L report for account %s (%s) for tax year %d, covering the period %s to %s.",
				broker, h.AccountID, h.ClientDisplayName, h.Year, h.PeriodStart, h.PeriodEnd),
		},
		{
			Title: "Gross Trading P&L",
			Text: fmt.Sprintf("Your gross trading profit/loss before any fee deductions was %s. This is calculated by adding back all deductible fees to your reported net P&L.",
				a.GrossTradingPnL),
			Formula: fmt.Sprintf("Gross P&L = Net P&L (%s) + Total Fees (%s) = %s",
				a.NetTaxablePnL, a.TotalDeductibleFees, a.GrossTradingPnL),
		},
		{
			Title: "Deductible Trading Expenses",
			Text: fmt.Sprintf("Under %s tax law, trading expenses incurred in the production of capital gains from foreign securities are deductible. Your total deductible expenses are %s, itemized as follows:",
				rules.Jurisdiction, a.TotalDeductibleFees),
			Items:      feeItems(d.FeeSchedule.FeeBreakdown),
			LegalBasis: rules.ExpenseBasis,
		},
		{
			Title: "Net Taxable P&L",
			Text: fmt.Sprintf("Your net taxable P&L after fee deductions is %s. The reported net P&L already includes trading commissions and direct trading fees, so these fees are already deducted from the reported figure.",
				a.NetTaxablePnL),
			Formula: fmt.Sprintf("Net Taxable P&L = Reported Net P&L = %s", a.NetTaxablePnL),
		},
	}

	if a.IsProfitYear {
		offset := "No prior carry-forward losses are available to offset against this year's gain."
		if !a.LossOffsetApplied.IsZero() {
			offset = fmt.Sprintf("A prior carry-forward loss of %s has been applied to reduce your taxable gain.", a.LossOffsetApplied)
		}
		steps = append(steps,
			Explanation{
				Title: "Loss Offset",
				Text:  offset,
				Formula: fmt.Sprintf("Taxable Gain After Offset = %s - %s = %s",
					a.NetTaxablePnL, a.LossOffsetApplied, a.TaxableGainAfterOffset),
			},
			Explanation{
				Title: "Tax Liability Calculation",
				Text: fmt.Sprintf("Under %s tax law, capital gains from foreign securities by individual residents are taxed at a flat rate of %s. Your computed tax liability on a taxable gain of %s is %s.",
					rules.Jurisdiction, a.TaxRateDisplay, a.TaxableGainAfterOffset, a.ComputedTaxLiability),
				Formula: fmt.Sprintf("Tax Liability = Taxable Gain (%s) x %s = %s",
					a.TaxableGainAfterOffset, a.TaxRateDisplay, a.ComputedTaxLiability),
				LegalBasis: rules.RateLegal,
			},
		)
	} else {
		steps = append(steps,
			Explanation{
				Title: "Loss Year -- No Tax Liability",
				Text: fmt.Sprintf("Your net trading result for %d is a loss of %s. Capital losses from foreign securities can be carried forward to offset future capital gains. This loss of %s is recorded for potential carry-forward.",
					h.Year, a.NetTaxablePnL.Abs(), a.CarryForwardLoss),
				LegalBasis: rules.LossBasis,
			},
			Explanation{
				Title: "Tax Liability",
				Text:  fmt.Sprintf("No capital gains tax is due for %d. Your computed tax liability is %s.", h.Year, a.ComputedTaxLiability),
			},
		)
	}

	summary := fmt.Sprintf("This was a loss year with no tax liability. Your total trading expenses were %s. The loss of %s can be carried forward to offset future gains.",
		a.TotalDeductibleFees, a.CarryForwardLoss)
	if a.IsProfitYear {
		ratio := Percent(0)
		if r := d.FeeSchedule.FeeToGrossRatio; r != nil {
			ratio = *r
		}
		summary = fmt.Sprintf("After accounting for %s in deductible trading expenses, your effective tax rate on gross trading income is %s. The fee-to-P&L ratio shows that %s of your gross trading income was consumed by trading costs.",
			a.TotalDeductibleFees, a.EffectiveTaxRate, ratio)
	}
	steps = append(steps, Explanation{Title: "Summary", Text: summary})

	for i := range steps {
		steps[i].Step = i + 1
	}
	return steps
}

// feeItems lists the non-zero fee components.
func feeItems(f FeeBreakdown) []string {
	var items []string
	for _, it := range f.Items() {
		if it.Amount.IsPositive() {
			items = append(items, fmt.Sprintf("%s: %s", it.Label, it.Amount))
		}
	}
	return items
}

func complianceNotes(d *TaxData, reconciliation ReconciliationStatus, rules TaxRules) []string {
	broker := rules.Broker
	if broker == "" {
		broker = "broker"
	}
	currency := rules.Currency
	notes := []string{
		fmt.Sprintf("This is a derived tax calculation report based on %s P&L data.", broker),
		"This report is NOT an official tax authority form.",
		fmt.Sprintf("All amounts are in %s as reported by %s.", currency, broker),
		"For filing purposes, amounts should be converted to the local currency at the representative exchange rate on the date of each transaction, or at the average annual rate as applicable.",
		"This report covers trading P&L only. Dividends, interest, and other income types are not included.",
		"Individual tax circumstances may vary. Consult a licensed tax advisor before filing.",
	}
	if d.AnnualSummary.IsProfitYear {
		notes = append(notes, fmt.Sprintf("Recommended action: Ensure this tax liability is accounted for in your annual filing (%s).", rules.FilingForm))
	} else {
		notes = append(notes, "Recommended action: Record this carry-forward loss for future tax years. Ensure it is reported in your annual filing.")
	}
	if reconciliation == ReconciliationMismatch {
		notes = append(notes, MismatchWarning)
	}
	return notes
}

// MismatchWarning is the compliance note added to tax data derived from a
// statement whose totals do not reconcile.
const MismatchWarning = "WARNING: This report has reconciliation mismatches. Review the source data before relying on these calculations."
