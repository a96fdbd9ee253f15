package taxclean

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultReportType is the source report type assumed when a submission
// does not name one.
const DefaultReportType = "colmex_pnl_report"

// Submission is one broker profit-and-loss statement, already extracted into
// structured fields. A Submission is immutable once received: the pipeline
// never modifies it and stores a Clone.
type Submission struct {
	SourceReportType string         `json:"source_report_type,omitempty"`
	TemplateVersion  string         `json:"template_version,omitempty"`
	IngestionMode    string         `json:"ingestion_mode,omitempty"`
	Header           *Header        `json:"report_header"`
	Summary          *SummaryTotals `json:"summary_totals"`
	MonthlyRows      []Row          `json:"monthly_rows"`
	GrandTotals      *Row           `json:"grand_totals_row"`
	Metadata         *Metadata      `json:"metadata,omitempty"`

	// RowsMalformed is set when monthly_rows was provided but is not a list.
	RowsMalformed bool `json:"-"`
}

// Header identifies the account and period a statement covers.
type Header struct {
	AccountID         string  `json:"account_id" validate:"required"`
	Year              TaxYear `json:"year" validate:"required"`
	ClientDisplayName string  `json:"client_display_name" validate:"required"`
	Username          string  `json:"username" validate:"required"`
	PeriodStart       string  `json:"report_period_start" validate:"required"`
	PeriodEnd         string  `json:"report_period_end" validate:"required"`
	SourceFileName    string  `json:"source_file_name,omitempty"`
}

// SummaryTotals is the account summary block of a statement.
type SummaryTotals struct {
	OpeningBalance         Amount `json:"opening_balance"`
	TotalDepositWithdrawal Amount `json:"total_deposit_withdrawal"`
	TotalCreditDebit       Amount `json:"total_credit_debit"`
	ProfitLoss             Amount `json:"profit_loss"`
	ClosingBalanceEquity   Amount `json:"closing_balance_equity"`
}

// SummaryFields lists the required summary totals, in statement order.
var SummaryFields = []string{
	"opening_balance", "total_deposit_withdrawal", "total_credit_debit",
	"profit_loss", "closing_balance_equity",
}

// Field returns a summary total by its field name.
func (s *SummaryTotals) Field(name string) Amount {
	switch name {
	case "opening_balance":
		return s.OpeningBalance
	case "total_deposit_withdrawal":
		return s.TotalDepositWithdrawal
	case "total_credit_debit":
		return s.TotalCreditDebit
	case "profit_loss":
		return s.ProfitLoss
	case "closing_balance_equity":
		return s.ClosingBalanceEquity
	default:
		panic(fmt.Sprintf("unknown summary field %q", name))
	}
}

// Row is a monthly statement row. The grand totals row has the same shape,
// with a Label instead of a month.
type Row struct {
	Month      Label  `json:"month,omitempty"`
	TradeDate  string `json:"trade_date,omitempty"`
	Label      string `json:"label,omitempty"`
	TotalComm  Amount `json:"total_comm"`
	SecFee     Amount `json:"sec_fee"`
	NasdFee    Amount `json:"nasd_fee"`
	EcnTake    Amount `json:"ecn_take"`
	EcnAdd     Amount `json:"ecn_add"`
	RoutingFee Amount `json:"routing_fee"`
	NsccFee    Amount `json:"nscc_fee"`
	NetPnL     Amount `json:"net_pnl"`
	NetCash    Amount `json:"net_cash"`
}

// FeeFields lists the seven itemized fee columns of a row.
var FeeFields = []string{
	"total_comm", "sec_fee", "nasd_fee", "ecn_take", "ecn_add", "routing_fee", "nscc_fee",
}

// RowFields lists every numeric column of a row.
var RowFields = append(append([]string(nil), FeeFields...), "net_pnl", "net_cash")

// Field returns a row column by its field name.
func (r *Row) Field(name string) Amount {
	switch name {
	case "total_comm":
		return r.TotalComm
	case "sec_fee":
		return r.SecFee
	case "nasd_fee":
		return r.NasdFee
	case "ecn_take":
		return r.EcnTake
	case "ecn_add":
		return r.EcnAdd
	case "routing_fee":
		return r.RoutingFee
	case "nscc_fee":
		return r.NsccFee
	case "net_pnl":
		return r.NetPnL
	case "net_cash":
		return r.NetCash
	default:
		panic(fmt.Sprintf("unknown row field %q", name))
	}
}

// Metadata carries extraction hints that are not part of the statement itself.
type Metadata struct {
	Confidence    string `json:"confidence,omitempty"`
	LowConfidence bool   `json:"low_confidence,omitempty"`
}

// IsLowConfidence reports whether the extraction flagged the statement as unreliable.
func (m *Metadata) IsLowConfidence() bool {
	return m != nil && (strings.EqualFold(m.Confidence, "low") || m.LowConfidence)
}

// ReportType returns the source report type, defaulting to DefaultReportType.
func (s *Submission) ReportType() string {
	if s.SourceReportType == "" {
		return DefaultReportType
	}
	return s.SourceReportType
}

// AccountID returns the header account id, or "" when there is no header.
func (s *Submission) AccountID() string {
	if s == nil || s.Header == nil {
		return ""
	}
	return s.Header.AccountID
}

// Clone returns a copy of s that shares no mutable state with it.
func (s *Submission) Clone() *Submission {
	c := *s
	if s.Header != nil {
		h := *s.Header
		c.Header = &h
	}
	if s.Summary != nil {
		t := *s.Summary
		c.Summary = &t
	}
	if s.MonthlyRows != nil {
		c.MonthlyRows = append([]Row{}, s.MonthlyRows...)
	}
	if s.GrandTotals != nil {
		g := *s.GrandTotals
		c.GrandTotals = &g
	}
	if s.Metadata != nil {
		m := *s.Metadata
		c.Metadata = &m
	}
	return &c
}

func (s *Submission) UnmarshalJSON(data []byte) error {
	type plain Submission
	var aux struct {
		*plain
		MonthlyRows json.RawMessage `json:"monthly_rows"`
	}
	aux.plain = (*plain)(s)
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	raw := bytes.TrimSpace(aux.MonthlyRows)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		s.MonthlyRows = nil
	case raw[0] == '[':
		var rows []Row
		if err := json.Unmarshal(raw, &rows); err != nil {
			return fmt.Errorf("invalid monthly_rows: %w", err)
		}
		s.MonthlyRows = rows
	default:
		s.MonthlyRows = nil
		s.RowsMalformed = true
	}
	return nil
}

// TaxYear is the header tax year. Statements carry it as a number or as a
// numeric string; anything else reads as zero, which the validator reports
// as a missing field.
type TaxYear int

func (y *TaxYear) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		v, err := strconv.Atoi(n.String())
		if err != nil {
			*y = 0
			return nil
		}
		*y = TaxYear(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			v = 0
		}
		*y = TaxYear(v)
		return nil
	}
	*y = 0
	return nil
}

func (y TaxYear) String() string { return strconv.Itoa(int(y)) }

// Label is a free-form row label that statements write either as a number
// (month 6) or as a string ("June").
type Label string

func (l *Label) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = Label(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*l = Label(n.String())
		return nil
	}
	*l = ""
	return nil
}
