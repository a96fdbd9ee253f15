package taxclean

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// NaturalKey groups every version of one logical statement.
type NaturalKey struct {
	AccountID   string  `json:"account_id"`
	Year        TaxYear `json:"year"`
	PeriodStart string  `json:"report_period_start"`
	PeriodEnd   string  `json:"report_period_end"`
	ReportType  string  `json:"source_report_type"`
}

// naturalKeySeparator joins the key fields. It cannot appear in an account id
// or a period label.
const naturalKeySeparator = "|"

// NewNaturalKey returns the natural key of a submission. Fields are taken as
// they are, case-sensitive.
func NewNaturalKey(s *Submission) NaturalKey {
	k := NaturalKey{ReportType: s.ReportType()}
	if h := s.Header; h != nil {
		k.AccountID = h.AccountID
		k.Year = h.Year
		k.PeriodStart = h.PeriodStart
		k.PeriodEnd = h.PeriodEnd
	}
	return k
}

// String returns the key fields joined with "|".
func (k NaturalKey) String() string {
	return strings.Join([]string{k.AccountID, k.Year.String(), k.PeriodStart, k.PeriodEnd, k.ReportType}, naturalKeySeparator)
}

// Fingerprint is the SHA-256 digest of the economically meaningful content of
// a submission, hex encoded. Fingerprints are compared in full.
type Fingerprint string

// Short returns the first 16 hex digits, for display only.
func (f Fingerprint) Short() string {
	if len(f) <= 16 {
		return string(f)
	}
	return string(f[:16])
}

// ComputeFingerprint digests the header, summary totals, monthly rows and
// grand totals of s. The source file name, metadata and template version are
// excluded, and numbers are canonicalized, so that a resubmission of the
// same figures yields the same fingerprint.
func ComputeFingerprint(s *Submission) Fingerprint {
	sum := sha256.Sum256(canonicalContent(s))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

func canonicalContent(s *Submission) []byte {
	var w jsonObjectWriter
	if h := s.Header; h != nil {
		var hw jsonObjectWriter
		hw.Append("account_id", h.AccountID)
		hw.Append("year", h.Year)
		hw.Append("client_display_name", h.ClientDisplayName)
		hw.Append("username", h.Username)
		hw.Append("report_period_start", h.PeriodStart)
		hw.Append("report_period_end", h.PeriodEnd)
		w.Append("report_header", &hw)
	} else {
		w.AppendRaw("report_header", nil)
	}

	if t := s.Summary; t != nil {
		var tw jsonObjectWriter
		for _, f := range SummaryFields {
			tw.AppendRaw(f, t.Field(f).canonical())
		}
		w.Append("summary_totals", &tw)
	} else {
		w.AppendRaw("summary_totals", nil)
	}

	if s.MonthlyRows != nil {
		rows := make([]json.RawMessage, 0, len(s.MonthlyRows))
		for i := range s.MonthlyRows {
			rows = append(rows, canonicalRow(&s.MonthlyRows[i]))
		}
		w.AppendRaw("monthly_rows", jsonArray(rows))
	} else {
		w.AppendRaw("monthly_rows", nil)
	}

	if g := s.GrandTotals; g != nil {
		w.AppendRaw("grand_totals_row", canonicalRow(g))
	} else {
		w.AppendRaw("grand_totals_row", nil)
	}

	b, err := w.MarshalJSON()
	if err != nil {
		// every value above is either a plain string or a canonical token.
		panic("canonical serialization failed: " + err.Error())
	}
	return b
}

func canonicalRow(r *Row) json.RawMessage {
	var w jsonObjectWriter
	w.Append("month", string(r.Month))
	w.Append("trade_date", r.TradeDate)
	for _, f := range RowFields {
		w.AppendRaw(f, r.Field(f).canonical())
	}
	b, _ := w.MarshalJSON()
	return b
}
