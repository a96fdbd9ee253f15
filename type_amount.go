package taxclean

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a numeric field of a submission as it was received.
//
// Statements are produced by upstream extraction and may carry a string or a
// null where a number is expected. Amount keeps the raw JSON token so that
// such values survive decoding and can be reported by the validator instead
// of failing the whole submission.
type Amount struct {
	raw json.RawMessage
}

// NewAmount returns a numeric Amount.
func NewAmount(v decimal.Decimal) Amount {
	return Amount{raw: json.RawMessage(v.String())}
}

// N is a shorthand for a numeric Amount, mostly useful in tests and fixtures.
// It panics if s is not a decimal number.
func N(s string) Amount { return NewAmount(decimal.RequireFromString(s)) }

// RawAmount returns an Amount holding the given raw JSON token verbatim, for
// instance `"n/a"` or `null`.
func RawAmount(token string) Amount { return Amount{raw: json.RawMessage(token)} }

// Present reports whether the field was provided with a non-null value.
func (a Amount) Present() bool {
	t := bytes.TrimSpace(a.raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

// IsNumber reports whether the field holds a JSON number.
func (a Amount) IsNumber() bool {
	_, ok := a.number()
	return ok
}

func (a Amount) number() (decimal.Decimal, bool) {
	t := bytes.TrimSpace(a.raw)
	if len(t) == 0 || (t[0] != '-' && (t[0] < '0' || t[0] > '9')) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(string(t))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Decimal returns the numeric value, or zero when the field is absent or not
// a JSON number. Tax computations use this strict reading.
func (a Amount) Decimal() decimal.Decimal {
	d, _ := a.number()
	return d
}

// Parse is the lenient reading used by reconciliation: a JSON number, or a
// string holding a decimal number. ok is false otherwise.
func (a Amount) Parse() (d decimal.Decimal, ok bool) {
	if d, ok := a.number(); ok {
		return d, true
	}
	var s string
	if err := json.Unmarshal(a.raw, &s); err != nil {
		return decimal.Zero, false
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// String returns the value as it was received, unquoted for strings and
// empty when absent.
func (a Amount) String() string {
	if !a.Present() {
		return ""
	}
	var s string
	if err := json.Unmarshal(a.raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(a.raw))
}

// canonical returns a stable textual form: numbers are normalized so that
// 100, 100.0 and 1e2 are equal, other tokens are compacted JSON.
func (a Amount) canonical() json.RawMessage {
	if !a.Present() {
		return json.RawMessage("null")
	}
	if d, ok := a.number(); ok {
		return json.RawMessage(d.String())
	}
	var b bytes.Buffer
	if err := json.Compact(&b, a.raw); err != nil {
		return json.RawMessage(strconv.Quote(string(a.raw)))
	}
	return b.Bytes()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Present() {
		return []byte("null"), nil
	}
	return a.raw, nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	a.raw = append(json.RawMessage(nil), data...)
	return nil
}
