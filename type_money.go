package taxclean

import (
	"encoding/json"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the currency statements are reported in unless configured otherwise.
const DefaultCurrency = "USD"

// Money represents a monetary value derived from a statement. Derived values
// are always rounded to the currency's minor unit.
type Money struct {
	value decimal.Decimal // as major unit value
	cur   string
}

// M returns a Money rounded to the currency's minor unit.
func M(value decimal.Decimal, currency string) Money {
	m := Money{value: value, cur: currency}
	return m.round()
}

// currency returns the money's currency
func (m Money) currency() money.Currency {
	code := m.cur
	if code == "" {
		code = DefaultCurrency
	}
	// to get a never nil currency I need to call the Money constructor
	return *money.New(0, code).Currency()
}

func (m Money) round() Money {
	m.value = m.value.Round(int32(m.currency().Fraction))
	return m
}

// String returns the string representation of the money value, for instance "$3,719.50".
func (m Money) String() string {
	cur := m.currency()
	dec := m.value.Shift(int32(cur.Fraction))
	return cur.Formatter().Format(dec.IntPart())
}

// SignedString returns the string representation of the money value with a sign.
// 0 is represented as a "-"
func (m Money) SignedString() string {
	if m.value.IsZero() {
		return "-"
	}
	if m.value.IsPositive() {
		return "+" + m.String()
	}
	return m.String()
}

func (m Money) Currency() string            { return m.cur }
func (m Money) Decimal() decimal.Decimal    { return m.value }
func (m Money) Equal(n Money) bool          { return m.value.Equal(n.value) && m.cur == n.cur }
func (m Money) IsZero() bool                { return m.value.IsZero() }
func (m Money) IsPositive() bool            { return m.value.IsPositive() }
func (m Money) IsNegative() bool            { return m.value.IsNegative() }
func (m Money) GreaterThan(n Money) bool    { return m.value.GreaterThan(n.value) }
func (m Money) LessThan(n Money) bool       { return m.value.LessThan(n.value) }
func (m Money) Abs() Money                  { return Money{value: m.value.Abs(), cur: m.cur} }
func (m Money) Mul(n decimal.Decimal) Money { return Money{value: m.value.Mul(n), cur: m.cur}.round() }

// binary operators.
func (m Money) Add(n Money) Money { return Money{value: m.value.Add(n.value), cur: cur(m, n)}.round() }
func (m Money) Sub(n Money) Money { return Money{value: m.value.Sub(n.value), cur: cur(m, n)}.round() }

// makes the "" currency totally weak.
func cur(A, B Money) string {
	if A.cur == "" {
		return B.cur
	}
	if B.cur == "" {
		return A.cur
	}
	if A.cur != B.cur {
		panic("currency mismatch" + A.cur + "!=" + B.cur)
	}
	return A.cur
}

// RatioPercent returns m/n as a percentage rounded to 2 decimals, and false
// when n is zero.
func (m Money) RatioPercent(n Money) (Percent, bool) {
	if n.IsZero() {
		return 0, false
	}
	r := m.value.Div(n.value).Mul(decimal.NewFromInt(100)).Round(2)
	return Percent(r.InexactFloat64()), true
}

func (m Money) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.AppendNonEmpty("currency", m.cur)
	w.Append("amount", m.value.Round(int32(m.currency().Fraction)))
	return w.MarshalJSON()
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var aux struct {
		Currency string          `json:"currency"`
		Amount   decimal.Decimal `json:"amount"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("invalid money %s: %w", data, err)
	}
	m.value, m.cur = aux.Amount, aux.Currency
	return nil
}
