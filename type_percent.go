package taxclean

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Percent is a display percentage: 25 means 25%.
type Percent float64

func (p Percent) Equal(q Percent) bool {
	// it has to be compared with some precision
	const precision = 0.0001
	diff := p - q
	if diff < 0 {
		diff = -diff
	}
	return diff < precision
}

func (p Percent) String() string {
	return fmt.Sprintf("%.2f%%", p)
}

// Rate is a multiplicative rate: 0.25 means 25%.
type Rate struct{ d decimal.Decimal }

// NewRate returns the rate for a decimal fraction.
func NewRate(d decimal.Decimal) Rate { return Rate{d} }

// ParseRate parses "25%" or "0.25".
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	if p, ok := strings.CutSuffix(s, "%"); ok {
		d, err := decimal.NewFromString(strings.TrimSpace(p))
		if err != nil {
			return Rate{}, fmt.Errorf("invalid rate %q: %w", s, err)
		}
		return Rate{d.Div(decimal.NewFromInt(100))}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rate{}, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	return Rate{d}, nil
}

func (r Rate) Decimal() decimal.Decimal { return r.d }
func (r Rate) IsZero() bool             { return r.d.IsZero() }

// String formats the rate as a percentage without trailing zeros: "25%".
func (r Rate) String() string {
	return r.d.Mul(decimal.NewFromInt(100)).String() + "%"
}

// UnmarshalText lets a Rate be read from configuration files.
func (r *Rate) UnmarshalText(text []byte) error {
	v, err := ParseRate(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func (r Rate) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// MarshalJSON writes the rate as a plain fraction: 0.25.
func (r Rate) MarshalJSON() ([]byte, error) { return []byte(r.d.String()), nil }

func (r *Rate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return r.UnmarshalText([]byte(s))
	}
	return r.UnmarshalText(data)
}
