package date

import "fmt"

// Range represents a range of dates, boundaries included.
type Range struct{ From, To Date }

// ParseRange parses a report period from its start and end labels.
func ParseRange(from, to string) (Range, error) {
	f, err := Parse(from)
	if err != nil {
		return Range{}, fmt.Errorf("invalid period start: %w", err)
	}
	t, err := Parse(to)
	if err != nil {
		return Range{}, fmt.Errorf("invalid period end: %w", err)
	}
	if t.Before(f) {
		return Range{}, fmt.Errorf("period end %s is before start %s", t, f)
	}
	return Range{From: f, To: t}, nil
}

// Contains return true date is included in the range (boundaries included)
func (r Range) Contains(date Date) bool { return !date.Before(r.From) && !date.After(r.To) }

// IsCalendarYear reports whether r covers exactly one calendar year.
func (r Range) IsCalendarYear() bool {
	return r.From == New(r.From.Year(), 1, 1) && r.To == New(r.From.Year(), 12, 31)
}

// String formats the range the way statement headers do.
func (r Range) String() string { return r.From.Broker() + " -- " + r.To.Broker() }
