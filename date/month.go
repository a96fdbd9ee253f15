package date

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month identifies a calendar month, as found on the trade-date label of a
// monthly statement row.
type Month struct {
	Year  int
	Month time.Month
}

// String formats the month the way statements label monthly rows: "2025-January".
func (m Month) String() string { return fmt.Sprintf("%d-%s", m.Year, m.Month) }

// ParseMonth parses a month label. Accepted forms are "2025-January",
// "2025-Jan", "2025-01" and "2025-1".
func ParseMonth(label string) (Month, error) {
	label = strings.TrimSpace(label)
	y, m, ok := strings.Cut(label, "-")
	if !ok {
		return Month{}, fmt.Errorf("invalid month label %q want format %q", label, "2006-January")
	}
	year, err := strconv.Atoi(y)
	if err != nil || len(y) != 4 {
		return Month{}, fmt.Errorf("invalid year in month label %q", label)
	}
	if n, err := strconv.Atoi(m); err == nil {
		if n < 1 || n > 12 {
			return Month{}, fmt.Errorf("invalid month number in label %q", label)
		}
		return Month{Year: year, Month: time.Month(n)}, nil
	}
	for i := time.January; i <= time.December; i++ {
		name := i.String()
		if strings.EqualFold(m, name) || strings.EqualFold(m, name[:3]) {
			return Month{Year: year, Month: i}, nil
		}
	}
	return Month{}, fmt.Errorf("invalid month name in label %q", label)
}

// LabelYear returns the leading year of any date or month label: "2025" for
// "2025-January", "2025-01-31" and "31.01.2025" alike. ok is false when no
// year can be found.
func LabelYear(label string) (year int, ok bool) {
	label = strings.TrimSpace(label)
	if strings.Contains(label, ".") {
		parts := strings.Split(label, ".")
		if len(parts) != 3 {
			return 0, false
		}
		y, err := strconv.Atoi(parts[2])
		return y, err == nil
	}
	y, _, _ := strings.Cut(label, "-")
	if len(y) != 4 {
		return 0, false
	}
	n, err := strconv.Atoi(y)
	return n, err == nil
}
