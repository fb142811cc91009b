package record

import (
	"math"
	"strconv"
	"strings"
)

// ParseNumeric extracts a float from a financial cell value. It tolerates
// currency symbols, percent signs, thousands separators, and accounting
// negatives like "(123.4)".
func ParseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	replacer := strings.NewReplacer("$", "", "%", "", ",", "", " ", " ")
	s = strings.TrimSpace(replacer.Replace(s))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

// PercentChange computes the percentage change from previous to current.
// A zero base yields ±Inf, matching the convention that the change is
// unbounded rather than undefined.
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return math.Inf(1)
		}
		return math.Inf(-1)
	}
	return (current - previous) / math.Abs(previous) * 100
}

// FormatPercentage renders a value with two decimals and a percent sign.
func FormatPercentage(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
