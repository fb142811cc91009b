// Package answer canonicalizes predicted and reference answer strings so
// that "$14.1%", "14.1 %" and "14" compare the way a grader would compare
// them: numerically when both sides are numbers, byte-wise otherwise.
package answer

import (
	"math"
	"strconv"
	"strings"
)

var unitReplacer = strings.NewReplacer(
	"$", "",
	"%", "",
	",", "",
	"million", "",
	"billion", "",
	"thousand", "",
)

// Normalize lowercases and strips currency symbols, percent signs, thousands
// separators and unit words. A value that then parses as a number is
// returned as the decimal string of that value rounded to the nearest
// integer; anything else is returned as the stripped string. Ties round to
// even, so "0.5" and "1.5" land on "0" and "2".
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSpace(unitReplacer.Replace(s))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatInt(int64(math.RoundToEven(f)), 10)
	}
	return s
}

// Equal reports whether a predicted answer matches the reference answer.
// Both sides are normalized first; if both normalize to numbers the rounded
// values are compared numerically, otherwise the strings must match exactly.
func Equal(predicted, actual string) bool {
	pred := Normalize(predicted)
	act := Normalize(actual)

	predF, predErr := strconv.ParseFloat(pred, 64)
	actF, actErr := strconv.ParseFloat(act, 64)
	if predErr == nil && actErr == nil {
		return predF == actF
	}
	return pred == act
}
