package record

import (
	"fmt"
	"math"
	"sort"
)

// Calculation is a pre-parsed numeric value surfaced to the model so it does
// not have to re-read the raw table cell.
type Calculation struct {
	Value float64 `json:"value"`
	Type  string  `json:"type"`
}

// Analysis carries the prompt ingredients derived from a table: the table
// itself, the names of fields that parsed as numbers, and their values.
type Analysis struct {
	TableData     any                    `json:"table_data"`
	NumericFields []string               `json:"numeric_fields"`
	Calculations  map[string]Calculation `json:"calculations"`
}

// Analyze extracts numeric fields and pre-parsed values from a table.
// Flat-object tables yield one field per numeric entry. Row tables yield one
// field per numeric cell, named "<row label> (<column header>)", plus a
// percent-change entry per row spanning its first and last numeric cells.
func Analyze(t Table) (Analysis, error) {
	if t.IsEmpty() {
		return Analysis{}, ErrNoTable
	}
	a := Analysis{
		TableData:    t.Data(),
		Calculations: map[string]Calculation{},
	}

	if t.Fields != nil {
		for name, val := range t.Fields {
			f, ok := numericValue(val)
			if !ok {
				continue
			}
			a.NumericFields = append(a.NumericFields, name)
			a.Calculations[name] = Calculation{Value: f, Type: "numeric"}
		}
		sort.Strings(a.NumericFields)
		return a, nil
	}

	if len(t.Rows) < 2 {
		return a, nil
	}
	header := t.Rows[0]
	for _, row := range t.Rows[1:] {
		if len(row) == 0 {
			continue
		}
		label := row[0]
		var first, last float64
		count := 0
		for j := 1; j < len(row); j++ {
			f, ok := ParseNumeric(row[j])
			if !ok {
				continue
			}
			name := fmt.Sprintf("%s (%s)", label, columnHeader(header, j))
			a.NumericFields = append(a.NumericFields, name)
			a.Calculations[name] = Calculation{Value: f, Type: "numeric"}
			if count == 0 {
				first = f
			}
			last = f
			count++
		}
		if count >= 2 {
			change := PercentChange(last, first)
			if !math.IsInf(change, 0) {
				a.Calculations[label+" percent change"] = Calculation{Value: change, Type: "pct_change"}
			}
		}
	}
	return a, nil
}

func numericValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		return ParseNumeric(x)
	default:
		return 0, false
	}
}

func columnHeader(header []string, j int) string {
	if j < len(header) && header[j] != "" {
		return header[j]
	}
	return fmt.Sprintf("col %d", j)
}
