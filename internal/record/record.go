// Package record models ConvFinQA-style financial documents: pre/post
// narrative text, a financial table, and one or more question/answer pairs.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrNoTable = errors.New("no table data in record")

// QA is a single question/reference-answer pair.
type QA struct {
	ID       string `json:"id,omitempty"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Record is one ConvFinQA-style document.
type Record struct {
	ID       string
	PreText  string
	PostText string
	Table    Table
	TableOri Table
	QAs      []QA
}

// Table holds financial table data in either of the two shapes datasets use:
// an array of rows (first row is the header) or a flat field→value object.
type Table struct {
	Rows   [][]string
	Fields map[string]any
}

// IsEmpty reports whether the table carries no data at all.
func (t Table) IsEmpty() bool {
	return len(t.Rows) == 0 && len(t.Fields) == 0
}

// Data returns the table in a JSON-encodable form for prompt embedding.
func (t Table) Data() any {
	if len(t.Rows) > 0 {
		return t.Rows
	}
	if t.Fields != nil {
		return t.Fields
	}
	return map[string]any{}
}

// UnmarshalJSON accepts both row-array and flat-object table encodings.
func (t *Table) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimLeftFunc(string(data), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	switch {
	case strings.HasPrefix(trimmed, "["):
		var raw [][]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("table rows: %w", err)
		}
		t.Rows = make([][]string, len(raw))
		for i, row := range raw {
			t.Rows[i] = make([]string, len(row))
			for j, cell := range row {
				t.Rows[i][j] = stringifyCell(cell)
			}
		}
		return nil
	case strings.HasPrefix(trimmed, "{"):
		return json.Unmarshal(data, &t.Fields)
	case trimmed == "null":
		return nil
	default:
		return fmt.Errorf("unsupported table encoding: %s", firstN(trimmed, 20))
	}
}

func (t Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Data())
}

// text accepts a plain string or an array of strings (joined with spaces);
// datasets ship narrative text both ways.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = text(s)
		return nil
	}
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("text field: %w", err)
	}
	*t = text(strings.Join(parts, " "))
	return nil
}

// Parse decodes a single ConvFinQA-style record. QA pairs may appear as a
// single "qa" object or as "qa_0", "qa_1", ... keys; "qa" is processed
// first, then the qa_N keys in sorted key order.
func Parse(data []byte) (Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("invalid record JSON: %w", err)
	}

	var r Record
	if msg, ok := raw["id"]; ok {
		_ = json.Unmarshal(msg, &r.ID)
	}
	if msg, ok := raw["pre_text"]; ok {
		var t text
		if err := t.UnmarshalJSON(msg); err != nil {
			return Record{}, err
		}
		r.PreText = string(t)
	}
	if msg, ok := raw["post_text"]; ok {
		var t text
		if err := t.UnmarshalJSON(msg); err != nil {
			return Record{}, err
		}
		r.PostText = string(t)
	}
	if msg, ok := raw["table"]; ok {
		if err := r.Table.UnmarshalJSON(msg); err != nil {
			return Record{}, err
		}
	}
	if msg, ok := raw["table_ori"]; ok {
		if err := r.TableOri.UnmarshalJSON(msg); err != nil {
			return Record{}, err
		}
	}

	if msg, ok := raw["qa"]; ok {
		qa, err := parseQA(msg)
		if err != nil {
			return Record{}, err
		}
		r.QAs = append(r.QAs, qa)
	}
	var qaKeys []string
	for k := range raw {
		if strings.HasPrefix(k, "qa_") {
			qaKeys = append(qaKeys, k)
		}
	}
	sort.Strings(qaKeys)
	for _, k := range qaKeys {
		qa, err := parseQA(raw[k])
		if err != nil {
			return Record{}, err
		}
		r.QAs = append(r.QAs, qa)
	}
	return r, nil
}

// ParseAll decodes a dataset file: a JSON array of records.
func ParseAll(data []byte) ([]Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("invalid dataset JSON: %w", err)
	}
	records := make([]Record, 0, len(items))
	for i, item := range items {
		r, err := Parse(item)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func parseQA(data []byte) (QA, error) {
	var qa QA
	if err := json.Unmarshal(data, &qa); err != nil {
		return QA{}, fmt.Errorf("invalid qa pair: %w", err)
	}
	return qa, nil
}

// Context assembles the narrative context the way the dataset intends:
// text before the table, then text after it.
func (r Record) Context() string {
	return strings.TrimSpace(r.PreText + " " + r.PostText)
}

// EvalTable returns the table used for evaluation, preferring the original
// (unnormalized) table when the record carries one.
func (r Record) EvalTable() Table {
	if !r.TableOri.IsEmpty() {
		return r.TableOri
	}
	return r.Table
}

func stringifyCell(cell any) string {
	switch v := cell.(type) {
	case string:
		return v
	case float64:
		return trimFloat(v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
