// Package prompt builds the chat messages sent to the LLM provider. The
// model does all the reasoning; the contract here is that it must come back
// with nothing but the final answer on a single line.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SystemMessage is the fixed system role content for every request.
const SystemMessage = "You are a financial analysis expert. Provide answer of given question based on the provided financial data."

const header = `You are a financial assistant tasked with answering quantitative questions based on financial documents.

Below is the financial context, a specific question, and structured table data.

Your job is to extract the correct numerical answer to the question by following these structured steps internally.
You should only return the final answer - no explanation or reasoning is required.

---

Financial Context:
%s

Question:
%s

Table Data:
%s
`

const analysisSection = `
Available Numeric Fields:
%s

Pre-calculated Field Values:
%s
`

const footer = `
---

Instructions to Solve Internally:

1. Carefully read and understand the financial question.
2. Identify the relevant numeric fields from the table or pre-parsed values.
3. Perform any required calculations such as:
   - Year-over-year difference: value_year_2 - value_year_1
   - Percentage change: (value_year_2 - value_year_1) / value_year_1 * 100
   - Ratios or additions/subtractions across fields.
4. Always prefer values from the pre-calculated section if already provided.
5. Return only the final numeric answer (e.g., 14.1%, 123 million, -56.2).

Do NOT return:
- Reasoning
- Step-by-step text
- Any justification
- Any explanation or code

Just return the final answer on a single line.
`

// Input carries everything the prompt needs. Analysis sections are included
// only when NumericFields or Calculations are present; the batch evaluator
// sends the raw table alone.
type Input struct {
	Question      string
	Context       string
	TableData     any
	NumericFields []string
	Calculations  any

	// WordBudget caps the context length; 0 means DefaultWordBudget.
	WordBudget int
}

// DefaultWordBudget bounds the narrative context so oversized filings do not
// exhaust the model's window.
const DefaultWordBudget = 3000

// Build renders the user prompt.
func Build(in Input) (string, error) {
	budget := in.WordBudget
	if budget <= 0 {
		budget = DefaultWordBudget
	}
	tableJSON, err := marshalIndent(in.TableData)
	if err != nil {
		return "", fmt.Errorf("encode table data: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, header, TruncateWords(in.Context, budget), in.Question, tableJSON)

	if len(in.NumericFields) > 0 || in.Calculations != nil {
		calcJSON, err := marshalIndent(in.Calculations)
		if err != nil {
			return "", fmt.Errorf("encode calculations: %w", err)
		}
		fmt.Fprintf(&b, analysisSection, strings.Join(in.NumericFields, ", "), calcJSON)
	}
	b.WriteString(footer)
	return b.String(), nil
}

// TruncateWords limits text to at most n whitespace-delimited words, cutting
// at a word boundary.
func TruncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[:n], " ")
}

func marshalIndent(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
