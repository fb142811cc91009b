package eval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"

	"finqa/internal/llm"
	"finqa/internal/record"
)

func newTestRunner(client llm.Client) *Runner {
	return &Runner{
		LLM:     client,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Workers: 2,
	}
}

func promptContaining(substr string) any {
	return mock.MatchedBy(func(p string) bool { return strings.Contains(p, substr) })
}

func testRecords() []record.Record {
	return []record.Record{
		{
			PreText: "revenues increased .",
			Table:   record.Table{Rows: [][]string{{"", "2008", "2007"}, {"revenue", "1200", "1000"}}},
			QAs: []record.QA{
				{Question: "what was revenue in 2008?", Answer: "1200"},
				{Question: "what was the percentage change?", Answer: "20%"},
			},
		},
		{
			Table: record.Table{Fields: map[string]any{"expenses": 300}},
			QAs: []record.QA{
				{Question: "what were expenses?", Answer: "300"},
			},
		},
	}
}

func TestRunAllCorrect(t *testing.T) {
	mockLLM := new(llm.MockClient)
	mockLLM.On("Provider").Return("groq")
	mockLLM.On("Answer", mock.Anything, promptContaining("revenue in 2008")).Return("$ 1,200", nil).Once()
	mockLLM.On("Answer", mock.Anything, promptContaining("percentage change")).Return("20.0%", nil).Once()
	mockLLM.On("Answer", mock.Anything, promptContaining("expenses")).Return("300", nil).Once()

	report, err := newTestRunner(mockLLM).Run(context.Background(), testRecords())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Provider != "groq" {
		t.Errorf("provider: got %s", report.Provider)
	}
	if report.TotalQuestions != 3 {
		t.Errorf("total: got %d, want 3", report.TotalQuestions)
	}
	if report.ProcessedQuestions != 3 {
		t.Errorf("processed: got %d, want 3", report.ProcessedQuestions)
	}
	if report.CorrectAnswers != 3 {
		t.Errorf("correct: got %d, want 3", report.CorrectAnswers)
	}
	if report.Accuracy != 1.0 {
		t.Errorf("accuracy: got %f, want 1.0", report.Accuracy)
	}
	if len(report.IncorrectAnswers) != 0 {
		t.Errorf("unexpected misses: %v", report.IncorrectAnswers)
	}
	mockLLM.AssertExpectations(t)
}

func TestRunRecordsMisses(t *testing.T) {
	mockLLM := new(llm.MockClient)
	mockLLM.On("Provider").Return("openai")
	mockLLM.On("Answer", mock.Anything, promptContaining("revenue in 2008")).Return("999", nil).Once()
	mockLLM.On("Answer", mock.Anything, promptContaining("percentage change")).Return("20%", nil).Once()
	mockLLM.On("Answer", mock.Anything, promptContaining("expenses")).Return("300", nil).Once()

	report, err := newTestRunner(mockLLM).Run(context.Background(), testRecords())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.CorrectAnswers != 2 {
		t.Errorf("correct: got %d, want 2", report.CorrectAnswers)
	}
	if len(report.IncorrectAnswers) != 1 {
		t.Fatalf("misses: got %d, want 1", len(report.IncorrectAnswers))
	}
	miss := report.IncorrectAnswers[0]
	if miss.Question != "what was revenue in 2008?" || miss.Predicted != "999" || miss.Actual != "1200" {
		t.Errorf("unexpected miss record: %+v", miss)
	}
}

func TestRunToleratesProviderErrors(t *testing.T) {
	mockLLM := new(llm.MockClient)
	mockLLM.On("Provider").Return("groq")
	mockLLM.On("Answer", mock.Anything, promptContaining("revenue in 2008")).Return("", errors.New("rate limited")).Once()
	mockLLM.On("Answer", mock.Anything, promptContaining("percentage change")).Return("", nil).Once()
	mockLLM.On("Answer", mock.Anything, promptContaining("expenses")).Return("300", nil).Once()

	report, err := newTestRunner(mockLLM).Run(context.Background(), testRecords())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.TotalQuestions != 3 {
		t.Errorf("total: got %d", report.TotalQuestions)
	}
	// One provider error, one empty response: only one question processed.
	if report.ProcessedQuestions != 1 {
		t.Errorf("processed: got %d, want 1", report.ProcessedQuestions)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("errors: got %d, want 1", len(report.Errors))
	}
	if report.Errors[0].Index != "0_0" {
		t.Errorf("error index: got %s", report.Errors[0].Index)
	}
	if report.Accuracy != 1.0 {
		t.Errorf("accuracy over processed: got %f", report.Accuracy)
	}
	if report.ProcessingRate <= 0.3 || report.ProcessingRate >= 0.4 {
		t.Errorf("processing rate: got %f", report.ProcessingRate)
	}
}

func TestRunEmptyDataset(t *testing.T) {
	mockLLM := new(llm.MockClient)
	mockLLM.On("Provider").Return("groq")

	report, err := newTestRunner(mockLLM).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.TotalQuestions != 0 || report.Accuracy != 0 {
		t.Errorf("unexpected report for empty dataset: %+v", report)
	}
}

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.json")
	content := `[{"table": [["a", "1"]], "qa": {"question": "q", "answer": "1"}}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}

func TestLoadDatasetMissingFile(t *testing.T) {
	if _, err := LoadDataset(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
