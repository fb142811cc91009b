// Package eval scores an LLM provider against a ConvFinQA-style reference
// dataset: every question is asked, normalized, and compared to the
// reference answer, then tallied into an aggregate report.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"finqa/internal/answer"
	"finqa/internal/llm"
	"finqa/internal/prompt"
	"finqa/internal/record"
)

// Miss is one incorrect prediction.
type Miss struct {
	Question  string `json:"question"`
	Predicted string `json:"predicted"`
	Actual    string `json:"actual"`
}

// ItemError records a question that could not be processed at all.
type ItemError struct {
	Index string `json:"index"`
	Error string `json:"error"`
}

// Report aggregates a full evaluation run. Accuracy is computed over
// processed questions only; questions with empty predictions count toward
// the total but not the denominator.
type Report struct {
	Provider           string      `json:"provider"`
	TotalQuestions     int         `json:"total_questions"`
	ProcessedQuestions int         `json:"processed_questions"`
	CorrectAnswers     int         `json:"correct_answers"`
	Accuracy           float64     `json:"accuracy"`
	ErrorRate          float64     `json:"error_rate"`
	ProcessingRate     float64     `json:"successful_processing_rate"`
	IncorrectAnswers   []Miss      `json:"incorrect_answers"`
	Errors             []ItemError `json:"errors"`
}

// Runner drives a batch evaluation with bounded concurrency.
type Runner struct {
	LLM        llm.Client
	Log        *slog.Logger
	Workers    int
	WordBudget int
}

type question struct {
	index    string // "<record>_<qa>" for error reporting
	question string
	actual   string
	userMsg  string
}

type outcome struct {
	predicted string
	err       error
}

// LoadDataset reads and parses a dataset file (a JSON array of records).
func LoadDataset(path string) ([]record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	records, err := record.ParseAll(data)
	if err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	return records, nil
}

// Run evaluates the provider over the given records. Per-question failures
// are tallied in the report; only context cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, records []record.Record) (Report, error) {
	questions, buildErrors := r.prepare(records)

	report := Report{
		Provider:       r.LLM.Provider(),
		TotalQuestions: len(questions) + len(buildErrors),
		Errors:         buildErrors,
	}

	workers := r.Workers
	if workers <= 0 {
		workers = 4
	}

	outcomes := make([]outcome, len(questions))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, q := range questions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			predicted, err := r.LLM.Answer(gctx, q.userMsg)
			outcomes[i] = outcome{predicted: predicted, err: err}

			mu.Lock()
			done++
			if done%25 == 0 {
				r.Log.Info("evaluation progress", "done", done, "total", len(questions))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	// Aggregate in input order so reports are deterministic.
	for i, q := range questions {
		out := outcomes[i]
		switch {
		case out.err != nil:
			report.Errors = append(report.Errors, ItemError{Index: q.index, Error: out.err.Error()})
		case out.predicted == "":
			// Empty response: counted in total, excluded from accuracy.
		default:
			report.ProcessedQuestions++
			if answer.Equal(out.predicted, q.actual) {
				report.CorrectAnswers++
			} else {
				report.IncorrectAnswers = append(report.IncorrectAnswers, Miss{
					Question:  q.question,
					Predicted: out.predicted,
					Actual:    q.actual,
				})
			}
		}
	}

	if report.ProcessedQuestions > 0 {
		report.Accuracy = float64(report.CorrectAnswers) / float64(report.ProcessedQuestions)
	}
	if report.TotalQuestions > 0 {
		report.ErrorRate = float64(len(report.Errors)) / float64(report.TotalQuestions)
		report.ProcessingRate = float64(report.ProcessedQuestions) / float64(report.TotalQuestions)
	}
	return report, nil
}

// prepare flattens records into per-question prompts. Questions whose prompt
// cannot be built become error entries up front.
func (r *Runner) prepare(records []record.Record) ([]question, []ItemError) {
	var questions []question
	var buildErrors []ItemError
	for ri, rec := range records {
		table := rec.EvalTable()
		context := rec.Context()
		for qi, qa := range rec.QAs {
			index := fmt.Sprintf("%d_%d", ri, qi)
			userMsg, err := prompt.Build(prompt.Input{
				Question:   qa.Question,
				Context:    context,
				TableData:  table.Data(),
				WordBudget: r.WordBudget,
			})
			if err != nil {
				buildErrors = append(buildErrors, ItemError{Index: index, Error: err.Error()})
				continue
			}
			questions = append(questions, question{
				index:    index,
				question: qa.Question,
				actual:   qa.Answer,
				userMsg:  userMsg,
			})
		}
	}
	return questions, buildErrors
}
