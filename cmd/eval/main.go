// Command eval scores an LLM provider against a ConvFinQA-style dataset and
// writes the full report to a JSON file.
//
// Usage:
//
//	eval -dataset Data/dev.json -provider openai -out evaluation_results.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"finqa/internal/app"
	"finqa/internal/config"
	"finqa/internal/eval"
	"finqa/internal/logger"
	"finqa/internal/record"
)

func main() {
	var (
		dataset  = flag.String("dataset", "", "path to the dataset JSON file (required)")
		provider = flag.String("provider", "", "LLM provider: openai or groq (default from LLM_PROVIDER)")
		limit    = flag.Int("limit", 0, "evaluate only the first N records (0 = all)")
		workers  = flag.Int("workers", 0, "concurrent questions in flight (default from EVAL_WORKERS)")
		out      = flag.String("out", "evaluation_results.json", "path for the JSON report")
	)
	flag.Parse()

	if *dataset == "" {
		fmt.Fprintln(os.Stderr, "usage: eval -dataset <path> [-provider openai|groq] [-limit N] [-out file]")
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log, *dataset, *provider, *limit, *workers, *out); err != nil {
		log.Error("evaluation failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger, dataset, provider string, limit, workers int, out string) error {
	clients, err := app.BuildLLMs(cfg, log)
	if err != nil {
		return err
	}
	if provider == "" {
		provider = cfg.LLMProvider
	}
	client, ok := clients[provider]
	if !ok {
		return fmt.Errorf("provider %q not configured", provider)
	}

	records, err := eval.LoadDataset(dataset)
	if err != nil {
		return err
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	log.Info("evaluation started", "dataset", dataset, "records", len(records), "provider", provider)

	if workers <= 0 {
		workers = cfg.EvalWorkers
	}
	runner := &eval.Runner{
		LLM:        client,
		Log:        log,
		Workers:    workers,
		WordBudget: cfg.ContextWordBudget,
	}
	report, err := runner.Run(context.Background(), records)
	if err != nil {
		return err
	}

	printReport(report)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("\nDetailed results saved to %s\n", out)
	return nil
}

func printReport(report eval.Report) {
	fmt.Printf("\n%s Results:\n", report.Provider)
	fmt.Printf("Total Questions: %d\n", report.TotalQuestions)
	fmt.Printf("Successfully Processed: %d\n", report.ProcessedQuestions)
	fmt.Printf("Correct Answers: %d\n", report.CorrectAnswers)
	fmt.Printf("Accuracy (of processed): %s\n", record.FormatPercentage(report.Accuracy*100))
	fmt.Printf("Processing Success Rate: %s\n", record.FormatPercentage(report.ProcessingRate*100))
	fmt.Printf("Error Rate: %s\n", record.FormatPercentage(report.ErrorRate*100))
	fmt.Printf("Number of Errors: %d\n", len(report.Errors))

	if len(report.IncorrectAnswers) > 0 {
		fmt.Println("\nSample Incorrect Predictions:")
		for i, miss := range report.IncorrectAnswers {
			if i == 5 {
				break
			}
			fmt.Printf("\nQuestion %d: %s\n", i+1, miss.Question)
			fmt.Printf("Predicted: %s\n", miss.Predicted)
			fmt.Printf("Actual: %s\n", miss.Actual)
		}
	}
}
