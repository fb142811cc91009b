package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"finqa/internal/app"
	"finqa/internal/chunker"
	"finqa/internal/eval"
	"finqa/internal/httputil"
	"finqa/internal/queue"
	"finqa/internal/store"
)

type ingestTaskPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
	Filename   string    `json:"filename"`
	Content    string    `json:"content"`
}

type evalTaskPayload struct {
	RunID    uuid.UUID `json:"run_id"`
	Dataset  string    `json:"dataset"`
	Provider string    `json:"provider"`
	Limit    int       `json:"limit"`
}

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	deps.Log.Info("worker starting")

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeIngest, func(ctx context.Context, task queue.Task) error {
			var payload ingestTaskPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return err
			}
			return handleIngest(ctx, deps, payload)
		})
	})

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeEvaluate, func(ctx context.Context, task queue.Task) error {
			var payload evalTaskPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return err
			}
			return handleEvaluate(ctx, deps, payload)
		})
	})

	g.Go(func() error {
		return httputil.ServeHealth(deps.Log, deps.Config.Port, "worker")
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("worker stopped", "err", err)
	}
}

// handleIngest chunks an uploaded filing, embeds the chunks, and marks the
// document ready for retrieval.
func handleIngest(ctx context.Context, deps app.Deps, payload ingestTaskPayload) error {
	if deps.Embedder == nil {
		return markDocFailed(ctx, deps, payload.DocumentID, fmt.Errorf("no embedder configured"))
	}

	chunks := chunker.Split(payload.Content, chunker.Options{MaxTokens: 400, Overlap: 40})
	if len(chunks) == 0 {
		return markDocFailed(ctx, deps, payload.DocumentID, fmt.Errorf("document %s has no extractable text", payload.Filename))
	}

	toSave := make([]store.Chunk, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		toSave[i] = store.Chunk{Index: c.Index, Text: c.Text, TokenCount: c.TokenCount}
		// Prefix the filename so embeddings carry document identity.
		texts[i] = fmt.Sprintf("Document: %s\n\n%s", payload.Filename, c.Text)
	}
	saved, err := deps.Store.SaveChunks(ctx, payload.DocumentID, toSave)
	if err != nil {
		return markDocFailed(ctx, deps, payload.DocumentID, fmt.Errorf("save chunks: %w", err))
	}

	vectors, err := deps.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return markDocFailed(ctx, deps, payload.DocumentID, fmt.Errorf("embed chunks: %w", err))
	}
	embs := make([]store.Embedding, len(saved))
	for i, c := range saved {
		embs[i] = store.Embedding{
			ChunkID: c.ID,
			Vector:  vectors[i],
			Model:   deps.Config.EmbeddingModel,
		}
	}
	if err := deps.Store.SaveEmbeddings(ctx, embs); err != nil {
		return markDocFailed(ctx, deps, payload.DocumentID, fmt.Errorf("save embeddings: %w", err))
	}

	return deps.Store.UpdateDocumentStatus(ctx, payload.DocumentID, store.StatusReady)
}

func markDocFailed(ctx context.Context, deps app.Deps, docID uuid.UUID, cause error) error {
	if err := deps.Store.UpdateDocumentStatus(ctx, docID, store.StatusFailed); err != nil {
		deps.Log.Error("failed to mark document failed", "document_id", docID, "err", err)
	}
	return cause
}

// handleEvaluate runs a batch evaluation and persists the report.
func handleEvaluate(ctx context.Context, deps app.Deps, payload evalTaskPayload) error {
	log := deps.Log.With("run_id", payload.RunID)

	client, err := deps.ClientFor(payload.Provider)
	if err != nil {
		return markRunFailed(ctx, deps, payload.RunID, err)
	}

	records, err := eval.LoadDataset(payload.Dataset)
	if err != nil {
		return markRunFailed(ctx, deps, payload.RunID, err)
	}
	if payload.Limit > 0 && payload.Limit < len(records) {
		records = records[:payload.Limit]
	}

	if err := deps.Store.UpdateEvalRunStatus(ctx, payload.RunID, store.RunRunning); err != nil {
		return err
	}
	log.Info("evaluation started", "dataset", payload.Dataset, "records", len(records), "provider", client.Provider())

	runner := &eval.Runner{
		LLM:        client,
		Log:        log,
		Workers:    deps.Config.EvalWorkers,
		WordBudget: deps.Config.ContextWordBudget,
	}
	report, err := runner.Run(ctx, records)
	if err != nil {
		return markRunFailed(ctx, deps, payload.RunID, err)
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return markRunFailed(ctx, deps, payload.RunID, err)
	}
	misses := make([]store.EvalMiss, len(report.IncorrectAnswers))
	for i, m := range report.IncorrectAnswers {
		misses[i] = store.EvalMiss{
			RunID:     payload.RunID,
			Question:  m.Question,
			Predicted: m.Predicted,
			Actual:    m.Actual,
		}
	}
	if err := deps.Store.SaveEvalReport(ctx, payload.RunID, reportJSON, misses); err != nil {
		return markRunFailed(ctx, deps, payload.RunID, err)
	}

	log.Info("evaluation finished",
		"total", report.TotalQuestions,
		"processed", report.ProcessedQuestions,
		"correct", report.CorrectAnswers,
		"accuracy", report.Accuracy,
	)
	return nil
}

func markRunFailed(ctx context.Context, deps app.Deps, runID uuid.UUID, cause error) error {
	if err := deps.Store.UpdateEvalRunStatus(ctx, runID, store.RunFailed); err != nil {
		deps.Log.Error("failed to mark run failed", "run_id", runID, "err", err)
	}
	return cause
}
