package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"finqa/internal/app"
	"finqa/internal/config"
	"finqa/internal/embeddings"
	"finqa/internal/llm"
	"finqa/internal/store"
)

func newTestDeps(st store.Store, emb embeddings.Embedder, client llm.Client) app.Deps {
	deps := app.Deps{
		Store:    st,
		Embedder: emb,
		Config: config.Config{
			LLMProvider:    "groq",
			EmbeddingModel: "text-embedding-3-small",
			EvalWorkers:    2,
		},
		Log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if client != nil {
		deps.LLMs = map[string]llm.Client{"groq": client}
	}
	return deps
}

func TestHandleIngest(t *testing.T) {
	docID := uuid.New()
	chunkID := uuid.New()

	t.Run("chunks, embeds, and marks ready", func(t *testing.T) {
		mockStore := new(store.MockStore)
		mockEmbedder := new(embeddings.MockEmbedder)

		mockStore.On("SaveChunks", mock.Anything, docID, mock.Anything).
			Return([]store.Chunk{{ID: chunkID, Index: 0, Text: "net revenues increased"}}, nil).Once()
		mockEmbedder.On("EmbedBatch", mock.Anything, mock.Anything).
			Return([]embeddings.Vector{{0.1, 0.2}}, nil).Once()
		mockStore.On("SaveEmbeddings", mock.Anything, mock.MatchedBy(func(embs []store.Embedding) bool {
			return len(embs) == 1 && embs[0].ChunkID == chunkID && embs[0].Model == "text-embedding-3-small"
		})).Return(nil).Once()
		mockStore.On("UpdateDocumentStatus", mock.Anything, docID, store.StatusReady).Return(nil).Once()

		deps := newTestDeps(mockStore, mockEmbedder, nil)
		err := handleIngest(context.Background(), deps, ingestTaskPayload{
			DocumentID: docID,
			Filename:   "filing.txt",
			Content:    "net revenues increased",
		})
		if err != nil {
			t.Fatalf("handleIngest: %v", err)
		}
		mockStore.AssertExpectations(t)
		mockEmbedder.AssertExpectations(t)
	})

	t.Run("empty document marks failed", func(t *testing.T) {
		mockStore := new(store.MockStore)
		mockStore.On("UpdateDocumentStatus", mock.Anything, docID, store.StatusFailed).Return(nil).Once()

		deps := newTestDeps(mockStore, new(embeddings.MockEmbedder), nil)
		err := handleIngest(context.Background(), deps, ingestTaskPayload{
			DocumentID: docID,
			Filename:   "empty.txt",
			Content:    "   ",
		})
		if err == nil {
			t.Fatal("expected error for empty document")
		}
		mockStore.AssertExpectations(t)
	})

	t.Run("embedding failure marks failed", func(t *testing.T) {
		mockStore := new(store.MockStore)
		mockEmbedder := new(embeddings.MockEmbedder)

		mockStore.On("SaveChunks", mock.Anything, docID, mock.Anything).
			Return([]store.Chunk{{ID: chunkID, Index: 0, Text: "some text"}}, nil).Once()
		mockEmbedder.On("EmbedBatch", mock.Anything, mock.Anything).
			Return(nil, errors.New("api error")).Once()
		mockStore.On("UpdateDocumentStatus", mock.Anything, docID, store.StatusFailed).Return(nil).Once()

		deps := newTestDeps(mockStore, mockEmbedder, nil)
		err := handleIngest(context.Background(), deps, ingestTaskPayload{
			DocumentID: docID,
			Filename:   "filing.txt",
			Content:    "some text",
		})
		if err == nil {
			t.Fatal("expected error when embedding fails")
		}
		mockStore.AssertExpectations(t)
	})

	t.Run("no embedder marks failed", func(t *testing.T) {
		mockStore := new(store.MockStore)
		mockStore.On("UpdateDocumentStatus", mock.Anything, docID, store.StatusFailed).Return(nil).Once()

		deps := newTestDeps(mockStore, nil, nil)
		err := handleIngest(context.Background(), deps, ingestTaskPayload{
			DocumentID: docID,
			Filename:   "filing.txt",
			Content:    "some text",
		})
		if err == nil {
			t.Fatal("expected error when no embedder is configured")
		}
		mockStore.AssertExpectations(t)
	})
}

const evalDataset = `[
	{
		"id": "example_1",
		"pre_text": "net revenues were as follows .",
		"table": [["", "2008", "2007"], ["net revenues", "1200", "1000"]],
		"qa": {"question": "what were net revenues in 2008?", "answer": "1200"}
	}
]`

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dev.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

func TestHandleEvaluate(t *testing.T) {
	runID := uuid.New()

	t.Run("runs evaluation and saves report", func(t *testing.T) {
		path := writeDataset(t, evalDataset)

		mockStore := new(store.MockStore)
		mockLLM := new(llm.MockClient)
		mockLLM.On("Provider").Return("groq")
		mockLLM.On("Answer", mock.Anything, mock.Anything).Return("1200", nil).Once()

		mockStore.On("UpdateEvalRunStatus", mock.Anything, runID, store.RunRunning).Return(nil).Once()
		mockStore.On("SaveEvalReport", mock.Anything, runID, mock.Anything, mock.MatchedBy(func(misses []store.EvalMiss) bool {
			return len(misses) == 0
		})).Return(nil).Once()

		deps := newTestDeps(mockStore, nil, mockLLM)
		err := handleEvaluate(context.Background(), deps, evalTaskPayload{
			RunID:    runID,
			Dataset:  path,
			Provider: "groq",
		})
		if err != nil {
			t.Fatalf("handleEvaluate: %v", err)
		}
		mockStore.AssertExpectations(t)
		mockLLM.AssertExpectations(t)
	})

	t.Run("misses are persisted with the report", func(t *testing.T) {
		path := writeDataset(t, evalDataset)

		mockStore := new(store.MockStore)
		mockLLM := new(llm.MockClient)
		mockLLM.On("Provider").Return("groq")
		mockLLM.On("Answer", mock.Anything, mock.Anything).Return("9999", nil).Once()

		mockStore.On("UpdateEvalRunStatus", mock.Anything, runID, store.RunRunning).Return(nil).Once()
		mockStore.On("SaveEvalReport", mock.Anything, runID, mock.Anything, mock.MatchedBy(func(misses []store.EvalMiss) bool {
			return len(misses) == 1 && misses[0].Predicted == "9999" && misses[0].Actual == "1200"
		})).Return(nil).Once()

		deps := newTestDeps(mockStore, nil, mockLLM)
		err := handleEvaluate(context.Background(), deps, evalTaskPayload{
			RunID:    runID,
			Dataset:  path,
			Provider: "groq",
		})
		if err != nil {
			t.Fatalf("handleEvaluate: %v", err)
		}
		mockStore.AssertExpectations(t)
	})

	t.Run("missing dataset marks run failed", func(t *testing.T) {
		mockStore := new(store.MockStore)
		mockLLM := new(llm.MockClient)
		mockLLM.On("Provider").Return("groq").Maybe()
		mockStore.On("UpdateEvalRunStatus", mock.Anything, runID, store.RunFailed).Return(nil).Once()

		deps := newTestDeps(mockStore, nil, mockLLM)
		err := handleEvaluate(context.Background(), deps, evalTaskPayload{
			RunID:    runID,
			Dataset:  "/nonexistent/dev.json",
			Provider: "groq",
		})
		if err == nil {
			t.Fatal("expected error for missing dataset")
		}
		mockStore.AssertExpectations(t)
	})

	t.Run("unknown provider marks run failed", func(t *testing.T) {
		mockStore := new(store.MockStore)
		mockStore.On("UpdateEvalRunStatus", mock.Anything, runID, store.RunFailed).Return(nil).Once()

		deps := newTestDeps(mockStore, nil, new(llm.MockClient))
		err := handleEvaluate(context.Background(), deps, evalTaskPayload{
			RunID:    runID,
			Dataset:  "Data/dev.json",
			Provider: "openai",
		})
		if err == nil {
			t.Fatal("expected error for unknown provider")
		}
		mockStore.AssertExpectations(t)
	})
}
