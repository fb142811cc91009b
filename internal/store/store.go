package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"finqa/internal/embeddings"
)

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type EvalRunStatus string

const (
	RunPending  EvalRunStatus = "pending"
	RunRunning  EvalRunStatus = "running"
	RunFinished EvalRunStatus = "finished"
	RunFailed   EvalRunStatus = "failed"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrEvalRunNotFound  = errors.New("evaluation run not found")
)

// Document is an uploaded filing used as retrieval context for questions.
type Document struct {
	ID        uuid.UUID
	Filename  string
	Status    DocumentStatus
	CreatedAt time.Time
}

type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Index      int
	Text       string
	TokenCount int
}

type Embedding struct {
	ChunkID uuid.UUID
	Vector  embeddings.Vector
	Model   string
}

type SearchResult struct {
	Chunk Chunk
	Score float32
}

// EvalRun is one batch evaluation over a reference dataset.
type EvalRun struct {
	ID         uuid.UUID
	Dataset    string
	Provider   string
	Status     EvalRunStatus
	Report     json.RawMessage
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// EvalMiss is one incorrect prediction recorded for a run.
type EvalMiss struct {
	RunID     uuid.UUID
	Question  string
	Predicted string
	Actual    string
}

// Exchange is one answered question kept as history.
type Exchange struct {
	ID        uuid.UUID
	Question  string
	Answer    string
	Provider  string
	CreatedAt time.Time
}

// Store defines persistence contract; an external DB implementation can replace this.
type Store interface {
	CreateDocument(ctx context.Context, filename string) (Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (Document, error)
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error
	SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error)
	ListChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error)
	SaveEmbeddings(ctx context.Context, embs []Embedding) error
	TopK(ctx context.Context, docIDs []uuid.UUID, vector embeddings.Vector, k int) ([]SearchResult, error)

	CreateEvalRun(ctx context.Context, dataset, provider string) (EvalRun, error)
	GetEvalRun(ctx context.Context, id uuid.UUID) (EvalRun, error)
	UpdateEvalRunStatus(ctx context.Context, id uuid.UUID, status EvalRunStatus) error
	SaveEvalReport(ctx context.Context, id uuid.UUID, report json.RawMessage, misses []EvalMiss) error

	SaveExchange(ctx context.Context, ex Exchange) error
}
