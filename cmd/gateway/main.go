package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"finqa/internal/app"
	"finqa/internal/cache"
	"finqa/internal/httputil"
	"finqa/internal/prompt"
	"finqa/internal/queue"
	"finqa/internal/record"
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
	r := httputil.NewRouter(deps.Log)

	r.Post("/api/answer", answerHandler(deps))
	r.Post("/api/documents/upload", uploadHandler(deps))
	r.Get("/api/documents/{id}", documentHandler(deps))
	r.Post("/api/evaluations", createEvaluationHandler(deps))
	r.Get("/api/evaluations/{id}", getEvaluationHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("gateway listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}

type answerRequest struct {
	Question    string          `json:"question" validate:"required,min=3,max=500"`
	Record      json.RawMessage `json:"record" validate:"required"`
	Context     string          `json:"context"`
	Provider    string          `json:"provider" validate:"omitempty,oneof=openai groq"`
	DocumentIDs []string        `json:"document_ids" validate:"omitempty,dive,uuid4"`
}

func answerHandler(deps app.Deps) http.HandlerFunc {
	const retrievalTopK = 5

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		client, err := deps.ClientFor(req.Provider)
		if err != nil {
			httputil.Fail(deps.Log, w, err.Error(), err, http.StatusBadRequest)
			return
		}

		rec, err := record.Parse(req.Record)
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid record JSON", err, http.StatusBadRequest)
			return
		}
		table := rec.Table
		if table.IsEmpty() {
			table = rec.TableOri
		}
		analysis, err := record.Analyze(table)
		if err != nil {
			httputil.Fail(deps.Log, w, "no usable table data in record", err, http.StatusBadRequest)
			return
		}

		contextText := joinContext(rec.Context(), req.Context)
		if retrieved := retrieveContext(ctx, deps, req.DocumentIDs, req.Question, retrievalTopK); retrieved != "" {
			contextText = joinContext(contextText, retrieved)
		}

		tableJSON, err := json.Marshal(analysis.TableData)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to encode table", err, http.StatusInternalServerError)
			return
		}
		cacheKey := cache.Key(client.Provider(), req.Question, string(tableJSON), contextText)
		if cached, err := deps.Cache.GetAnswer(ctx, cacheKey); err == nil && cached != nil {
			deps.Log.Info("cache hit", "question", req.Question)
			httputil.WriteJSON(w, http.StatusOK, map[string]any{
				"answer":   cached.Answer,
				"provider": cached.Provider,
				"cached":   true,
			})
			return
		}

		userMsg, err := prompt.Build(prompt.Input{
			Question:      req.Question,
			Context:       contextText,
			TableData:     analysis.TableData,
			NumericFields: analysis.NumericFields,
			Calculations:  analysis.Calculations,
			WordBudget:    deps.Config.ContextWordBudget,
		})
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to build prompt", err, http.StatusInternalServerError)
			return
		}

		answerText, err := client.Answer(ctx, userMsg)
		if err != nil {
			httputil.Fail(deps.Log, w, "llm provider failed", err, http.StatusBadGateway)
			return
		}

		if err := deps.Store.SaveExchange(ctx, store.Exchange{
			Question: req.Question,
			Answer:   answerText,
			Provider: client.Provider(),
		}); err != nil {
			deps.Log.Warn("failed to record exchange", "err", err)
		}

		ttl := time.Duration(deps.Config.CacheTTL) * time.Second
		if err := deps.Cache.SetAnswer(ctx, cacheKey, &cache.Answer{
			Answer:   answerText,
			Provider: client.Provider(),
		}, ttl); err != nil {
			deps.Log.Warn("failed to cache answer", "err", err)
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"answer":   answerText,
			"provider": client.Provider(),
			"cached":   false,
		})
	}
}

// retrieveContext pulls the most similar chunks of the named documents.
// Retrieval is best-effort: any failure just means less context.
func retrieveContext(ctx context.Context, deps app.Deps, docIDs []string, question string, k int) string {
	if len(docIDs) == 0 {
		return ""
	}
	if deps.Embedder == nil {
		deps.Log.Warn("document_ids given but no embedder configured")
		return ""
	}
	ids := parseDocumentIDs(docIDs)
	if len(ids) == 0 {
		return ""
	}
	vec, err := deps.Embedder.Embed(ctx, question)
	if err != nil {
		deps.Log.Warn("failed to embed question", "err", err)
		return ""
	}
	results, err := deps.Store.TopK(ctx, ids, vec, k)
	if err != nil {
		deps.Log.Warn("chunk search failed", "err", err)
		return ""
	}
	var b strings.Builder
	for _, res := range results {
		b.WriteString(res.Chunk.Text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func parseDocumentIDs(ids []string) []uuid.UUID {
	var result []uuid.UUID
	for _, s := range ids {
		if id, err := uuid.Parse(s); err == nil {
			result = append(result, id)
		}
	}
	return result
}

func joinContext(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			ext := strings.ToLower(filepath.Ext(header.Filename))
			switch ext {
			case ".txt":
				contentType = "text/plain"
			case ".pdf":
				contentType = "application/pdf"
			default:
				httputil.Fail(deps.Log, w, "unsupported file type (only PDF and TXT allowed)", nil, http.StatusBadRequest)
				return
			}
		}
		allowedTypes := map[string]bool{
			"text/plain":      true,
			"application/pdf": true,
		}
		if !allowedTypes[contentType] {
			httputil.Fail(deps.Log, w, "unsupported file type (only PDF and TXT allowed)", nil, http.StatusBadRequest)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}
		text := extractText(header.Filename, content, deps)

		doc, err := deps.Store.CreateDocument(ctx, header.Filename)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to persist document", err, http.StatusInternalServerError)
			return
		}

		payload := ingestTaskPayload{
			DocumentID: doc.ID,
			Filename:   header.Filename,
			Content:    text,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			failDocument(deps, ctx, w, "marshal payload failed", err, doc.ID)
			return
		}
		task := queue.Task{Type: queue.TaskTypeIngest, Payload: body}
		if err := queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond); err != nil {
			failDocument(deps, ctx, w, "failed to enqueue document; please retry", err, doc.ID)
			return
		}

		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"document_id": doc.ID.String(),
			"status":      doc.Status,
		})
	}
}

// failDocument marks the document failed before writing the error response.
func failDocument(deps app.Deps, ctx context.Context, w http.ResponseWriter, message string, err error, docID uuid.UUID) {
	log := deps.Log.With("document_id", docID)
	if docID != uuid.Nil {
		if upErr := deps.Store.UpdateDocumentStatus(ctx, docID, store.StatusFailed); upErr != nil {
			log.Error("failed to mark document failed", "err", upErr)
		}
	}
	httputil.Fail(log, w, message, err, http.StatusInternalServerError)
}

func documentHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid document id", err, http.StatusBadRequest)
			return
		}
		doc, err := deps.Store.GetDocument(r.Context(), docID)
		if err != nil {
			status := http.StatusInternalServerError
			if err == store.ErrDocumentNotFound {
				status = http.StatusNotFound
			}
			httputil.Fail(deps.Log, w, "document not found", err, status)
			return
		}
		resp := map[string]any{
			"document_id": doc.ID.String(),
			"filename":    doc.Filename,
			"status":      doc.Status,
			"created_at":  doc.CreatedAt,
		}
		if doc.Status == store.StatusReady {
			chunks, err := deps.Store.ListChunks(r.Context(), docID)
			if err != nil {
				deps.Log.Warn("failed to list chunks", "document_id", docID, "err", err)
			} else {
				resp["chunk_count"] = len(chunks)
			}
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

type createEvaluationRequest struct {
	Dataset  string `json:"dataset" validate:"required"`
	Provider string `json:"provider" validate:"omitempty,oneof=openai groq"`
	Limit    int    `json:"limit" validate:"omitempty,min=1"`
}

func createEvaluationHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req createEvaluationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		client, err := deps.ClientFor(req.Provider)
		if err != nil {
			httputil.Fail(deps.Log, w, err.Error(), err, http.StatusBadRequest)
			return
		}

		run, err := deps.Store.CreateEvalRun(ctx, req.Dataset, client.Provider())
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to create evaluation run", err, http.StatusInternalServerError)
			return
		}

		payload := evalTaskPayload{
			RunID:    run.ID,
			Dataset:  req.Dataset,
			Provider: client.Provider(),
			Limit:    req.Limit,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			failRun(deps, ctx, w, "marshal payload failed", err, run.ID)
			return
		}
		task := queue.Task{Type: queue.TaskTypeEvaluate, Payload: body}
		if err := queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond); err != nil {
			failRun(deps, ctx, w, "failed to enqueue evaluation; please retry", err, run.ID)
			return
		}

		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"run_id": run.ID.String(),
			"status": run.Status,
		})
	}
}

func failRun(deps app.Deps, ctx context.Context, w http.ResponseWriter, message string, err error, runID uuid.UUID) {
	log := deps.Log.With("run_id", runID)
	if upErr := deps.Store.UpdateEvalRunStatus(ctx, runID, store.RunFailed); upErr != nil {
		log.Error("failed to mark run failed", "err", upErr)
	}
	httputil.Fail(log, w, message, err, http.StatusInternalServerError)
}

func getEvaluationHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid run id", err, http.StatusBadRequest)
			return
		}
		run, err := deps.Store.GetEvalRun(r.Context(), runID)
		if err != nil {
			status := http.StatusInternalServerError
			if err == store.ErrEvalRunNotFound {
				status = http.StatusNotFound
			}
			httputil.Fail(deps.Log, w, "evaluation run not found", err, status)
			return
		}
		resp := map[string]any{
			"run_id":   run.ID.String(),
			"dataset":  run.Dataset,
			"provider": run.Provider,
			"status":   run.Status,
		}
		if run.Report != nil {
			resp["report"] = run.Report
		}
		if run.FinishedAt != nil {
			resp["finished_at"] = run.FinishedAt
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

// extractText extracts text from uploaded files, with PDF support.
func extractText(filename string, content []byte, deps app.Deps) string {
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		text, err := extractPDF(content)
		if err != nil {
			deps.Log.Warn("pdf extraction failed, using raw bytes", "err", err, "filename", filename)
			return string(content)
		}
		return text
	}
	// Treat other files as plain text
	return string(content)
}

func extractPDF(content []byte) (string, error) {
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return "", err
	}

	var textBuilder strings.Builder
	numPages := pdfReader.NumPage()

	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}
