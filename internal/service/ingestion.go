package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/vectorgate/internal/chunking"
	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/cloo-solutions/vectorgate/internal/telemetry"
)

const (
	defaultBatchSize        = 32
	defaultEmbedConcurrency = 4

	// maxExtraBytes caps the JSON size of strategy-specific metadata per
	// record. The five required fields are never truncated.
	maxExtraBytes = 8 * 1024

	embeddingProviderOpenAI = "openai"
)

// ObjectStorage reads raw source content for ingestion.
type ObjectStorage interface {
	ReadObject(ctx context.Context, location string) ([]byte, error)
}

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	Embed(ctx context.Context, text, model string) ([]float32, error)
}

// VectorRecordRepository persists and queries vector records.
type VectorRecordRepository interface {
	InsertBatch(ctx context.Context, records []domain.VectorRecord) error
	DeleteBySourceDocument(ctx context.Context, sourceDocumentID string) (int64, error)
	DeleteByKnowledgeBase(ctx context.Context, kbID string) (int64, error)
	SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.Candidate, error)
}

// ProgressSink receives incremental ingestion progress. Implementations
// must tolerate being called from the ingestion goroutine; failures are
// logged, never fatal.
type ProgressSink interface {
	ReportProgress(ctx context.Context, sourceDocumentID string, percent, processed, total int, errMsg string)
}

// NopProgressSink discards progress reports.
type NopProgressSink struct{}

func (NopProgressSink) ReportProgress(context.Context, string, int, int, int, string) {}

// IngestInput is an ingestion request for one source document.
type IngestInput struct {
	SourceLocation    string
	SourceDocumentID  string
	OwnerUserID       string
	TeamID            *string
	KnowledgeBaseID   *string
	Strategy          string
	StrategyConfig    map[string]int
	EmbeddingProvider string
	EmbeddingModel    string
}

// IngestResult reports how many chunks were written for the document.
type IngestResult struct {
	ChunksCreated int `json:"chunks_created"`
}

// IngestionService runs the read → parse → chunk → embed → persist pipeline.
// Concurrent ingestions of different documents are independent; callers must
// serialize re-ingestion of the same source document id.
type IngestionService struct {
	storage          ObjectStorage
	embedder         EmbeddingClient
	records          VectorRecordRepository
	progress         ProgressSink
	uuidGen          UUIDGenerator
	batchSize        int
	embedConcurrency int
}

// NewIngestionService creates a new IngestionService instance
func NewIngestionService(storage ObjectStorage, embedder EmbeddingClient, records VectorRecordRepository) *IngestionService {
	return &IngestionService{
		storage:          storage,
		embedder:         embedder,
		records:          records,
		progress:         NopProgressSink{},
		uuidGen:          &DefaultUUIDGenerator{},
		batchSize:        defaultBatchSize,
		embedConcurrency: defaultEmbedConcurrency,
	}
}

// WithProgressSink sets the sink that receives per-batch progress.
func (s *IngestionService) WithProgressSink(sink ProgressSink) *IngestionService {
	if sink != nil {
		s.progress = sink
	}
	return s
}

// WithBatchSize overrides the persistence batch size. Batch size is a
// tunable, not a correctness concern.
func (s *IngestionService) WithBatchSize(size int) *IngestionService {
	if size > 0 {
		s.batchSize = size
	}
	return s
}

// Ingest processes one source document end to end. Re-ingesting a document
// first deletes its existing records (idempotent-by-replace). On embedding
// failure the remaining batches are aborted, already-persisted chunks are
// kept, and the error carries the persisted count.
func (s *IngestionService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if input.SourceLocation == "" || input.SourceDocumentID == "" || input.OwnerUserID == "" {
		return nil, domain.ErrMissingRequiredField
	}

	ctx, span := telemetry.StartSpan(ctx, "ingestion.ingest", telemetry.SpanTags{
		UserID:           input.OwnerUserID,
		SourceDocumentID: input.SourceDocumentID,
	})
	defer span.End()
	if input.EmbeddingProvider != "" && input.EmbeddingProvider != embeddingProviderOpenAI {
		return nil, domain.NewDomainError(domain.ErrCodeConfiguration,
			fmt.Sprintf("unknown embedding provider %q", input.EmbeddingProvider))
	}

	strategy, err := chunking.Get(input.Strategy, chunking.Config(input.StrategyConfig))
	if err != nil {
		return nil, err
	}

	raw, err := s.storage.ReadObject(ctx, input.SourceLocation)
	if err != nil {
		return nil, domain.NewSourceUnavailable(input.SourceLocation, err)
	}

	doc := parseContent(raw)
	chunks, err := strategy.Split(doc)
	if err != nil {
		return nil, err
	}

	// Replace-by-document: drop any records from a previous ingestion of
	// this source document before writing new ones.
	if _, err := s.records.DeleteBySourceDocument(ctx, input.SourceDocumentID); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to replace existing vectors", err)
	}

	total := len(chunks)
	if total == 0 {
		s.progress.ReportProgress(ctx, input.SourceDocumentID, 100, 0, 0, "")
		return &IngestResult{ChunksCreated: 0}, nil
	}

	persisted := 0
	for start := 0; start < total; start += s.batchSize {
		end := start + s.batchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]

		embeddings, err := s.embedBatch(ctx, batch, input.EmbeddingModel)
		if err != nil {
			embErr := &domain.EmbeddingError{ChunksPersisted: persisted, Err: err}
			s.progress.ReportProgress(ctx, input.SourceDocumentID, percentOf(persisted, total), persisted, total, embErr.Error())
			span.SetError(embErr)
			return nil, embErr
		}

		records := make([]domain.VectorRecord, 0, len(batch))
		now := time.Now().UTC()
		for i, chunk := range batch {
			records = append(records, domain.VectorRecord{
				ID:        s.uuidGen.NewString(),
				Embedding: embeddings[i],
				Text:      chunk.Text,
				Metadata:  s.buildMetadata(input, chunk),
				CreatedAt: now,
			})
		}

		if err := s.records.InsertBatch(ctx, records); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to persist vector records", err)
		}

		persisted += len(batch)
		s.progress.ReportProgress(ctx, input.SourceDocumentID, percentOf(persisted, total), persisted, total, "")
	}

	return &IngestResult{ChunksCreated: persisted}, nil
}

// embedBatch computes embeddings for a batch with bounded concurrency.
// Results are positional: chunk_index correctness never depends on
// completion order.
func (s *IngestionService) embedBatch(ctx context.Context, batch []domain.Chunk, model string) ([][]float32, error) {
	embeddings := make([][]float32, len(batch))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.embedConcurrency)

	for i, chunk := range batch {
		g.Go(func() error {
			vec, err := s.embedder.Embed(ctx, chunk.Text, model)
			if err != nil {
				return err
			}
			embeddings[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// buildMetadata guarantees every chunk's metadata is a superset of the
// document-level metadata: the five required fields are always present, and
// strategy extras can never overwrite them.
func (s *IngestionService) buildMetadata(input IngestInput, chunk domain.Chunk) domain.ChunkMetadata {
	meta := domain.ChunkMetadata{
		SourceDocumentID: input.SourceDocumentID,
		OwnerUserID:      input.OwnerUserID,
		TeamID:           input.TeamID,
		KnowledgeBaseID:  input.KnowledgeBaseID,
		ChunkIndex:       chunk.Index,
	}

	if len(chunk.Extra) > 0 {
		meta.Extra = sanitizeExtra(input.SourceDocumentID, chunk.Extra)
	}
	return meta
}

// sanitizeExtra copies strategy extras, dropping reserved field names and
// truncating oversized strategy extras to maxExtraBytes.
func sanitizeExtra(sourceDocumentID string, extra map[string]string) map[string]string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		switch k {
		case domain.FieldSourceDocumentID, domain.FieldOwnerUserID, domain.FieldTeamID,
			domain.FieldKnowledgeBaseID, domain.FieldChunkIndex:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(keys))
	size := 0
	for _, k := range keys {
		encoded, err := json.Marshal(map[string]string{k: extra[k]})
		if err != nil {
			continue
		}
		if size+len(encoded) > maxExtraBytes {
			log.Printf("dropping oversized metadata field %q for document %s", k, sourceDocumentID)
			continue
		}
		size += len(encoded)
		out[k] = extra[k]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseContent turns raw source bytes into a logical document. Form-feed
// separated content (one page/slide per unit) keeps its units so unit-aware
// strategies can split on them.
func parseContent(raw []byte) chunking.Document {
	text := string(raw)
	if strings.Contains(text, "\f") {
		pages := strings.Split(text, "\f")
		units := make([]string, 0, len(pages))
		for _, page := range pages {
			if strings.TrimSpace(page) != "" {
				units = append(units, page)
			}
		}
		return chunking.Document{
			Text:  strings.Join(units, "\n\n"),
			Units: units,
		}
	}
	return chunking.Document{Text: text}
}

func percentOf(processed, total int) int {
	if total <= 0 {
		return 100
	}
	return processed * 100 / total
}
