package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/cloo-solutions/vectorgate/internal/service"
	"github.com/cloo-solutions/vectorgate/internal/telemetry"
)

const (
	// MaxRetries is the number of attempts before a document is marked failed.
	MaxRetries = 3

	// claimBatchSize bounds how many documents one poll cycle picks up.
	claimBatchSize = 10
)

// DocumentQueue is the pending-document store the worker drains.
type DocumentQueue interface {
	ClaimPending(ctx context.Context, limit int) ([]*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error
	IncrementRetries(ctx context.Context, id string) error
}

// Ingestor runs the ingestion pipeline for one document.
type Ingestor interface {
	Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error)
}

// IngestionWorker drains pending ingestion documents and feeds them through
// the pipeline with bounded retries.
type IngestionWorker struct {
	queue    DocumentQueue
	ingestor Ingestor
}

// NewIngestionWorker creates a new IngestionWorker instance
func NewIngestionWorker(queue DocumentQueue, ingestor Ingestor) *IngestionWorker {
	return &IngestionWorker{
		queue:    queue,
		ingestor: ingestor,
	}
}

// ProcessJobs implements the JobProcessor interface.
func (w *IngestionWorker) ProcessJobs(ctx context.Context) error {
	docs, err := w.queue.ClaimPending(ctx, claimBatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending documents: %w", err)
	}

	if len(docs) == 0 {
		return nil
	}

	log.Printf("processing %d pending documents", len(docs))

	for _, doc := range docs {
		if err := w.processDocument(ctx, doc); err != nil {
			log.Printf("document %s: %v", doc.ID, err)
		}
	}

	return nil
}

func (w *IngestionWorker) processDocument(ctx context.Context, doc *domain.Document) error {
	result, err := w.ingestor.Ingest(ctx, service.IngestInput{
		SourceLocation:   doc.SourceLocation,
		SourceDocumentID: doc.ID,
		OwnerUserID:      doc.OwnerUserID,
		TeamID:           doc.TeamID,
		KnowledgeBaseID:  doc.KnowledgeBaseID,
		Strategy:         doc.Strategy,
		StrategyConfig:   doc.StrategyConfig,
		EmbeddingModel:   doc.EmbeddingModel,
	})
	if err != nil {
		return w.handleFailure(ctx, doc, err)
	}

	if err := w.queue.UpdateStatus(ctx, doc.ID, domain.DocumentStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to mark document completed: %w", err)
	}

	log.Printf("document %s ingested, %d chunks", doc.ID, result.ChunksCreated)
	return nil
}

func (w *IngestionWorker) handleFailure(ctx context.Context, doc *domain.Document, ingestErr error) error {
	log.Printf("document %s ingestion failed: %v", doc.ID, ingestErr)

	if err := w.queue.IncrementRetries(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if doc.Retries+1 >= MaxRetries {
		log.Printf("document %s exceeded max retries (%d), marking as failed", doc.ID, MaxRetries)
		telemetry.CaptureError(ctx, fmt.Errorf("document %s permanently failed: %w", doc.ID, ingestErr))
		errMsg := fmt.Sprintf("max retries exceeded: %v", ingestErr)
		if err := w.queue.UpdateStatus(ctx, doc.ID, domain.DocumentStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to mark document failed: %w", err)
		}
		return nil
	}

	errMsg := fmt.Sprintf("retry %d: %v", doc.Retries+1, ingestErr)
	if err := w.queue.UpdateStatus(ctx, doc.ID, domain.DocumentStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to requeue document: %w", err)
	}
	return nil
}
