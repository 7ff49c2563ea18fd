package service

import (
	"context"

	"github.com/cloo-solutions/vectorgate/internal/domain"
)

// DeleteResult reports how many vector records a lifecycle operation removed.
type DeleteResult struct {
	DeletedCount int64 `json:"deleted_count"`
}

// LifecycleService removes vector records when documents or knowledge bases
// are deleted. Deletion is idempotent: identifiers with no matching records
// return a zero count, never an error.
type LifecycleService struct {
	records VectorRecordRepository
}

// NewLifecycleService creates a new LifecycleService instance
func NewLifecycleService(records VectorRecordRepository) *LifecycleService {
	return &LifecycleService{records: records}
}

// DeleteByDocument removes all vector records for a source document. Also
// the first step of re-ingestion.
func (s *LifecycleService) DeleteByDocument(ctx context.Context, sourceDocumentID string) (*DeleteResult, error) {
	if sourceDocumentID == "" {
		return nil, domain.ErrMissingRequiredField
	}

	count, err := s.records.DeleteBySourceDocument(ctx, sourceDocumentID)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to delete vectors", err)
	}
	return &DeleteResult{DeletedCount: count}, nil
}

// DeleteByKnowledgeBase removes all vector records in a knowledge base.
func (s *LifecycleService) DeleteByKnowledgeBase(ctx context.Context, kbID string) (*DeleteResult, error) {
	if kbID == "" {
		return nil, domain.ErrMissingRequiredField
	}

	count, err := s.records.DeleteByKnowledgeBase(ctx, kbID)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to delete vectors", err)
	}
	return &DeleteResult{DeletedCount: count}, nil
}
