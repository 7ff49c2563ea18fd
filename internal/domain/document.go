package domain

import "time"

// DocumentStatus tracks the lifecycle of an ingestion request.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// IsValid reports whether s is a known document status.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusFailed:
		return true
	}
	return false
}

// Document is an ingestion request plus its progress. One row per source
// document; re-ingestion replaces the document's vector records.
type Document struct {
	ID              string
	SourceLocation  string
	OwnerUserID     string
	TeamID          *string
	KnowledgeBaseID *string
	Strategy        string
	StrategyConfig  map[string]int
	EmbeddingModel  string
	Status          DocumentStatus
	Percent         int
	ProcessedChunks int
	TotalChunks     int
	ErrorMessage    string
	Retries         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidateDocument validates an ingestion request record.
func ValidateDocument(d *Document) error {
	if d == nil {
		return ErrMissingRequiredField
	}
	if d.ID == "" || d.SourceLocation == "" || d.OwnerUserID == "" {
		return ErrMissingRequiredField
	}
	if !d.Status.IsValid() {
		return NewDomainError(ErrCodeValidation, "invalid document status")
	}
	return nil
}
