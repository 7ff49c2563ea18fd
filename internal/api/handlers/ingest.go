package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cloo-solutions/vectorgate/internal/api"
	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/cloo-solutions/vectorgate/internal/service"
	"github.com/cloo-solutions/vectorgate/internal/storage"
	"github.com/go-chi/chi/v5"
)

type IngestionRunner interface {
	Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error)
}

type MetadataValidator interface {
	ResolvePrincipal(ctx context.Context, userID string) (domain.Principal, error)
	ValidateIngestionMetadata(ctx context.Context, principal domain.Principal, meta service.IngestionMetadata) (map[string]string, error)
}

type DocumentStore interface {
	Upsert(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// SourceChecker verifies that a source object exists before a document is
// queued. Optional; without it a missing source only surfaces when the
// worker picks the document up.
type SourceChecker interface {
	HeadObject(ctx context.Context, key string) (*storage.ObjectMetadata, error)
}

// IngestHandler serves synchronous ingestion, async enqueueing and
// ingestion status lookups.
type IngestHandler struct {
	ingestion IngestionRunner
	access    MetadataValidator
	docs      DocumentStore
	sources   SourceChecker
}

func NewIngestHandler(ingestion IngestionRunner, access MetadataValidator, docs DocumentStore) *IngestHandler {
	return &IngestHandler{
		ingestion: ingestion,
		access:    access,
		docs:      docs,
	}
}

// WithSourceChecker enables the fail-fast source existence check on Enqueue.
func (h *IngestHandler) WithSourceChecker(sources SourceChecker) *IngestHandler {
	h.sources = sources
	return h
}

type IngestRequest struct {
	SourceLocation    string         `json:"source_location"`
	SourceDocumentID  string         `json:"source_document_id"`
	OwnerUserID       string         `json:"owner_user_id"`
	TeamID            *string        `json:"team_id,omitempty"`
	KnowledgeBaseID   *string        `json:"knowledge_base_id,omitempty"`
	Strategy          string         `json:"strategy,omitempty"`
	StrategyConfig    map[string]int `json:"strategy_config,omitempty"`
	EmbeddingProvider string         `json:"embedding_provider,omitempty"`
	EmbeddingModel    string         `json:"embedding_model,omitempty"`
}

// FieldErrorsResponse reports per-field metadata validation failures.
type FieldErrorsResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

type DocumentResponse struct {
	ID              string         `json:"id"`
	SourceLocation  string         `json:"source_location"`
	OwnerUserID     string         `json:"owner_user_id"`
	TeamID          *string        `json:"team_id,omitempty"`
	KnowledgeBaseID *string        `json:"knowledge_base_id,omitempty"`
	Strategy        string         `json:"strategy,omitempty"`
	StrategyConfig  map[string]int `json:"strategy_config,omitempty"`
	EmbeddingModel  string         `json:"embedding_model,omitempty"`
	Status          string         `json:"status"`
	Percent         int            `json:"percent"`
	ProcessedChunks int            `json:"processed_chunks"`
	TotalChunks     int            `json:"total_chunks"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	Retries         int            `json:"retries"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:              d.ID,
		SourceLocation:  d.SourceLocation,
		OwnerUserID:     d.OwnerUserID,
		TeamID:          d.TeamID,
		KnowledgeBaseID: d.KnowledgeBaseID,
		Strategy:        d.Strategy,
		StrategyConfig:  d.StrategyConfig,
		EmbeddingModel:  d.EmbeddingModel,
		Status:          string(d.Status),
		Percent:         d.Percent,
		ProcessedChunks: d.ProcessedChunks,
		TotalChunks:     d.TotalChunks,
		ErrorMessage:    d.ErrorMessage,
		Retries:         d.Retries,
		CreatedAt:       d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// decodeAndValidate parses an ingest request and runs metadata validation.
// It writes the error response itself and returns false when the request is
// rejected.
func (h *IngestHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request) (IngestRequest, bool) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}

	if req.SourceLocation == "" {
		api.Error(w, http.StatusBadRequest, "source_location is required")
		return req, false
	}
	if req.SourceDocumentID == "" {
		api.Error(w, http.StatusBadRequest, "source_document_id is required")
		return req, false
	}
	if req.OwnerUserID == "" {
		api.Error(w, http.StatusBadRequest, "owner_user_id is required")
		return req, false
	}

	principal, err := h.access.ResolvePrincipal(r.Context(), req.OwnerUserID)
	if err != nil {
		api.HandleError(w, err)
		return req, false
	}

	fields, err := h.access.ValidateIngestionMetadata(r.Context(), principal, service.IngestionMetadata{
		TeamID:          req.TeamID,
		KnowledgeBaseID: req.KnowledgeBaseID,
	})
	if err != nil {
		api.HandleError(w, err)
		return req, false
	}
	if len(fields) > 0 {
		api.JSON(w, http.StatusBadRequest, FieldErrorsResponse{
			Error:  "invalid ingestion metadata",
			Fields: fields,
		})
		return req, false
	}

	return req, true
}

// Ingest runs the pipeline synchronously and responds with the chunk count.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAndValidate(w, r)
	if !ok {
		return
	}

	result, err := h.ingestion.Ingest(r.Context(), service.IngestInput{
		SourceLocation:    req.SourceLocation,
		SourceDocumentID:  req.SourceDocumentID,
		OwnerUserID:       req.OwnerUserID,
		TeamID:            req.TeamID,
		KnowledgeBaseID:   req.KnowledgeBaseID,
		Strategy:          req.Strategy,
		StrategyConfig:    req.StrategyConfig,
		EmbeddingProvider: req.EmbeddingProvider,
		EmbeddingModel:    req.EmbeddingModel,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, result)
}

// Enqueue records the document as pending; the background worker picks it up.
func (h *IngestHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAndValidate(w, r)
	if !ok {
		return
	}

	if req.EmbeddingProvider != "" && req.EmbeddingProvider != "openai" {
		api.Error(w, http.StatusBadRequest, "unknown embedding provider")
		return
	}

	if h.sources != nil {
		if _, err := h.sources.HeadObject(r.Context(), req.SourceLocation); err != nil {
			api.Error(w, http.StatusBadGateway, "source object is not readable: "+req.SourceLocation)
			return
		}
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:              req.SourceDocumentID,
		SourceLocation:  req.SourceLocation,
		OwnerUserID:     req.OwnerUserID,
		TeamID:          req.TeamID,
		KnowledgeBaseID: req.KnowledgeBaseID,
		Strategy:        req.Strategy,
		StrategyConfig:  req.StrategyConfig,
		EmbeddingModel:  req.EmbeddingModel,
		Status:          domain.DocumentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.docs.Upsert(r.Context(), doc); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, documentToResponse(doc))
}

// GetDocument returns the ingestion status and progress for one document.
func (h *IngestHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := h.docs.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}
