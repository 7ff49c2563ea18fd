package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/vectorgate/internal/api"
	"github.com/cloo-solutions/vectorgate/internal/service"
)

type VectorDeleter interface {
	DeleteByDocument(ctx context.Context, sourceDocumentID string) (*service.DeleteResult, error)
	DeleteByKnowledgeBase(ctx context.Context, kbID string) (*service.DeleteResult, error)
}

// VectorsHandler serves vector lifecycle operations.
type VectorsHandler struct {
	svc VectorDeleter
}

func NewVectorsHandler(svc VectorDeleter) *VectorsHandler {
	return &VectorsHandler{svc: svc}
}

// Delete removes vectors by source document or by knowledge base. Exactly
// one selector must be given. Deleting nothing is success, not an error.
func (h *VectorsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("source_document_id")
	kbID := r.URL.Query().Get("knowledge_base_id")

	if (docID == "") == (kbID == "") {
		api.Error(w, http.StatusBadRequest, "exactly one of source_document_id or knowledge_base_id is required")
		return
	}

	var result *service.DeleteResult
	var err error
	if docID != "" {
		result, err = h.svc.DeleteByDocument(r.Context(), docID)
	} else {
		result, err = h.svc.DeleteByKnowledgeBase(r.Context(), kbID)
	}
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, result)
}
