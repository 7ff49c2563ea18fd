package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/vectorgate/internal/api"
	"github.com/cloo-solutions/vectorgate/internal/domain"
)

type QueryRunner interface {
	Query(ctx context.Context, userID, query string, topK int) ([]domain.Candidate, error)
}

// QueryHandler serves permission-filtered retrieval.
type QueryHandler struct {
	svc QueryRunner
}

func NewQueryHandler(svc QueryRunner) *QueryHandler {
	return &QueryHandler{svc: svc}
}

type QueryRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	TopK   int    `json:"top_k,omitempty"`
}

type QueryResponse struct {
	Results []domain.Candidate `json:"results"`
	Count   int                `json:"count"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := h.svc.Query(r.Context(), req.UserID, req.Query, req.TopK)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if results == nil {
		results = []domain.Candidate{}
	}

	api.Success(w, http.StatusOK, QueryResponse{
		Results: results,
		Count:   len(results),
	})
}
