package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/vectorgate/internal/api"
	"github.com/cloo-solutions/vectorgate/internal/domain"
)

type AccessChecker interface {
	ResolvePrincipal(ctx context.Context, userID string) (domain.Principal, error)
	GetPermissionLevel(ctx context.Context, principal domain.Principal, kbID string) (domain.Role, bool, error)
}

// AccessHandler answers point permission queries for the web application.
type AccessHandler struct {
	svc AccessChecker
}

func NewAccessHandler(svc AccessChecker) *AccessHandler {
	return &AccessHandler{svc: svc}
}

type AccessCheckRequest struct {
	UserID          string `json:"user_id"`
	KnowledgeBaseID string `json:"knowledge_base_id"`
}

type AccessCheckResponse struct {
	Allowed bool   `json:"allowed"`
	Level   string `json:"level,omitempty"`
}

func (h *AccessHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req AccessCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID == "" {
		api.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.KnowledgeBaseID == "" {
		api.Error(w, http.StatusBadRequest, "knowledge_base_id is required")
		return
	}

	principal, err := h.svc.ResolvePrincipal(r.Context(), req.UserID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	level, allowed, err := h.svc.GetPermissionLevel(r.Context(), principal, req.KnowledgeBaseID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := AccessCheckResponse{Allowed: allowed}
	if allowed {
		resp.Level = string(level)
	}
	api.Success(w, http.StatusOK, resp)
}
