package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockQueryRunner struct {
	mock.Mock
}

func (m *MockQueryRunner) Query(ctx context.Context, userID, query string, topK int) ([]domain.Candidate, error) {
	args := m.Called(ctx, userID, query, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Candidate), args.Error(1)
}

func TestQueryHandler_Query(t *testing.T) {
	svc := new(MockQueryRunner)
	svc.On("Query", mock.Anything, "user-1", "refund policy", 5).Return([]domain.Candidate{
		{ID: "c-1", Text: "refunds are processed in 5 days", Score: 0.91,
			Metadata: domain.ChunkMetadata{SourceDocumentID: "doc-1", OwnerUserID: "user-1"}},
	}, nil)

	h := NewQueryHandler(svc)

	body, _ := json.Marshal(QueryRequest{UserID: "user-1", Query: "refund policy", TopK: 5})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data QueryResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Count)
	require.Len(t, resp.Data.Results, 1)
	assert.Equal(t, "c-1", resp.Data.Results[0].ID)
	assert.Equal(t, "doc-1", resp.Data.Results[0].Metadata.SourceDocumentID)
}

func TestQueryHandler_Query_AnonymousGetsEmpty(t *testing.T) {
	svc := new(MockQueryRunner)
	svc.On("Query", mock.Anything, "", "anything", 0).Return([]domain.Candidate{}, nil)

	h := NewQueryHandler(svc)

	body, _ := json.Marshal(QueryRequest{Query: "anything"})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data QueryResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Data.Count)
	assert.NotNil(t, resp.Data.Results)
}

func TestQueryHandler_Query_MissingQuery(t *testing.T) {
	h := NewQueryHandler(new(MockQueryRunner))

	body, _ := json.Marshal(QueryRequest{UserID: "user-1"})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryHandler_Query_InvalidBody(t *testing.T) {
	h := NewQueryHandler(new(MockQueryRunner))

	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryHandler_Query_ServiceError(t *testing.T) {
	svc := new(MockQueryRunner)
	svc.On("Query", mock.Anything, "user-1", "q", 0).
		Return(nil, domain.NewDomainError(domain.ErrCodeInternalError, "search failed"))

	h := NewQueryHandler(svc)

	body, _ := json.Marshal(QueryRequest{UserID: "user-1", Query: "q"})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
