package service

import (
	"context"

	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/cloo-solutions/vectorgate/internal/telemetry"
)

const defaultTopK = 10

// QueryService resolves a principal, computes their visibility filter, and
// runs permission-filtered retrieval. Answer synthesis happens in the
// caller, not here.
type QueryService struct {
	access   *AccessService
	embedder EmbeddingClient
	records  VectorRecordRepository
	model    string
}

// NewQueryService creates a new QueryService instance
func NewQueryService(access *AccessService, embedder EmbeddingClient, records VectorRecordRepository, model string) *QueryService {
	return &QueryService{
		access:   access,
		embedder: embedder,
		records:  records,
		model:    model,
	}
}

// Query returns up to topK candidates visible to the user, ordered by
// similarity. Unknown or anonymous users get an empty result, not an error.
func (s *QueryService) Query(ctx context.Context, userID, query string, topK int) ([]domain.Candidate, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	ctx, span := telemetry.StartSpan(ctx, "query.retrieve", telemetry.SpanTags{UserID: userID})
	defer span.End()

	principal, err := s.access.ResolvePrincipal(ctx, userID)
	if err != nil {
		return nil, err
	}

	filter, err := s.access.GetUserAccessibleFilters(ctx, principal)
	if err != nil {
		return nil, err
	}

	base := NewVectorSearchRetriever(s.embedder, s.records, s.model, candidateLimit(topK))
	retriever := NewFilteredRetriever(base, filter)

	candidates, err := retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}
