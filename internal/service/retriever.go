package service

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/vectorgate/internal/domain"
)

const (
	defaultCandidateMultiplier = 4
	defaultMinCandidates       = 20
	defaultMaxCandidates       = 200
)

// BaseRetriever is any component that turns query text into scored
// candidates. The pgvector-backed retriever below is the production
// implementation; tests inject fakes.
type BaseRetriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.Candidate, error)
}

// FilteredRetriever wraps a base retriever and discards candidates whose
// metadata does not match the access filter. It is a pure, stateless
// post-check: candidate ordering is preserved and no re-ranking happens.
type FilteredRetriever struct {
	base   BaseRetriever
	filter domain.FilterExpr
}

// NewFilteredRetriever creates a new FilteredRetriever instance
func NewFilteredRetriever(base BaseRetriever, filter domain.FilterExpr) *FilteredRetriever {
	return &FilteredRetriever{base: base, filter: filter}
}

// Retrieve returns the base retriever's candidates restricted to those the
// filter allows. An empty filter short-circuits to an empty result without
// calling the base retriever: access control fails closed. Errors are
// all-or-nothing; partial candidate lists are never returned.
func (r *FilteredRetriever) Retrieve(ctx context.Context, query string) ([]domain.Candidate, error) {
	if domain.IsEmptyFilter(r.filter) {
		return []domain.Candidate{}, nil
	}

	candidates, err := r.base.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	matched := make([]domain.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if r.filter.Matches(candidate.Metadata) {
			matched = append(matched, candidate)
		}
	}
	return matched, nil
}

// VectorSearchRetriever embeds query text and runs similarity search against
// the vector store. The search itself is not filter-aware; it over-fetches
// so the post-filter still has enough candidates to fill the caller's top-k.
type VectorSearchRetriever struct {
	embedder EmbeddingClient
	records  VectorRecordRepository
	model    string
	limit    int
}

// NewVectorSearchRetriever creates a new VectorSearchRetriever instance
func NewVectorSearchRetriever(embedder EmbeddingClient, records VectorRecordRepository, model string, limit int) *VectorSearchRetriever {
	if limit <= 0 {
		limit = defaultMinCandidates
	}
	return &VectorSearchRetriever{
		embedder: embedder,
		records:  records,
		model:    model,
		limit:    limit,
	}
}

func (r *VectorSearchRetriever) Retrieve(ctx context.Context, query string) ([]domain.Candidate, error) {
	embedding, err := r.embedder.Embed(ctx, query, r.model)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := r.records.SearchByEmbedding(ctx, embedding, r.limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	return candidates, nil
}

// candidateLimit sizes the base retriever's over-fetch for a caller top-k.
func candidateLimit(topK int) int {
	limit := topK * defaultCandidateMultiplier
	if limit < defaultMinCandidates {
		limit = defaultMinCandidates
	}
	if limit > defaultMaxCandidates {
		limit = defaultMaxCandidates
	}
	return limit
}
