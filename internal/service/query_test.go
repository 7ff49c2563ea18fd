package service

import (
	"context"
	"testing"

	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestQueryService_Query_FiltersToPrincipalVisibility(t *testing.T) {
	ctx := context.Background()
	accessRepo := new(MockAccessRepo)
	access := NewAccessService(accessRepo)

	accessRepo.On("GetTeamMemberships", mock.Anything, "u1").Return([]domain.TeamMembership{}, nil)
	accessRepo.On("GetOwnedKnowledgeBaseIDs", mock.Anything, "u1").Return([]string{}, nil)
	accessRepo.On("GetUserGrants", mock.Anything, "u1").Return([]domain.KnowledgeBasePermission{}, nil)

	repo := &searchStubRepo{candidates: []domain.Candidate{
		candidateWith("mine", domain.ChunkMetadata{OwnerUserID: "u1"}, 0.9),
		candidateWith("theirs", domain.ChunkMetadata{OwnerUserID: "u2"}, 0.8),
	}}

	svc := NewQueryService(access, &fakeEmbedder{}, repo, "")
	got, err := svc.Query(ctx, "u1", "refund policy", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].ID)
}

func TestQueryService_Query_AnonymousSeesNothing(t *testing.T) {
	ctx := context.Background()
	access := NewAccessService(new(MockAccessRepo))
	repo := &searchStubRepo{candidates: []domain.Candidate{
		candidateWith("c1", domain.ChunkMetadata{OwnerUserID: "u1"}, 0.9),
	}}

	svc := NewQueryService(access, &fakeEmbedder{}, repo, "")
	got, err := svc.Query(ctx, "", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	// Fail-closed: no similarity search was run at all.
	assert.Equal(t, 0, repo.lastLimit)
}

func TestQueryService_Query_TruncatesToTopK(t *testing.T) {
	ctx := context.Background()
	accessRepo := new(MockAccessRepo)
	access := NewAccessService(accessRepo)

	accessRepo.On("GetTeamMemberships", mock.Anything, "u1").Return([]domain.TeamMembership{}, nil)
	accessRepo.On("GetOwnedKnowledgeBaseIDs", mock.Anything, "u1").Return([]string{}, nil)
	accessRepo.On("GetUserGrants", mock.Anything, "u1").Return([]domain.KnowledgeBasePermission{}, nil)

	candidates := make([]domain.Candidate, 0, 8)
	for i := 0; i < 8; i++ {
		candidates = append(candidates, candidateWith(string(rune('a'+i)), domain.ChunkMetadata{OwnerUserID: "u1"}, 1.0-float64(i)*0.01))
	}
	repo := &searchStubRepo{candidates: candidates}

	svc := NewQueryService(access, &fakeEmbedder{}, repo, "")
	got, err := svc.Query(ctx, "u1", "query", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[2].ID)
}
