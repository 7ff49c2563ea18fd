package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cloo-solutions/vectorgate/internal/domain"
)

// AccessRepository defines the read-only membership/permission queries the
// access service needs. It writes nothing.
type AccessRepository interface {
	GetTeamMemberships(ctx context.Context, userID string) ([]domain.TeamMembership, error)
	GetKnowledgeBase(ctx context.Context, kbID string) (*domain.KnowledgeBase, error)
	GetUserGrants(ctx context.Context, userID string) ([]domain.KnowledgeBasePermission, error)
	GetTeamGrants(ctx context.Context, teamIDs []string) ([]domain.KnowledgeBasePermission, error)
	GetOwnedKnowledgeBaseIDs(ctx context.Context, userID string) ([]string, error)
}

// AccessService computes visibility filters and answers point permission
// queries for principals. Stateless and read-only.
type AccessService struct {
	repo AccessRepository
}

// NewAccessService creates a new AccessService instance
func NewAccessService(repo AccessRepository) *AccessService {
	return &AccessService{repo: repo}
}

// ResolvePrincipal loads the team memberships for a user id. An empty user
// id resolves to an anonymous principal.
func (s *AccessService) ResolvePrincipal(ctx context.Context, userID string) (domain.Principal, error) {
	if userID == "" {
		return domain.Principal{}, nil
	}

	teams, err := s.repo.GetTeamMemberships(ctx, userID)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("failed to resolve team memberships: %w", err)
	}

	return domain.Principal{UserID: userID, Teams: teams}, nil
}

// GetUserAccessibleFilters computes the filter expression describing exactly
// which vector records the principal may see: a disjunction of an
// owner-equality leaf, a team membership set, and an accessible
// knowledge-base set. Anonymous principals get an empty filter, which the
// retriever treats as matching nothing.
func (s *AccessService) GetUserAccessibleFilters(ctx context.Context, principal domain.Principal) (domain.FilterExpr, error) {
	if principal.IsAnonymous() {
		return nil, nil
	}

	exprs := []domain.FilterExpr{
		domain.FilterEquals{Field: domain.FieldOwnerUserID, Value: principal.UserID},
	}

	if teamIDs := principal.TeamIDs(); len(teamIDs) > 0 {
		exprs = append(exprs, domain.FilterIn{Field: domain.FieldTeamID, Values: teamIDs})
	}

	kbIDs, err := s.accessibleKnowledgeBaseIDs(ctx, principal)
	if err != nil {
		return nil, err
	}
	if len(kbIDs) > 0 {
		exprs = append(exprs, domain.FilterIn{Field: domain.FieldKnowledgeBaseID, Values: kbIDs})
	}

	return domain.FilterOr{Exprs: exprs}, nil
}

// accessibleKnowledgeBaseIDs collects every knowledge base the principal can
// see at any permission level: owned directly, granted to the user, or
// granted to one of the user's teams.
func (s *AccessService) accessibleKnowledgeBaseIDs(ctx context.Context, principal domain.Principal) ([]string, error) {
	seen := make(map[string]struct{})

	owned, err := s.repo.GetOwnedKnowledgeBaseIDs(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned knowledge bases: %w", err)
	}
	for _, id := range owned {
		seen[id] = struct{}{}
	}

	userGrants, err := s.repo.GetUserGrants(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user grants: %w", err)
	}
	for _, grant := range userGrants {
		if grant.Role.IsValid() {
			seen[grant.KnowledgeBaseID] = struct{}{}
		}
	}

	if teamIDs := principal.TeamIDs(); len(teamIDs) > 0 {
		teamGrants, err := s.repo.GetTeamGrants(ctx, teamIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to list team grants: %w", err)
		}
		for _, grant := range teamGrants {
			if grant.Role.IsValid() {
				seen[grant.KnowledgeBaseID] = struct{}{}
			}
		}
	}

	if len(seen) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetPermissionLevel returns the maximum role the principal holds on a
// knowledge base across ownership, team grants, and direct user grants.
// Direct ownership of the knowledge base record always implies OWNER,
// independent of any permission rows. The boolean is false when no access
// path applies.
func (s *AccessService) GetPermissionLevel(ctx context.Context, principal domain.Principal, kbID string) (domain.Role, bool, error) {
	if principal.IsAnonymous() || kbID == "" {
		return "", false, nil
	}

	kb, err := s.repo.GetKnowledgeBase(ctx, kbID)
	if err != nil && !isNotFound(err) {
		return "", false, fmt.Errorf("failed to load knowledge base: %w", err)
	}
	if kb != nil && kb.OwnerUserID == principal.UserID {
		return domain.RoleOwner, true, nil
	}

	var best domain.Role
	found := false

	userGrants, err := s.repo.GetUserGrants(ctx, principal.UserID)
	if err != nil {
		return "", false, fmt.Errorf("failed to list user grants: %w", err)
	}
	for _, grant := range userGrants {
		if grant.KnowledgeBaseID == kbID && grant.Role.IsValid() {
			best = domain.MaxRole(best, grant.Role)
			found = true
		}
	}

	if teamIDs := principal.TeamIDs(); len(teamIDs) > 0 {
		teamGrants, err := s.repo.GetTeamGrants(ctx, teamIDs)
		if err != nil {
			return "", false, fmt.Errorf("failed to list team grants: %w", err)
		}
		for _, grant := range teamGrants {
			if grant.KnowledgeBaseID == kbID && grant.Role.IsValid() {
				best = domain.MaxRole(best, grant.Role)
				found = true
			}
		}
	}

	if !found {
		return "", false, nil
	}
	return best, true, nil
}

// CanUserAccessKnowledgeBase reports whether any access path (ownership,
// team grant, direct grant) applies.
func (s *AccessService) CanUserAccessKnowledgeBase(ctx context.Context, principal domain.Principal, kbID string) (bool, error) {
	_, ok, err := s.GetPermissionLevel(ctx, principal, kbID)
	return ok, err
}

// IngestionMetadata is the document-level access metadata proposed for an
// ingestion request.
type IngestionMetadata struct {
	TeamID          *string
	KnowledgeBaseID *string
}

// ValidateIngestionMetadata checks that the principal may ingest into the
// proposed team and knowledge base. Returns a field → error-message map;
// an empty map means the metadata is valid.
func (s *AccessService) ValidateIngestionMetadata(ctx context.Context, principal domain.Principal, meta IngestionMetadata) (map[string]string, error) {
	fieldErrors := make(map[string]string)

	if principal.IsAnonymous() {
		fieldErrors[domain.FieldOwnerUserID] = "principal is required"
		return fieldErrors, nil
	}

	if meta.TeamID != nil && *meta.TeamID != "" {
		if !principal.MemberOf(*meta.TeamID) {
			fieldErrors[domain.FieldTeamID] = fmt.Sprintf("user %s is not a member of team %s", principal.UserID, *meta.TeamID)
		}
	}

	if meta.KnowledgeBaseID != nil && *meta.KnowledgeBaseID != "" {
		ok, err := s.CanUserAccessKnowledgeBase(ctx, principal, *meta.KnowledgeBaseID)
		if err != nil {
			return nil, err
		}
		if !ok {
			fieldErrors[domain.FieldKnowledgeBaseID] = fmt.Sprintf("user %s has no access to knowledge base %s", principal.UserID, *meta.KnowledgeBaseID)
		}
	}

	return fieldErrors, nil
}

func isNotFound(err error) bool {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == domain.ErrCodeNotFound
	}
	return false
}
