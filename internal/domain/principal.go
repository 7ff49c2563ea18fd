package domain

import "time"

// Role is a knowledge-base permission level. Roles form a total order for
// effective-access purposes: OWNER > EDITOR > VIEWER > none.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// rank maps roles onto the total order. Unknown roles rank below viewer.
func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r.rank() > 0
}

// AtLeast reports whether r grants at least the access level of other.
func (r Role) AtLeast(other Role) bool {
	return r.rank() >= other.rank()
}

// MaxRole returns the higher of two roles.
func MaxRole(a, b Role) Role {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// TeamMembership records that a user belongs to a team with a given role.
type TeamMembership struct {
	TeamID string
	UserID string
	Role   Role
}

// Principal is the acting entity for a request: the authenticated user
// plus their resolved team memberships. Knowledge-base grants are resolved
// on demand by the access service. A Principal with an empty UserID is
// anonymous and sees nothing.
type Principal struct {
	UserID string
	Teams  []TeamMembership
}

// IsAnonymous reports whether the principal carries no identity.
func (p Principal) IsAnonymous() bool {
	return p.UserID == ""
}

// TeamIDs returns the identifiers of all teams the principal belongs to.
func (p Principal) TeamIDs() []string {
	if len(p.Teams) == 0 {
		return nil
	}
	ids := make([]string, 0, len(p.Teams))
	for _, m := range p.Teams {
		ids = append(ids, m.TeamID)
	}
	return ids
}

// MemberOf reports whether the principal belongs to the given team.
func (p Principal) MemberOf(teamID string) bool {
	for _, m := range p.Teams {
		if m.TeamID == teamID {
			return true
		}
	}
	return false
}

// KnowledgeBase is a named collection of ingested documents with its own
// access grants.
type KnowledgeBase struct {
	ID          string
	Name        string
	OwnerUserID string
	CreatedAt   time.Time
}

// GranteeType distinguishes user grants from team grants.
type GranteeType string

const (
	GranteeUser GranteeType = "user"
	GranteeTeam GranteeType = "team"
)

// KnowledgeBasePermission is a grant record: (knowledge base, grantee, role).
type KnowledgeBasePermission struct {
	ID              string
	KnowledgeBaseID string
	GranteeType     GranteeType
	GranteeID       string
	Role            Role
	CreatedAt       time.Time
}

// ValidateKnowledgeBasePermission validates a grant record.
func ValidateKnowledgeBasePermission(p *KnowledgeBasePermission) error {
	if p == nil {
		return ErrMissingRequiredField
	}
	if p.KnowledgeBaseID == "" || p.GranteeID == "" {
		return ErrMissingRequiredField
	}
	if p.GranteeType != GranteeUser && p.GranteeType != GranteeTeam {
		return NewDomainError(ErrCodeValidation, "invalid grantee type")
	}
	if !p.Role.IsValid() {
		return ErrInvalidRole
	}
	return nil
}
