package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccessRepository reads team memberships, knowledge base ownership and
// explicit grants. It is the read-only backing store for access decisions.
type AccessRepository struct {
	pool *pgxpool.Pool
}

func NewAccessRepository(pool *pgxpool.Pool) *AccessRepository {
	return &AccessRepository{pool: pool}
}

func (r *AccessRepository) GetTeamMemberships(ctx context.Context, userID string) ([]domain.TeamMembership, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT team_id, user_id, role
		 FROM team_memberships
		 WHERE user_id = $1
		 ORDER BY team_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []domain.TeamMembership
	for rows.Next() {
		var m domain.TeamMembership
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (r *AccessRepository) GetKnowledgeBase(ctx context.Context, kbID string) (*domain.KnowledgeBase, error) {
	var kb domain.KnowledgeBase
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, owner_user_id, created_at
		 FROM knowledge_bases WHERE id = $1`,
		kbID,
	).Scan(&kb.ID, &kb.Name, &kb.OwnerUserID, &kb.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKnowledgeBaseNotFound
		}
		return nil, err
	}
	return &kb, nil
}

func (r *AccessRepository) CreateKnowledgeBase(ctx context.Context, kb *domain.KnowledgeBase) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO knowledge_bases (id, name, owner_user_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		kb.ID, kb.Name, kb.OwnerUserID, kb.CreatedAt,
	)
	return err
}

func (r *AccessRepository) GetUserGrants(ctx context.Context, userID string) ([]domain.KnowledgeBasePermission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, knowledge_base_id, grantee_type, grantee_id, role, created_at
		 FROM knowledge_base_permissions
		 WHERE grantee_type = $1 AND grantee_id = $2`,
		domain.GranteeUser, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPermissionRows(rows)
}

func (r *AccessRepository) GetTeamGrants(ctx context.Context, teamIDs []string) ([]domain.KnowledgeBasePermission, error) {
	if len(teamIDs) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, knowledge_base_id, grantee_type, grantee_id, role, created_at
		 FROM knowledge_base_permissions
		 WHERE grantee_type = $1 AND grantee_id = ANY($2)`,
		domain.GranteeTeam, teamIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPermissionRows(rows)
}

func (r *AccessRepository) GetOwnedKnowledgeBaseIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM knowledge_bases WHERE owner_user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *AccessRepository) CreatePermission(ctx context.Context, p *domain.KnowledgeBasePermission) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO knowledge_base_permissions (id, knowledge_base_id, grantee_type, grantee_id, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.KnowledgeBaseID, p.GranteeType, p.GranteeID, p.Role, p.CreatedAt,
	)
	return err
}

func (r *AccessRepository) CreateTeamMembership(ctx context.Context, m domain.TeamMembership) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO team_memberships (team_id, user_id, role)
		 VALUES ($1, $2, $3)`,
		m.TeamID, m.UserID, m.Role,
	)
	return err
}

func scanPermissionRows(rows pgx.Rows) ([]domain.KnowledgeBasePermission, error) {
	var grants []domain.KnowledgeBasePermission
	for rows.Next() {
		var p domain.KnowledgeBasePermission
		if err := rows.Scan(&p.ID, &p.KnowledgeBaseID, &p.GranteeType, &p.GranteeID, &p.Role, &p.CreatedAt); err != nil {
			return nil, err
		}
		grants = append(grants, p)
	}
	return grants, rows.Err()
}
