package repo

import (
	"context"
	"errors"
	"fmt"

	"tracker-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProjectRepository stores roles and memberships of projects.
type ProjectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

const roleColumns = `r.id, r.project_id, r.name, r.color, r.description, r.permissions, r.is_default, r.position, r.created_at, r.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(ctx context.Context, row rowScanner) (*domain.Role, error) {
	var (
		role        domain.Role
		description pgtype.Text
		perms       []byte
	)
	err := row.Scan(
		&role.ID, &role.ProjectID, &role.Name, &role.Color, &description, &perms,
		&role.IsDefault, &role.Position, &role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	role.Description = toStrPtr(description)
	role.Permissions = decodePermissionColumn(ctx, perms)
	return &role, nil
}

// =====================================================
// Projects
// =====================================================

// ProjectExists reports whether a project row exists.
func (r *ProjectRepository) ProjectExists(ctx context.Context, projectID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check project: %w", err)
	}
	return exists, nil
}

// ListProjectIDs returns every project id, oldest first.
func (r *ProjectRepository) ListProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect projects: %w", err)
	}
	return ids, nil
}

// =====================================================
// Roles
// =====================================================

// GetRole returns a role of the project.
func (r *ProjectRepository) GetRole(ctx context.Context, projectID, roleID string) (*domain.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles r WHERE r.project_id = $1 AND r.id = $2`

	role, err := scanRole(ctx, r.pool.QueryRow(ctx, query, projectID, roleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("query role: %w", err)
	}
	return role, nil
}

// GetDefaultRoleByPosition returns the built-in role at position. Names may have
// been customized, so the lookup never uses them.
func (r *ProjectRepository) GetDefaultRoleByPosition(ctx context.Context, projectID string, position int) (*domain.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles r WHERE r.project_id = $1 AND r.is_default AND r.position = $2`

	role, err := scanRole(ctx, r.pool.QueryRow(ctx, query, projectID, position))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("query default role: %w", err)
	}
	return role, nil
}

// ListRoles returns the roles of a project ordered by rank.
func (r *ProjectRepository) ListRoles(ctx context.Context, projectID string) ([]domain.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles r WHERE r.project_id = $1 ORDER BY r.position, r.created_at, r.id`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := []domain.Role{}
	for rows.Next() {
		role, err := scanRole(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

// InsertDefaultRoles seeds defaults (isDefault=true) and extras (isDefault=false)
// in one transaction. Defaults collide on the partial unique index
// (project_id, position) WHERE is_default and are skipped silently; extras are
// only written by the transaction that actually created the owner role, so
// concurrent callers never duplicate them. Returns whether this call seeded the project.
func (r *ProjectRepository) InsertDefaultRoles(ctx context.Context, projectID string, defaults, extras []domain.RolePreset) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin provisioning tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertDefault := `
		INSERT INTO roles (id, project_id, name, color, description, permissions, is_default, position)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		ON CONFLICT (project_id, position) WHERE is_default DO NOTHING
	`

	seeded := false
	for _, preset := range defaults {
		perms, err := encodePermissionColumn(preset.Permissions)
		if err != nil {
			return false, err
		}
		tag, err := tx.Exec(ctx, insertDefault, newID(), projectID, preset.Name, preset.Color, preset.Description, perms, preset.Position)
		if err != nil {
			if fk, _ := isForeignKeyViolation(err); fk {
				return false, ErrProjectNotFound
			}
			return false, fmt.Errorf("insert default role %q: %w", preset.Name, err)
		}
		if preset.Position == domain.PositionOwner && tag.RowsAffected() == 1 {
			seeded = true
		}
	}

	if seeded {
		insertExtra := `
			INSERT INTO roles (id, project_id, name, color, description, permissions, is_default, position)
			VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		`
		for _, preset := range extras {
			perms, err := encodePermissionColumn(preset.Permissions)
			if err != nil {
				return false, err
			}
			if _, err := tx.Exec(ctx, insertExtra, newID(), projectID, preset.Name, preset.Color, preset.Description, perms, preset.Position); err != nil {
				return false, fmt.Errorf("insert extra role %q: %w", preset.Name, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit provisioning tx: %w", err)
	}
	return seeded, nil
}

// CreateRole inserts a custom role. ID and timestamps are filled in.
func (r *ProjectRepository) CreateRole(ctx context.Context, role *domain.Role) error {
	perms, err := encodePermissionColumn(role.Permissions)
	if err != nil {
		return err
	}
	if role.ID == "" {
		role.ID = newID()
	}

	query := `
		INSERT INTO roles (id, project_id, name, color, description, permissions, is_default, position)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		RETURNING created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, query, role.ID, role.ProjectID, role.Name, role.Color, role.Description, perms, role.Position).
		Scan(&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if fk, _ := isForeignKeyViolation(err); fk {
			return ErrProjectNotFound
		}
		return fmt.Errorf("insert role: %w", err)
	}
	role.IsDefault = false
	return nil
}

// DeleteRole removes a role. Members holding it move to reassignTo when given;
// otherwise ErrRoleInUse is returned if any member holds it. Returns the number
// of reassigned members.
func (r *ProjectRepository) DeleteRole(ctx context.Context, projectID, roleID string, reassignTo *string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin delete role tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var reassigned int64
	if reassignTo != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE project_members SET role_id = $3, updated_at = NOW()
			WHERE project_id = $1 AND role_id = $2
		`, projectID, roleID, *reassignTo)
		if err != nil {
			return 0, fmt.Errorf("reassign members: %w", err)
		}
		reassigned = tag.RowsAffected()
	}

	tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE project_id = $1 AND id = $2`, projectID, roleID)
	if err != nil {
		if fk, _ := isForeignKeyViolation(err); fk {
			return 0, ErrRoleInUse
		}
		return 0, fmt.Errorf("delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrRoleNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit delete role tx: %w", err)
	}
	return reassigned, nil
}

// =====================================================
// Memberships
// =====================================================

const membershipSelect = `
	SELECT m.user_id, m.project_id, m.role_id, m.overrides, m.created_at, m.updated_at, ` + roleColumns + `
	FROM project_members m
	JOIN roles r ON r.id = m.role_id
`

func scanMembership(ctx context.Context, row rowScanner) (*domain.ProjectMembership, error) {
	var (
		m         domain.ProjectMembership
		overrides []byte
	)
	role, err := scanRoleAfter(ctx, row, &m.UserID, &m.ProjectID, &m.RoleID, &overrides, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Overrides = decodePermissionColumn(ctx, overrides)
	m.Role = role
	return &m, nil
}

// scanRoleAfter scans leading columns into prefix, then the role columns.
func scanRoleAfter(ctx context.Context, row rowScanner, prefix ...any) (*domain.Role, error) {
	return scanRole(ctx, prefixScanner{row: row, prefix: prefix})
}

type prefixScanner struct {
	row    rowScanner
	prefix []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.row.Scan(append(append([]any{}, p.prefix...), dest...)...)
}

// GetMembership returns a member with their role, in a single query.
func (r *ProjectRepository) GetMembership(ctx context.Context, userID, projectID string) (*domain.ProjectMembership, error) {
	query := membershipSelect + ` WHERE m.user_id = $1 AND m.project_id = $2`

	m, err := scanMembership(ctx, r.pool.QueryRow(ctx, query, userID, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("query membership: %w", err)
	}
	return m, nil
}

// ListMembers returns the members of a project ordered by rank, then join date.
func (r *ProjectRepository) ListMembers(ctx context.Context, projectID string) ([]domain.ProjectMembership, error) {
	query := membershipSelect + ` WHERE m.project_id = $1 ORDER BY r.position, m.created_at, m.user_id`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := []domain.ProjectMembership{}
	for rows.Next() {
		m, err := scanMembership(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// CountMembersWithRole counts members currently holding roleID.
func (r *ProjectRepository) CountMembersWithRole(ctx context.Context, projectID, roleID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM project_members WHERE project_id = $1 AND role_id = $2`, projectID, roleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members with role: %w", err)
	}
	return n, nil
}

// AddMember inserts a membership with no overrides. The role must belong to the project.
func (r *ProjectRepository) AddMember(ctx context.Context, projectID, userID, roleID string) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO project_members (project_id, user_id, role_id, overrides)
		SELECT $1, $2, r.id, '[]'::jsonb FROM roles r WHERE r.id = $3 AND r.project_id = $1
	`, projectID, userID, roleID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyMember
		}
		if fk, constraint := isForeignKeyViolation(err); fk {
			if constraint == "project_members_user_id_fkey" {
				return ErrUserNotFound
			}
			return ErrProjectNotFound
		}
		return fmt.Errorf("insert member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// UpdateMemberRole changes the role of an existing member. The role must belong
// to the same project.
func (r *ProjectRepository) UpdateMemberRole(ctx context.Context, projectID, userID, roleID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE project_members m SET role_id = r.id, updated_at = NOW()
		FROM roles r
		WHERE m.project_id = $1 AND m.user_id = $2 AND r.id = $3 AND r.project_id = $1
	`, projectID, userID, roleID)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// SetOverrides replaces the additive overrides of a member.
func (r *ProjectRepository) SetOverrides(ctx context.Context, projectID, userID string, perms []domain.Permission) error {
	encoded, err := encodePermissionColumn(perms)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE project_members SET overrides = $3, updated_at = NOW()
		WHERE project_id = $1 AND user_id = $2
	`, projectID, userID, encoded)
	if err != nil {
		return fmt.Errorf("update overrides: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// RemoveMember deletes a membership.
func (r *ProjectRepository) RemoveMember(ctx context.Context, projectID, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}
