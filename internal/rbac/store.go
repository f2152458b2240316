package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sisl-bd/eshop/internal/platform/db"
	"github.com/sisl-bd/eshop/internal/shared"
)

// Store persists roles, permissions and their assignments.
type Store interface {
	UserPermissions(ctx context.Context, userID int64) ([]string, error)
	EnsureRole(ctx context.Context, name, description string) (Role, error)
	EnsurePermission(ctx context.Context, name, description string) (Permission, error)
	GrantPermission(ctx context.Context, roleID, permissionID int64) error
	AssignRole(ctx context.Context, userID, roleID int64) error
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db db.DBTX
}

// NewStore constructs a PostgreSQL store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool}
}

// UserPermissions returns the permission names granted through the user's
// roles. Superusers hold every permission; staff members hold at least the
// staff scopes.
func (s *PGStore) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	var superuser, staff bool
	err := s.db.QueryRow(ctx, `SELECT is_superuser, is_staff FROM users WHERE id = $1 AND is_active`, userID).Scan(&superuser, &staff)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	query := `SELECT DISTINCT p.name
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
ORDER BY p.name`
	args := []any{userID}
	if superuser {
		query = `SELECT name FROM permissions ORDER BY name`
		args = nil
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if staff {
		perms = withStaffScopes(perms)
	}
	return perms, nil
}

// EnsureRole upserts a role by name.
func (s *PGStore) EnsureRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := s.db.QueryRow(ctx, `INSERT INTO roles (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id, name, description, created_at`, strings.TrimSpace(name), strings.TrimSpace(description)).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	return role, err
}

// EnsurePermission upserts a permission by name.
func (s *PGStore) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	var perm Permission
	err := s.db.QueryRow(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id, name, description`, strings.TrimSpace(name), strings.TrimSpace(description)).
		Scan(&perm.ID, &perm.Name, &perm.Description)
	return perm, err
}

// GrantPermission attaches a permission to a role.
func (s *PGStore) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := s.db.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roleID, permissionID)
	return err
}

// AssignRole assigns a role to the given user.
func (s *PGStore) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.db.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

// withStaffScopes adds the staff scopes missing from perms.
func withStaffScopes(perms []string) []string {
	seen := make(map[string]bool, len(perms))
	for _, p := range perms {
		seen[p] = true
	}
	for _, p := range shared.StaffScopes() {
		if !seen[p] {
			perms = append(perms, p)
		}
	}
	return perms
}

var _ Store = (*PGStore)(nil)
