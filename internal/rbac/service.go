package rbac

import (
	"context"
	"fmt"
	"strings"
)

// Service orchestrates RBAC operations.
type Service struct {
	store Store
}

// NewService constructs a Service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// EffectivePermissions returns deduplicated, lower-cased permission names
// for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.store.UserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return normalizePermissions(rows), nil
}

// HasAny reports whether the user holds at least one of perms.
func (s *Service) HasAny(ctx context.Context, userID int64, perms ...string) (bool, error) {
	granted, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return hasAnyPermission(granted, normalizePermissions(perms)), nil
}

// EnsureRoleWith upserts role and grants it every permission in perms.
func (s *Service) EnsureRoleWith(ctx context.Context, role, description string, perms []string) (Role, error) {
	r, err := s.store.EnsureRole(ctx, role, description)
	if err != nil {
		return Role{}, fmt.Errorf("ensure role %s: %w", role, err)
	}
	for _, name := range perms {
		p, err := s.store.EnsurePermission(ctx, name, permissionDescription(name))
		if err != nil {
			return Role{}, fmt.Errorf("ensure permission %s: %w", name, err)
		}
		if err := s.store.GrantPermission(ctx, r.ID, p.ID); err != nil {
			return Role{}, fmt.Errorf("grant %s to %s: %w", name, role, err)
		}
	}
	return r, nil
}

// AssignRole assigns a role to the given user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	return s.store.AssignRole(ctx, userID, roleID)
}

func permissionDescription(name string) string {
	resource, action, _ := strings.Cut(name, ".")
	return strings.TrimSpace(action + " " + resource)
}
