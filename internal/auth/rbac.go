package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PermissionService resolves and mutates the dynamic role to permission
// mapping. Every lookup hits the persisted store; the compiled defaults are
// used only for roles with no persisted rows.
type PermissionService struct {
	store RolePermissionStore
}

// NewPermissionService constructs a PermissionService.
func NewPermissionService(store RolePermissionStore) (*PermissionService, error) {
	if store == nil {
		return nil, errors.New("role permission store is required")
	}
	return &PermissionService{store: store}, nil
}

// Resolve unions persisted permissions for all given roles. super_admin
// always resolves to the full catalog.
func (s *PermissionService) Resolve(ctx context.Context, roles []string) (map[string]struct{}, error) {
	normalized := normalizeRoles(roles)
	result := make(map[string]struct{})
	if len(normalized) == 0 {
		return result, nil
	}

	for _, r := range normalized {
		if r == RoleSuperAdmin {
			for _, p := range AllPermissions {
				result[p] = struct{}{}
			}
			break
		}
	}

	rows, err := s.store.ListByRoles(ctx, normalized)
	if err != nil {
		return nil, err
	}
	persisted := make(map[string]bool, len(normalized))
	for _, row := range rows {
		persisted[row.Role] = true
		result[row.Permission] = struct{}{}
	}
	for _, r := range normalized {
		if persisted[r] || r == RoleSuperAdmin {
			continue
		}
		for _, p := range DefaultPermissions(r) {
			result[p] = struct{}{}
		}
	}
	return result, nil
}

// HasPermission reports whether the role set grants a single permission.
func (s *PermissionService) HasPermission(ctx context.Context, roles []string, permission string) (bool, error) {
	perms, err := s.Resolve(ctx, roles)
	if err != nil {
		return false, err
	}
	_, ok := perms[permission]
	return ok, nil
}

// HasAnyPermission reports whether the role set grants at least one key.
func (s *PermissionService) HasAnyPermission(ctx context.Context, roles []string, keys ...string) (bool, error) {
	perms, err := s.Resolve(ctx, roles)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if _, ok := perms[k]; ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions reports whether the role set grants every key.
func (s *PermissionService) HasAllPermissions(ctx context.Context, roles []string, keys ...string) (bool, error) {
	perms, err := s.Resolve(ctx, roles)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if _, ok := perms[k]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// List returns the persisted rows for one role.
func (s *PermissionService) List(ctx context.Context, role string) ([]RolePermission, error) {
	role, err := checkRole(role)
	if err != nil {
		return nil, err
	}
	return s.store.ListByRole(ctx, role)
}

// Add grants a permission to a role. Adding an existing pair is a no-op
// reported through created=false, not an error.
func (s *PermissionService) Add(ctx context.Context, role, permission, actor string) (created bool, err error) {
	role, permission, err = checkPair(role, permission)
	if err != nil {
		return false, err
	}
	return s.store.Add(ctx, RolePermission{Role: role, Permission: permission, CreatedBy: actor})
}

// Remove revokes a permission from a role. Removing an absent pair is
// reported through removed=false, not an error.
func (s *PermissionService) Remove(ctx context.Context, role, permission string) (removed bool, err error) {
	role, permission, err = checkPair(role, permission)
	if err != nil {
		return false, err
	}
	return s.store.Remove(ctx, role, permission)
}

// Replace swaps a role's entire permission set atomically.
func (s *PermissionService) Replace(ctx context.Context, role string, permissions []string, actor string) error {
	role, err := checkRole(role)
	if err != nil {
		return err
	}
	deduped := make([]string, 0, len(permissions))
	seen := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		p = strings.TrimSpace(p)
		if !ValidPermission(p) {
			return fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, p)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		deduped = append(deduped, p)
	}
	return s.store.Replace(ctx, role, deduped, actor)
}

func checkRole(role string) (string, error) {
	role = strings.TrimSpace(strings.ToLower(role))
	if !ValidRole(role) {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	return role, nil
}

func checkPair(role, permission string) (string, string, error) {
	role, err := checkRole(role)
	if err != nil {
		return "", "", err
	}
	permission = strings.TrimSpace(permission)
	if !ValidPermission(permission) {
		return "", "", fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, permission)
	}
	return role, permission, nil
}

func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var out []string
	for _, r := range roles {
		r = strings.TrimSpace(strings.ToLower(r))
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
