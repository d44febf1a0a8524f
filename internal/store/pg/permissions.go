package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/codesan-git/blasting-be/internal/auth"
)

type rolePermissionStore struct{ db *sql.DB }

func (s *rolePermissionStore) ListByRoles(ctx context.Context, roles []string) ([]auth.RolePermission, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(roles))
	args := make([]any, len(roles))
	for i, r := range roles {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = r
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select role, permission, created_at, coalesce(created_by, '')
		from role_permissions
		where role in (%s)
		order by role, permission
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRolePermissions(rows)
}

func (s *rolePermissionStore) ListByRole(ctx context.Context, role string) ([]auth.RolePermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role, permission, created_at, coalesce(created_by, '')
		from role_permissions
		where role = $1
		order by permission
	`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRolePermissions(rows)
}

func (s *rolePermissionStore) Add(ctx context.Context, rp auth.RolePermission) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		insert into role_permissions (role, permission, created_by)
		values ($1, $2, nullif($3, ''))
		on conflict (role, permission) do nothing
	`, rp.Role, rp.Permission, rp.CreatedBy)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *rolePermissionStore) Remove(ctx context.Context, role, permission string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from role_permissions where role = $1 and permission = $2
	`, role, permission)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *rolePermissionStore) Replace(ctx context.Context, role string, permissions []string, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role = $1`, role); err != nil {
		return err
	}
	for _, perm := range permissions {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role, permission, created_by)
			values ($1, $2, nullif($3, ''))
		`, role, perm, actor); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func collectRolePermissions(rows *sql.Rows) ([]auth.RolePermission, error) {
	var out []auth.RolePermission
	for rows.Next() {
		var rp auth.RolePermission
		if err := rows.Scan(&rp.Role, &rp.Permission, &rp.CreatedAt, &rp.CreatedBy); err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}
