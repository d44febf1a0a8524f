package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	RolePermissions(ctx context.Context) RolePermissionStore
}

// UserStore manages user accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	Delete(ctx context.Context, userID string) error
	// CountActiveWithRole reports how many active users carry the role,
	// optionally excluding one user id (for demotion checks).
	CountActiveWithRole(ctx context.Context, role, excludeUserID string) (int, error)
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
	MarkRevokedByUser(ctx context.Context, userID string) error
}

// RolePermissionStore manages the dynamic role to permission mapping.
type RolePermissionStore interface {
	// ListByRoles returns persisted rows for all given roles.
	ListByRoles(ctx context.Context, roles []string) ([]RolePermission, error)
	ListByRole(ctx context.Context, role string) ([]RolePermission, error)
	// Add inserts a pair; created=false means it already existed.
	Add(ctx context.Context, rp RolePermission) (created bool, err error)
	// Remove deletes a pair; removed=false means it did not exist.
	Remove(ctx context.Context, role, permission string) (removed bool, err error)
	// Replace atomically swaps a role's permission set.
	Replace(ctx context.Context, role string, permissions []string, actor string) error
}
