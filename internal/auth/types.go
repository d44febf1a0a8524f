package auth

import "time"

// User represents an operator account able to authenticate and run blasts.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Roles        []string   `json:"roles"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// RefreshToken is a persisted session record. Only the hash of the secret
// half of the token is stored; the plaintext is returned exactly once.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// RolePermission links a role to one permission from the closed catalog.
// This table is the runtime source of truth for authorization.
type RolePermission struct {
	Role       string    `json:"role"`
	Permission string    `json:"permission"`
	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  string    `json:"created_by,omitempty"`
}

// Principal is a user with permissions resolved from the persisted store.
type Principal struct {
	User        *User
	Permissions map[string]struct{}
}

// HasPermission reports whether the principal holds the given permission.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// HasAnyPermission reports whether the principal holds at least one of keys.
func (p Principal) HasAnyPermission(keys ...string) bool {
	for _, k := range keys {
		if p.HasPermission(k) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the principal holds every key.
func (p Principal) HasAllPermissions(keys ...string) bool {
	for _, k := range keys {
		if !p.HasPermission(k) {
			return false
		}
	}
	return true
}

// HasRole reports whether the user carries the role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
