package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrInvalidCredentials is returned for unknown email and wrong password
	// alike, so login responses do not reveal which one failed.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountInactive rejects logins for deactivated accounts.
	ErrAccountInactive = errors.New("account is inactive")

	// ErrLastSuperAdmin guards the invariant that at least one active
	// super admin exists at all times.
	ErrLastSuperAdmin = errors.New("at least one active super admin is required")

	// ErrSuperAdminLimit rejects registrations beyond the configured cap.
	ErrSuperAdminLimit = errors.New("super admin limit reached")
)
