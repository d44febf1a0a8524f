package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codesan-git/blasting-be/internal/ids"
)

const (
	defaultIssuer     = "blasting-be"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	defaultMaxSuperAdmins = 3
)

// Claims carries the identity embedded in access tokens. Verification is
// stateless: signature plus expiry only, no storage lookup.
type Claims struct {
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Service implements credential and session management: login, token
// issuance, refresh rotation, revocation and user administration.
type Service struct {
	store Store
	perms *PermissionService
	now   func() time.Time

	secret         []byte
	issuer         string
	accessTTL      time.Duration
	refreshTTL     time.Duration
	maxSuperAdmins int
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if iss := strings.TrimSpace(issuer); iss != "" {
			s.issuer = iss
		}
		return nil
	}
}

// WithMaxSuperAdmins overrides the registration cap for super admins.
func WithMaxSuperAdmins(n int) ServiceOption {
	return func(s *Service) error {
		if n > 0 {
			s.maxSuperAdmins = n
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, perms *PermissionService, secret string, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	if perms == nil {
		return nil, errors.New("permission service is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth secret is required")
	}
	svc := &Service{
		store:          store,
		perms:          perms,
		now:            time.Now,
		secret:         []byte(secret),
		issuer:         defaultIssuer,
		accessTTL:      defaultAccessTTL,
		refreshTTL:     defaultRefreshTTL,
		maxSuperAdmins: defaultMaxSuperAdmins,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// TokenPair represents access and refresh tokens with their expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Login authenticates credentials and issues a fresh token pair. Unknown
// email and wrong password yield the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return TokenPair{}, Principal{}, ErrAccountInactive
	}
	principal, err := s.principal(ctx, user)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	pair, err := s.mintTokens(ctx, principal)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	if err := s.store.Users(ctx).UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		return TokenPair{}, Principal{}, err
	}
	return pair, principal, nil
}

// Refresh rotates the refresh token and issues new access credentials.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, Principal, error) {
	record, err := s.lookupRefreshToken(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	user, err := s.store.Users(ctx).Find(ctx, record.UserID)
	if err != nil {
		return TokenPair{}, Principal{}, ErrInvalidToken
	}
	if !user.IsActive {
		return TokenPair{}, Principal{}, ErrAccountInactive
	}
	principal, err := s.principal(ctx, user)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	// Rotate: revoke old, issue new pair.
	if err := s.store.RefreshTokens(ctx).MarkRevoked(ctx, record.ID); err != nil {
		return TokenPair{}, Principal{}, err
	}
	pair, err := s.mintTokens(ctx, principal)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	return pair, principal, nil
}

// Logout revokes a single session's refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	record, err := s.lookupRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	return s.store.RefreshTokens(ctx).MarkRevoked(ctx, record.ID)
}

// RevokeAllSessions invalidates every refresh token of a user.
func (s *Service) RevokeAllSessions(ctx context.Context, userID string) error {
	return s.store.RefreshTokens(ctx).MarkRevokedByUser(ctx, userID)
}

// ChangePassword verifies the current password, stores the new hash and
// revokes all sessions.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	next = strings.TrimSpace(next)
	if next == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	return s.RevokeAllSessions(ctx, userID)
}

// AuthenticateToken validates an access token and returns the principal with
// permissions re-resolved against the persisted store.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (Principal, error) {
	claims, err := s.verifyAccessToken(token)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, err
	}
	if !user.IsActive {
		return Principal{}, ErrAccountInactive
	}
	return s.principal(ctx, user)
}

// RegisterInput carries the fields for creating a user.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
	Roles    []string
}

// Register creates a user. Duplicate email is a conflict; registering beyond
// the super admin cap is a terminal validation error.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	roles := normalizeRoles(in.Roles)
	if len(roles) == 0 {
		roles = []string{RoleViewer}
	}
	for _, r := range roles {
		if !ValidRole(r) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, r)
		}
	}
	if containsRole(roles, RoleSuperAdmin) {
		count, err := s.store.Users(ctx).CountActiveWithRole(ctx, RoleSuperAdmin, "")
		if err != nil {
			return nil, err
		}
		if count >= s.maxSuperAdmins {
			return nil, ErrSuperAdminLimit
		}
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           ids.New(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Roles:        roles,
		IsActive:     true,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UserUpdate mutates profile fields; nil fields are left untouched.
type UserUpdate struct {
	Name     *string
	Roles    []string
	IsActive *bool
}

// UpdateUser applies a partial update, guarding the last-super-admin floor.
// Deactivation revokes every session of the user.
func (s *Service) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (*User, error) {
	users := s.store.Users(ctx)
	user, err := users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}

	losesSuperAdmin := false
	if upd.Roles != nil {
		roles := normalizeRoles(upd.Roles)
		for _, r := range roles {
			if !ValidRole(r) {
				return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, r)
			}
		}
		if containsRole(roles, RoleSuperAdmin) && !user.HasRole(RoleSuperAdmin) {
			count, err := users.CountActiveWithRole(ctx, RoleSuperAdmin, "")
			if err != nil {
				return nil, err
			}
			if count >= s.maxSuperAdmins {
				return nil, ErrSuperAdminLimit
			}
		}
		if user.HasRole(RoleSuperAdmin) && !containsRole(roles, RoleSuperAdmin) {
			losesSuperAdmin = true
		}
		user.Roles = roles
	}
	deactivating := false
	if upd.IsActive != nil && user.IsActive && !*upd.IsActive {
		deactivating = true
	}
	if user.IsActive && user.HasRole(RoleSuperAdmin) && (losesSuperAdmin || deactivating) {
		remaining, err := users.CountActiveWithRole(ctx, RoleSuperAdmin, userID)
		if err != nil {
			return nil, err
		}
		if remaining == 0 {
			return nil, ErrLastSuperAdmin
		}
	}
	if upd.Name != nil {
		user.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.IsActive != nil {
		user.IsActive = *upd.IsActive
	}
	if err := users.Update(ctx, user); err != nil {
		return nil, err
	}
	if deactivating {
		if err := s.RevokeAllSessions(ctx, userID); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// DeleteUser removes an account, revoking its sessions first. Deleting the
// last active super admin is rejected.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	users := s.store.Users(ctx)
	user, err := users.Find(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsActive && user.HasRole(RoleSuperAdmin) {
		remaining, err := users.CountActiveWithRole(ctx, RoleSuperAdmin, userID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return ErrLastSuperAdmin
		}
	}
	if err := s.RevokeAllSessions(ctx, userID); err != nil {
		return err
	}
	return users.Delete(ctx, userID)
}

// ListUsers returns all accounts.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.Users(ctx).List(ctx)
}

// Permissions exposes the permission service backing this auth service.
func (s *Service) Permissions() *PermissionService {
	return s.perms
}

func (s *Service) principal(ctx context.Context, user *User) (Principal, error) {
	perms, err := s.perms.Resolve(ctx, user.Roles)
	if err != nil {
		return Principal{}, err
	}
	return Principal{User: user, Permissions: perms}, nil
}

func (s *Service) mintTokens(ctx context.Context, principal Principal) (TokenPair, error) {
	now := s.now().UTC()
	access, accessExp, err := s.signAccessToken(principal, now)
	if err != nil {
		return TokenPair{}, err
	}
	refreshString, record, err := s.generateRefreshToken(principal.User.ID, now)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, record); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refreshString,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *Service) signAccessToken(principal Principal, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.accessTTL)
	claims := Claims{
		Email: principal.User.Email,
		Name:  principal.User.Name,
		Roles: principal.User.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   principal.User.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        ids.New(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (s *Service) verifyAccessToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh tokens are "<id>.<secret>" — only the sha256 of the secret half is
// persisted, so the plaintext cannot be recovered from storage.
func (s *Service) generateRefreshToken(userID string, now time.Time) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	tokenID := ids.New()
	sum := sha256.Sum256([]byte(secret))
	record := &RefreshToken{
		ID:        tokenID,
		UserID:    userID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	return tokenID + "." + secret, record, nil
}

func (s *Service) lookupRefreshToken(ctx context.Context, raw string) (*RefreshToken, error) {
	tokenID, secret, err := splitRefreshToken(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	store := s.store.RefreshTokens(ctx)
	record, err := store.Find(ctx, tokenID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if record.Revoked || s.now().After(record.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	if !secureCompareHash(record.TokenHash, secret) {
		// A wrong secret for a known token id smells like theft: burn it.
		_ = store.MarkRevoked(ctx, record.ID)
		return nil, ErrInvalidToken
	}
	return record, nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
