package auth

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	users  *memoryUsers
	tokens *memoryTokens
	perms  *memoryPerms
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  &memoryUsers{byID: map[string]*User{}},
		tokens: &memoryTokens{byID: map[string]*RefreshToken{}},
		perms:  &memoryPerms{},
	}
}

func (s *MemoryStore) Users(ctx context.Context) UserStore                     { return s.users }
func (s *MemoryStore) RefreshTokens(ctx context.Context) RefreshTokenStore     { return s.tokens }
func (s *MemoryStore) RolePermissions(ctx context.Context) RolePermissionStore { return s.perms }

// ActiveTokenCount reports live refresh tokens for a user.
func (s *MemoryStore) ActiveTokenCount(userID string) int {
	s.tokens.mu.Lock()
	defer s.tokens.mu.Unlock()
	n := 0
	for _, tok := range s.tokens.byID {
		if tok.UserID == userID && !tok.Revoked {
			n++
		}
	}
	return n
}

type memoryUsers struct {
	mu   sync.Mutex
	byID map[string]*User
}

var _ UserStore = (*memoryUsers)(nil)

func (s *memoryUsers) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.byID[u.ID] = &cp
	return nil
}

func (s *memoryUsers) Find(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memoryUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryUsers) List(ctx context.Context) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*User, 0, len(s.byID))
	for _, u := range s.byID {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryUsers) Update(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[u.ID]; !ok {
		return ErrNotFound
	}
	u.UpdatedAt = time.Now()
	cp := *u
	s.byID[u.ID] = &cp
	return nil
}

func (s *memoryUsers) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *memoryUsers) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (s *memoryUsers) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[userID]; !ok {
		return ErrNotFound
	}
	delete(s.byID, userID)
	return nil
}

func (s *memoryUsers) CountActiveWithRole(ctx context.Context, role, excludeUserID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.byID {
		if u.ID == excludeUserID || !u.IsActive {
			continue
		}
		if u.HasRole(role) {
			n++
		}
	}
	return n, nil
}

type memoryTokens struct {
	mu   sync.Mutex
	byID map[string]*RefreshToken
}

var _ RefreshTokenStore = (*memoryTokens)(nil)

func (s *memoryTokens) Create(ctx context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	s.byID[tok.ID] = &cp
	return nil
}

func (s *memoryTokens) Find(ctx context.Context, id string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (s *memoryTokens) MarkRevoked(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	tok.Revoked = true
	return nil
}

func (s *memoryTokens) MarkRevokedByUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.byID {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

type memoryPerms struct {
	mu   sync.Mutex
	rows []RolePermission
}

var _ RolePermissionStore = (*memoryPerms)(nil)

func (s *memoryPerms) ListByRoles(ctx context.Context, roles []string) ([]RolePermission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RolePermission
	for _, row := range s.rows {
		for _, role := range roles {
			if row.Role == role {
				out = append(out, row)
				break
			}
		}
	}
	return out, nil
}

func (s *memoryPerms) ListByRole(ctx context.Context, role string) ([]RolePermission, error) {
	return s.ListByRoles(ctx, []string{role})
}

func (s *memoryPerms) Add(ctx context.Context, rp RolePermission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.Role == rp.Role && row.Permission == rp.Permission {
			return false, nil
		}
	}
	s.rows = append(s.rows, rp)
	return true, nil
}

func (s *memoryPerms) Remove(ctx context.Context, role, permission string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.Role == role && row.Permission == permission {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryPerms) Replace(ctx context.Context, role string, permissions []string, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []RolePermission
	for _, row := range s.rows {
		if row.Role != role {
			kept = append(kept, row)
		}
	}
	for _, p := range permissions {
		kept = append(kept, RolePermission{Role: role, Permission: p, CreatedBy: actor})
	}
	s.rows = kept
	return nil
}
