package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/codesan-git/blasting-be/internal/auth"
)

type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, tok *auth.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_hash, expires_at, is_revoked)
		values ($1, $2, $3, $4, false)
	`, tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *refreshTokenStore) Find(ctx context.Context, id string) (*auth.RefreshToken, error) {
	var tok auth.RefreshToken
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, expires_at, created_at, is_revoked
		from refresh_tokens where id = $1
	`, id).Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt, &tok.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *refreshTokenStore) MarkRevoked(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens set is_revoked = true where id = $1
	`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *refreshTokenStore) MarkRevokedByUser(ctx context.Context, userID string) error {
	// Zero rows is fine: the user may simply have no live sessions.
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set is_revoked = true
		where user_id = $1 and not is_revoked
	`, userID)
	return err
}
