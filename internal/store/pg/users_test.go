package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/codesan-git/blasting-be/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewStore(db), mock
}

func TestUserCreateAssignsIDAndTimestamps(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`insert into users`).
		WithArgs(sqlmock.AnyArg(), "ani@example.com", "Ani", "hash", []byte(`["viewer"]`), true).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u := &auth.User{
		Email:        "ani@example.com",
		Name:         "Ani",
		PasswordHash: "hash",
		Roles:        []string{"viewer"},
		IsActive:     true,
	}
	require.NoError(t, store.Users(context.Background()).Create(context.Background(), u))
	require.NotEmpty(t, u.ID)
	require.Equal(t, now, u.CreatedAt)
}

func TestUserCreateDuplicateEmailIsConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`insert into users`).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Users(context.Background()).Create(context.Background(), &auth.User{
		Email: "dup@example.com",
		Roles: []string{"viewer"},
	})
	require.ErrorIs(t, err, auth.ErrConflict)
}

func TestUserFindByEmailDecodesRoles(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	lastLogin := now.Add(-time.Hour)

	mock.ExpectQuery(`select .+ from users where email`).
		WithArgs("ani@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "name", "password_hash", "roles", "is_active",
			"created_at", "updated_at", "last_login_at",
		}).AddRow("u1", "ani@example.com", "Ani", "hash", []byte(`["admin","operator"]`),
			true, now, now, lastLogin))

	u, err := store.Users(context.Background()).FindByEmail(context.Background(), "ani@example.com")
	require.NoError(t, err)
	require.Equal(t, []string{"admin", "operator"}, u.Roles)
	require.NotNil(t, u.LastLoginAt)
	require.WithinDuration(t, lastLogin, *u.LastLoginAt, time.Second)
}

func TestUserFindUnknownIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select .+ from users where id`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "name", "password_hash", "roles", "is_active",
			"created_at", "updated_at", "last_login_at",
		}))

	_, err := store.Users(context.Background()).Find(context.Background(), "missing")
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserUpdateMissingRowIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`update users`).
		WithArgs("missing", "Name", []byte(`["viewer"]`), true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Users(context.Background()).Update(context.Background(), &auth.User{
		ID:       "missing",
		Name:     "Name",
		Roles:    []string{"viewer"},
		IsActive: true,
	})
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestCountActiveWithRoleUsesContainment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select count\(\*\) from users`).
		WithArgs([]byte(`["super_admin"]`), "u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := store.Users(context.Background()).CountActiveWithRole(context.Background(), "super_admin", "u1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestUserDelete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`delete from users where id`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Users(context.Background()).Delete(context.Background(), "u1"))
}
