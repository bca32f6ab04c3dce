package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identityRow = []string{"id", "email", "password_hash", "full_name", "is_active", "is_verified", "is_superuser", "created_at", "updated_at"}

func newMockRepository(t *testing.T) (*Repository, *RevocationRepository, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return NewRepository(database), NewRevocationRepository(database), mock
}

func TestRepositoryGetByEmail(t *testing.T) {
	repo, _, mock := newMockRepository(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM users\s+WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows(identityRow).
			AddRow("0190f6c4-7c1a-7000-8000-000000000001", "ann@example.com", "hash", "Ann", true, false, false, now, now))

	user, err := repo.GetByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", user.Email)
	require.NotNil(t, user.FullName)
	assert.Equal(t, "Ann", *user.FullName)
	assert.True(t, user.Active)

	mock.ExpectQuery(`SELECT .+ FROM users`).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetByID_InvalidUUIDSkipsQuery(t *testing.T) {
	repo, _, mock := newMockRepository(t)

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreate_DuplicateEmail(t *testing.T) {
	repo, _, mock := newMockRepository(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), "ann@example.com", "hash", nil)
	assert.ErrorIs(t, err, ErrEmailTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevocationRepositoryConsume(t *testing.T) {
	_, revocations, mock := newMockRepository(t)
	expires := time.Now().UTC().Add(time.Hour)

	mock.ExpectExec(`INSERT INTO auth_revoked_tokens .+ ON CONFLICT \(jti\) DO NOTHING`).
		WithArgs("jti-1", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO auth_revoked_tokens`).
		WithArgs("jti-1", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	fresh, err := revocations.Consume(context.Background(), "jti-1", "user-1", expires)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = revocations.Consume(context.Background(), "jti-1", "user-1", expires)
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevocationRepositoryPurgeExpired(t *testing.T) {
	_, revocations, mock := newMockRepository(t)

	mock.ExpectExec(`DELETE FROM auth_revoked_tokens`).
		WithArgs(sqlmock.AnyArg(), 500).
		WillReturnResult(sqlmock.NewResult(0, 3))

	deleted, err := revocations.PurgeExpired(context.Background(), 24*time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
