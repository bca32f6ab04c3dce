package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"postboard/internal/db"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const identityColumns = `id, email, password_hash, full_name, is_active, is_verified, is_superuser, created_at, updated_at`

func scanIdentity(row interface{ Scan(...any) error }) (Identity, error) {
	var (
		user     Identity
		fullName sql.NullString
	)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &fullName, &user.Active, &user.Verified, &user.Superuser, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return Identity{}, err
	}
	if fullName.Valid {
		value := fullName.String
		user.FullName = &value
	}
	return user, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (Identity, error) {
	user, err := scanIdentity(r.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, fmt.Errorf("query user by email: %w", err)
	}

	return user, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Identity{}, ErrUserNotFound
	}

	user, err := scanIdentity(r.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, fmt.Errorf("query user by id: %w", err)
	}

	return user, nil
}

func (r *Repository) Create(ctx context.Context, email, passwordHash string, fullName *string) (Identity, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Identity{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	user, err := scanIdentity(r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, is_active, is_verified, is_superuser, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, FALSE, FALSE, $5, $5)
		RETURNING `+identityColumns,
		id.String(), email, passwordHash, fullName, now))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Identity{}, ErrEmailTaken
		}
		return Identity{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (r *Repository) MarkVerified(ctx context.Context, id string) (Identity, error) {
	user, err := scanIdentity(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET is_verified = TRUE, updated_at = $2
		WHERE id = $1
		RETURNING `+identityColumns,
		id, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, fmt.Errorf("mark user verified: %w", err)
	}

	return user, nil
}

// UpdateProfile applies the non-nil fields; a nil passwordHash keeps the
// current one.
func (r *Repository) UpdateProfile(ctx context.Context, id string, fullName *string, passwordHash *string) (Identity, error) {
	user, err := scanIdentity(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET full_name = COALESCE($2, full_name),
			password_hash = COALESCE($3, password_hash),
			updated_at = $4
		WHERE id = $1
		RETURNING `+identityColumns,
		id, fullName, passwordHash, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, fmt.Errorf("update user: %w", err)
	}

	return user, nil
}

// RevocationRepository records refresh token ids that may no longer be used.
// It is only wired when single-use refresh tokens are enabled.
type RevocationRepository struct {
	db *sql.DB
}

func NewRevocationRepository(db *sql.DB) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Consume marks jti as spent and reports whether this call was the first to
// do so. The insert is atomic, so of two concurrent rotations only one wins.
func (r *RevocationRepository) Consume(ctx context.Context, jti, userID string, expiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_revoked_tokens (jti, user_id, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO NOTHING
	`, jti, userID, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert revoked token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoked token rows affected: %w", err)
	}

	return affected == 1, nil
}

// PurgeExpired deletes up to batchSize rows whose token expired more than
// retention ago; such tokens fail signature-time expiry checks anyway.
func (r *RevocationRepository) PurgeExpired(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	cutoff := time.Now().UTC().Add(-retention)

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT jti
			FROM auth_revoked_tokens
			WHERE expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM auth_revoked_tokens t
		USING stale
		WHERE t.jti = stale.jti
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale revoked tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale revoked tokens rows affected: %w", err)
	}

	return affected, nil
}
