package auth

import (
	"database/sql"
	"time"

	"postboard/internal/token"
)

// Identity is a registered user. Only active identities authenticate and
// only active, verified identities may mutate resources.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     *string   `json:"full_name"`
	Active       bool      `json:"is_active"`
	Verified     bool      `json:"is_verified"`
	Superuser    bool      `json:"is_superuser"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile is the public view of an identity embedded in posts and comments.
type Profile struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FullName  *string `json:"full_name"`
	Active    bool    `json:"is_active"`
	Verified  bool    `json:"is_verified"`
	Superuser bool    `json:"is_superuser"`
}

// ProfileColumns selects a Profile from a users table aliased as u.
const ProfileColumns = `u.id, u.email, u.full_name, u.is_active, u.is_verified, u.is_superuser`

// ScanTargets returns the destinations matching ProfileColumns. Call
// Normalize after scanning.
func (p *Profile) ScanTargets(fullName *sql.NullString) []any {
	return []any{&p.ID, &p.Email, fullName, &p.Active, &p.Verified, &p.Superuser}
}

func (p *Profile) Normalize(fullName sql.NullString) {
	if fullName.Valid {
		value := fullName.String
		p.FullName = &value
	}
}

func (i Identity) Profile() Profile {
	return Profile{
		ID:        i.ID,
		Email:     i.Email,
		FullName:  i.FullName,
		Active:    i.Active,
		Verified:  i.Verified,
		Superuser: i.Superuser,
	}
}

type Registration struct {
	Email    string
	Password string
	FullName *string
}

type ProfileUpdate struct {
	FullName *string
	Password *string
}

// Session is the token pair handed out at login and on every refresh.
type Session struct {
	Access  token.Token
	Refresh token.Token
}

type accessResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
