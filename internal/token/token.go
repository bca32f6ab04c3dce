// Package token mints and verifies the signed, expiring JWTs used for access,
// refresh and one-shot account actions. It keeps no server-side state.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"postboard/internal/config"
)

type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
	Verify  Kind = "verify"
	Reset   Kind = "reset"
)

var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

type Claims struct {
	jwt.RegisteredClaims
	Type        Kind   `json:"typ"`
	Fingerprint string `json:"fpr,omitempty"`
}

// Token is an issued token together with the metadata callers need to set
// cookie lifetimes and compare rotations.
type Token struct {
	Value       string
	ID          string
	Subject     string
	Fingerprint string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type Service struct {
	secret []byte
	ttl    map[Kind]time.Duration
	now    func() time.Time
}

func NewService(cfg config.Tokens) *Service {
	return &Service{
		secret: cfg.Secret,
		ttl: map[Kind]time.Duration{
			Access:  cfg.AccessTTL,
			Refresh: cfg.RefreshTTL,
			Verify:  cfg.ActionTTL,
			Reset:   cfg.ActionTTL,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source; tests use it to pin issuance and expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) TTL(kind Kind) time.Duration {
	return s.ttl[kind]
}

func (s *Service) Issue(subject string, kind Kind) (Token, error) {
	return s.issue(subject, kind, "", time.Time{})
}

// IssueAfter issues a token whose expiry is strictly later than floor.
func (s *Service) IssueAfter(subject string, kind Kind, floor time.Time) (Token, error) {
	return s.issue(subject, kind, "", floor)
}

// IssueBound issues a token that only verifies while the caller-supplied
// fingerprint still matches, e.g. a reset token bound to the current password hash.
func (s *Service) IssueBound(subject string, kind Kind, fingerprint string) (Token, error) {
	return s.issue(subject, kind, fingerprint, time.Time{})
}

func (s *Service) issue(subject string, kind Kind, fingerprint string, floor time.Time) (Token, error) {
	ttl, ok := s.ttl[kind]
	if !ok || ttl <= 0 {
		return Token{}, fmt.Errorf("no lifetime configured for %s tokens", kind)
	}

	jti, err := uuid.NewV7()
	if err != nil {
		return Token{}, fmt.Errorf("generate token id: %w", err)
	}

	issuedAt := s.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)
	if !floor.IsZero() && !expiresAt.After(floor) {
		expiresAt = floor.Truncate(time.Second).Add(time.Second)
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type:        kind,
		Fingerprint: fingerprint,
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign jwt: %w", err)
	}

	return Token{
		Value:       encoded,
		ID:          jti.String(),
		Subject:     subject,
		Fingerprint: fingerprint,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
	}, nil
}

// Verify checks signature, algorithm, expiry and kind. A token of the wrong
// kind is reported as ErrInvalidSignature so callers never accept e.g. a
// refresh token as a bearer credential.
func (s *Service) Verify(raw string, kind Kind) (Token, error) {
	claims := Claims{}
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Token{}, ErrExpired
		}
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !parsed.Valid || claims.Type != kind || claims.Subject == "" {
		return Token{}, ErrInvalidSignature
	}

	tok := Token{
		Value:       raw,
		ID:          claims.ID,
		Subject:     claims.Subject,
		Fingerprint: claims.Fingerprint,
		ExpiresAt:   claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		tok.IssuedAt = claims.IssuedAt.Time.UTC()
	}

	return tok, nil
}
