package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"postboard/internal/apperr"
	"postboard/internal/mail"
	"postboard/internal/observability"
	"postboard/internal/token"
)

type IdentityStore interface {
	GetByEmail(ctx context.Context, email string) (Identity, error)
	GetByID(ctx context.Context, id string) (Identity, error)
	Create(ctx context.Context, email, passwordHash string, fullName *string) (Identity, error)
	MarkVerified(ctx context.Context, id string) (Identity, error)
	UpdateProfile(ctx context.Context, id string, fullName *string, passwordHash *string) (Identity, error)
}

// RevocationStore makes refresh tokens single-use. A nil store keeps the
// stateless behaviour: superseded refresh tokens stay valid until they expire.
type RevocationStore interface {
	Consume(ctx context.Context, jti, userID string, expiresAt time.Time) (bool, error)
}

// Service is the session manager: login, refresh rotation, logout and the
// account flows that hang off an identity (registration, verification,
// password reset).
type Service struct {
	users       IdentityStore
	tokens      *token.Service
	revocations RevocationStore
	mailer      mail.Publisher
	logger      *observability.Logger
}

func NewService(users IdentityStore, tokens *token.Service, mailer mail.Publisher, logger *observability.Logger) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		mailer: mailer,
		logger: logger,
	}
}

func (s *Service) WithRevocations(store RevocationStore) *Service {
	s.revocations = store
	return s
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, apperr.ErrBadCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			burnPasswordCheck(password)
			return Session{}, apperr.ErrBadCredentials
		}
		return Session{}, err
	}

	if !CheckPassword(user.PasswordHash, password) || !user.Active {
		return Session{}, apperr.ErrBadCredentials
	}

	return s.issueSession(user.ID, time.Time{})
}

// Refresh rotates the session behind a refresh token. Every failure other
// than a missing token is reported as InvalidOrExpiredToken; the underlying
// cause is only logged.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (Session, error) {
	rawRefresh = strings.TrimSpace(rawRefresh)
	if rawRefresh == "" {
		return Session{}, apperr.ErrMissingToken
	}

	session, err := s.rotate(ctx, rawRefresh)
	if err != nil {
		s.logger.Warn("refresh_rejected", map[string]any{"error": err.Error()})
		return Session{}, apperr.ErrInvalidOrExpiredToken
	}

	return session, nil
}

func (s *Service) rotate(ctx context.Context, rawRefresh string) (Session, error) {
	presented, err := s.tokens.Verify(rawRefresh, token.Refresh)
	if err != nil {
		return Session{}, err
	}

	user, err := s.users.GetByID(ctx, presented.Subject)
	if err != nil {
		return Session{}, err
	}
	if !user.Active {
		return Session{}, fmt.Errorf("user %s is inactive", user.ID)
	}

	// Issue before consuming so a signing failure leaves the presented
	// token usable.
	session, err := s.issueSession(user.ID, presented.ExpiresAt)
	if err != nil {
		return Session{}, err
	}

	if s.revocations != nil {
		fresh, err := s.revocations.Consume(ctx, presented.ID, user.ID, presented.ExpiresAt)
		if err != nil {
			return Session{}, err
		}
		if !fresh {
			return Session{}, fmt.Errorf("refresh token %s already used", presented.ID)
		}
	}

	return session, nil
}

// Logout never fails. With revocation enabled the presented refresh token is
// spent so it cannot be replayed; otherwise there is no server state to drop.
func (s *Service) Logout(ctx context.Context, rawRefresh string) {
	rawRefresh = strings.TrimSpace(rawRefresh)
	if s.revocations == nil || rawRefresh == "" {
		return
	}

	presented, err := s.tokens.Verify(rawRefresh, token.Refresh)
	if err != nil {
		return
	}
	if _, err := s.revocations.Consume(ctx, presented.ID, presented.Subject, presented.ExpiresAt); err != nil {
		s.logger.Warn("logout_revoke_failed", map[string]any{"error": err.Error()})
	}
}

// Authenticate resolves a bearer access token to an active identity.
func (s *Service) Authenticate(ctx context.Context, rawAccess string) (Identity, error) {
	presented, err := s.tokens.Verify(strings.TrimSpace(rawAccess), token.Access)
	if err != nil {
		return Identity{}, apperr.ErrUnauthenticated
	}

	user, err := s.users.GetByID(ctx, presented.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Identity{}, apperr.ErrUnauthenticated
		}
		return Identity{}, err
	}
	if !user.Active {
		return Identity{}, apperr.ErrUnauthenticated
	}

	return user, nil
}

func (s *Service) Register(ctx context.Context, reg Registration) (Identity, error) {
	email := normalizeEmail(reg.Email)
	if email == "" {
		return Identity{}, apperr.WithDetail(apperr.KindInvalidInput, "EMAIL_REQUIRED")
	}
	if err := validatePassword(reg.Password); err != nil {
		return Identity{}, err
	}

	hash, err := HashPassword(reg.Password)
	if err != nil {
		return Identity{}, err
	}

	user, err := s.users.Create(ctx, email, hash, trimmedOrNil(reg.FullName))
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return Identity{}, apperr.ErrAlreadyExists
		}
		return Identity{}, err
	}

	s.logger.Info("user_registered", map[string]any{"user_id": user.ID})
	return user, nil
}

// RequestVerification queues a verification token. Unknown, inactive and
// already verified accounts are silently ignored.
func (s *Service) RequestVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}
	if !user.Active || user.Verified {
		return nil
	}

	tok, err := s.tokens.IssueBound(user.ID, token.Verify, fingerprint(user.Email))
	if err != nil {
		return err
	}

	return s.mailer.Publish(ctx, mail.Message{
		Kind:      mail.KindVerify,
		Email:     user.Email,
		Token:     tok.Value,
		ExpiresAt: tok.ExpiresAt,
	})
}

func (s *Service) Verify(ctx context.Context, rawToken string) (Identity, error) {
	presented, err := s.tokens.Verify(strings.TrimSpace(rawToken), token.Verify)
	if err != nil {
		return Identity{}, apperr.ErrBadActionToken
	}

	user, err := s.users.GetByID(ctx, presented.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Identity{}, apperr.ErrBadActionToken
		}
		return Identity{}, err
	}
	if !user.Active || presented.Fingerprint != fingerprint(user.Email) {
		return Identity{}, apperr.ErrBadActionToken
	}
	if user.Verified {
		return Identity{}, apperr.ErrAlreadyVerified
	}

	verified, err := s.users.MarkVerified(ctx, user.ID)
	if err != nil {
		return Identity{}, err
	}

	s.logger.Info("user_verified", map[string]any{"user_id": user.ID})
	return verified, nil
}

// ForgotPassword queues a reset token bound to the current password hash, so
// it stops working once the password changes. Unknown emails are ignored.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}
	if !user.Active {
		return nil
	}

	tok, err := s.tokens.IssueBound(user.ID, token.Reset, fingerprint(user.PasswordHash))
	if err != nil {
		return err
	}

	return s.mailer.Publish(ctx, mail.Message{
		Kind:      mail.KindReset,
		Email:     user.Email,
		Token:     tok.Value,
		ExpiresAt: tok.ExpiresAt,
	})
}

func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	presented, err := s.tokens.Verify(strings.TrimSpace(rawToken), token.Reset)
	if err != nil {
		return apperr.ErrBadActionToken
	}

	user, err := s.users.GetByID(ctx, presented.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return apperr.ErrBadActionToken
		}
		return err
	}
	if !user.Active || presented.Fingerprint != fingerprint(user.PasswordHash) {
		return apperr.ErrBadActionToken
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if _, err := s.users.UpdateProfile(ctx, user.ID, nil, &hash); err != nil {
		return err
	}

	s.logger.Info("password_reset", map[string]any{"user_id": user.ID})
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, user Identity, update ProfileUpdate) (Identity, error) {
	var hash *string
	if update.Password != nil {
		if err := validatePassword(*update.Password); err != nil {
			return Identity{}, err
		}
		value, err := HashPassword(*update.Password)
		if err != nil {
			return Identity{}, err
		}
		hash = &value
	}

	return s.users.UpdateProfile(ctx, user.ID, trimmedOrNil(update.FullName), hash)
}

func (s *Service) issueSession(userID string, previousRefreshExpiry time.Time) (Session, error) {
	access, err := s.tokens.Issue(userID, token.Access)
	if err != nil {
		return Session{}, err
	}

	var refresh token.Token
	if previousRefreshExpiry.IsZero() {
		refresh, err = s.tokens.Issue(userID, token.Refresh)
	} else {
		refresh, err = s.tokens.IssueAfter(userID, token.Refresh, previousRefreshExpiry)
	}
	if err != nil {
		return Session{}, err
	}

	return Session{Access: access, Refresh: refresh}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
