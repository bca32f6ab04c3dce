package auth

import (
	"context"
	"net/http"
	"strings"

	"postboard/internal/apperr"
	"postboard/internal/httpx"
	"postboard/internal/observability"
)

type Authenticator interface {
	Authenticate(ctx context.Context, rawAccess string) (Identity, error)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, user Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, user)
}

// IdentityFrom returns the identity attached by Middleware or
// OptionalMiddleware, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	user, ok := ctx.Value(identityKey{}).(Identity)
	return user, ok
}

// Middleware rejects requests without a valid bearer access token that
// resolves to an active identity.
func Middleware(authn Authenticator, logger *observability.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			apperr.Write(w, apperr.ErrUnauthenticated)
			return
		}

		user, err := authn.Authenticate(r.Context(), raw)
		if err != nil {
			httpx.Fail(w, logger, err, "failed to authenticate")
			return
		}

		observability.SetUserID(r.Context(), user.ID)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user)))
	})
}

// OptionalMiddleware attaches the identity when a valid bearer token is
// present and otherwise lets the request through anonymously. Public read
// endpoints use it to personalise responses.
func OptionalMiddleware(authn Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if ok {
			if user, err := authn.Authenticate(r.Context(), raw); err == nil {
				observability.SetUserID(r.Context(), user.ID)
				r = r.WithContext(WithIdentity(r.Context(), user))
			}
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	tokenStr := strings.TrimSpace(parts[1])
	if tokenStr == "" {
		return "", false
	}

	return tokenStr, true
}
