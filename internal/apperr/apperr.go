// Package apperr defines the client-visible error kinds shared by the auth
// and resource packages. Every kind maps to one HTTP status and one stable
// machine-readable code.
package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Kind int

const (
	KindBadCredentials Kind = iota + 1
	KindUnauthenticated
	KindUnverified
	KindNotOwner
	KindSelfLikeForbidden
	KindMissingToken
	KindInvalidOrExpiredToken
	KindNotFound
	KindInvalidInput
	KindAlreadyExists
	KindBadActionToken
	KindAlreadyVerified
	KindConflict
)

var kinds = map[Kind]struct {
	status int
	code   string
}{
	KindBadCredentials:        {http.StatusBadRequest, "LOGIN_BAD_CREDENTIALS"},
	KindUnauthenticated:       {http.StatusUnauthorized, "UNAUTHENTICATED"},
	KindUnverified:            {http.StatusForbidden, "USER_NOT_VERIFIED"},
	KindNotOwner:              {http.StatusForbidden, "NOT_OWNER"},
	KindSelfLikeForbidden:     {http.StatusBadRequest, "SELF_LIKE_FORBIDDEN"},
	KindMissingToken:          {http.StatusUnauthorized, "REFRESH_TOKEN_MISSING"},
	KindInvalidOrExpiredToken: {http.StatusUnauthorized, "REFRESH_TOKEN_INVALID"},
	KindNotFound:              {http.StatusNotFound, "NOT_FOUND"},
	KindInvalidInput:          {http.StatusBadRequest, "INVALID_INPUT"},
	KindAlreadyExists:         {http.StatusBadRequest, "REGISTER_USER_ALREADY_EXISTS"},
	KindBadActionToken:        {http.StatusBadRequest, "BAD_TOKEN"},
	KindAlreadyVerified:       {http.StatusBadRequest, "VERIFY_USER_ALREADY_VERIFIED"},
	KindConflict:              {http.StatusConflict, "CONFLICT"},
}

func (k Kind) Status() int {
	if v, ok := kinds[k]; ok {
		return v.status
	}
	return http.StatusInternalServerError
}

func (k Kind) Code() string {
	if v, ok := kinds[k]; ok {
		return v.code
	}
	return "INTERNAL_ERROR"
}

// Error is a client-visible failure. Detail, when set, replaces the kind's
// default code in the response body.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Kind.Code() + ": " + e.Detail
	}
	return e.Kind.Code()
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.New(k))
// works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

func WithDetail(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

var (
	ErrBadCredentials        = New(KindBadCredentials)
	ErrUnauthenticated       = New(KindUnauthenticated)
	ErrUnverified            = New(KindUnverified)
	ErrNotOwner              = New(KindNotOwner)
	ErrSelfLikeForbidden     = New(KindSelfLikeForbidden)
	ErrMissingToken          = New(KindMissingToken)
	ErrInvalidOrExpiredToken = New(KindInvalidOrExpiredToken)
	ErrNotFound              = New(KindNotFound)
	ErrAlreadyExists         = New(KindAlreadyExists)
	ErrBadActionToken        = New(KindBadActionToken)
	ErrAlreadyVerified       = New(KindAlreadyVerified)
	ErrConflict              = New(KindConflict)
)

// KindOf returns the kind carried by err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return 0
}

// Write renders err if it is an *Error and reports whether it did. Callers
// handle the false case as an internal failure.
func Write(w http.ResponseWriter, err error) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return false
	}

	message := appErr.Kind.Code()
	if appErr.Detail != "" {
		message = appErr.Detail
	}

	if appErr.Kind == KindUnauthenticated {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Kind.Status())
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
	return true
}
