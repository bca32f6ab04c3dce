package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postboard/internal/observability"
)

func newTestHandler(f *fixture, secure bool) *Handler {
	return NewHandler(f.service, CookieSettings{Secure: secure, MaxAge: 7 * 24 * time.Hour}, observability.NewLoggerTo(f.logs))
}

func loginRequest(email, password string) *http.Request {
	form := url.Values{"username": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == RefreshCookieName {
			return c
		}
	}
	t.Fatalf("response has no %s cookie", RefreshCookieName)
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandlerLogin_SetsRefreshCookie(t *testing.T) {
	for _, secure := range []bool{false, true} {
		f := newFixture(t)
		f.store.put(t, "ann@example.com", "correct-horse", nil)
		h := newTestHandler(f, secure)

		rec := httptest.NewRecorder()
		h.Login(rec, loginRequest("ann@example.com", "correct-horse"))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "bearer", body["token_type"])
		assert.NotEmpty(t, body["access_token"])
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		cookie := refreshCookie(t, rec)
		assert.NotEmpty(t, cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
		assert.Equal(t, 604800, cookie.MaxAge)
		assert.Equal(t, "/", cookie.Path)
		assert.Equal(t, secure, cookie.Secure)
	}
}

func TestHandlerLogin_BadCredentials(t *testing.T) {
	f := newFixture(t)
	f.store.put(t, "ann@example.com", "correct-horse", nil)
	h := newTestHandler(f, false)

	wrong := httptest.NewRecorder()
	h.Login(wrong, loginRequest("ann@example.com", "nope-nope-nope"))
	unknown := httptest.NewRecorder()
	h.Login(unknown, loginRequest("nobody@example.com", "correct-horse"))

	for _, rec := range []*httptest.ResponseRecorder{wrong, unknown} {
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "LOGIN_BAD_CREDENTIALS", decodeBody(t, rec)["error"])
		assert.Empty(t, rec.Result().Cookies())
	}
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestHandlerRefresh(t *testing.T) {
	f := newFixture(t)
	f.store.put(t, "ann@example.com", "correct-horse", nil)
	h := newTestHandler(f, false)

	login := httptest.NewRecorder()
	h.Login(login, loginRequest("ann@example.com", "correct-horse"))
	first := refreshCookie(t, login)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: first.Value})
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	rotated := refreshCookie(t, rec)
	assert.NotEqual(t, first.Value, rotated.Value)
	assert.Equal(t, 604800, rotated.MaxAge)
	assert.NotEqual(t, decodeBody(t, login)["access_token"], decodeBody(t, rec)["access_token"])
}

func TestHandlerRefresh_Errors(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(f, false)

	missing := httptest.NewRecorder()
	h.Refresh(missing, httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))
	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.Equal(t, "REFRESH_TOKEN_MISSING", decodeBody(t, missing)["error"])

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "garbage"})
	invalid := httptest.NewRecorder()
	h.Refresh(invalid, req)
	assert.Equal(t, http.StatusUnauthorized, invalid.Code)
	assert.Equal(t, "REFRESH_TOKEN_INVALID", decodeBody(t, invalid)["error"])
}

func TestHandlerLogout_ClearsCookieEveryTime(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(f, true)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.Logout(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Successfully logged out", decodeBody(t, rec)["message"])

		cookie := refreshCookie(t, rec)
		assert.Empty(t, cookie.Value)
		assert.Less(t, cookie.MaxAge, 0)
		assert.True(t, cookie.HttpOnly)
		assert.True(t, cookie.Secure)
	}
}

func TestHandlerRegister(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(f, false)

	body := `{"email":"ann@example.com","password":"correct-horse"}`
	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	assert.Equal(t, "ann@example.com", created["email"])
	assert.NotContains(t, created, "password_hash")
	assert.Equal(t, false, created["is_verified"])

	dup := httptest.NewRecorder()
	h.Register(dup, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, dup.Code)
	assert.Equal(t, "REGISTER_USER_ALREADY_EXISTS", decodeBody(t, dup)["error"])

	invalid := httptest.NewRecorder()
	h.Register(invalid, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"nope","password":"correct-horse"}`)))
	assert.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestHandlerProtectedAndMe(t *testing.T) {
	f := newFixture(t)
	user := f.store.put(t, "ann@example.com", "correct-horse", nil)
	h := newTestHandler(f, false)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req = req.WithContext(WithIdentity(req.Context(), user))
	rec := httptest.NewRecorder()
	h.Protected(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "This is a protected route", body["message"])
	assert.Equal(t, user.ID, body["user_id"])
	assert.Equal(t, user.Email, body["email"])

	anon := httptest.NewRecorder()
	h.Me(anon, httptest.NewRequest(http.MethodGet, "/users/me", nil))
	assert.Equal(t, http.StatusUnauthorized, anon.Code)
}
