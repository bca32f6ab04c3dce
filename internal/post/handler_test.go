package post

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postboard/internal/auth"
	"postboard/internal/observability"
)

func newTestMux(env *testEnv) *http.ServeMux {
	h := NewHandler(env.service, observability.NewLoggerTo(env.logs))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /posts", h.List)
	mux.HandleFunc("POST /posts", h.Create)
	mux.HandleFunc("GET /posts/{id}", h.Get)
	mux.HandleFunc("PATCH /posts/{id}", h.Update)
	mux.HandleFunc("DELETE /posts/{id}", h.Delete)
	mux.HandleFunc("POST /posts/{id}/like", h.ToggleLike)
	return mux
}

func do(mux http.Handler, method, target, body string, user *auth.Identity) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if user != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *user))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandler_PostLifecycle(t *testing.T) {
	env := newTestEnv()
	mux := newTestMux(env)

	created := do(mux, http.MethodPost, "/posts", `{"title":"Hi","content":"there"}`, owner)
	require.Equal(t, http.StatusCreated, created.Code)
	var p Post
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &p))
	assert.Equal(t, "Hi", p.Title)

	list := do(mux, http.MethodGet, "/posts?skip=0&limit=5", "", nil)
	require.Equal(t, http.StatusOK, list.Code)
	var page Page
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &page))
	assert.Equal(t, int64(1), page.Total)

	like := do(mux, http.MethodPost, "/posts/1/like", "", reader)
	require.Equal(t, http.StatusOK, like.Code)
	assert.JSONEq(t, `{"status":"liked"}`, like.Body.String())

	unlike := do(mux, http.MethodPost, "/posts/1/like", "", reader)
	assert.JSONEq(t, `{"status":"unliked"}`, unlike.Body.String())

	self := do(mux, http.MethodPost, "/posts/1/like", "", owner)
	assert.Equal(t, http.StatusBadRequest, self.Code)
	assert.JSONEq(t, `{"error":"SELF_LIKE_FORBIDDEN"}`, self.Body.String())

	forbidden := do(mux, http.MethodPatch, "/posts/1", `{"title":"mine"}`, reader)
	assert.Equal(t, http.StatusForbidden, forbidden.Code)
	assert.JSONEq(t, `{"error":"NOT_OWNER"}`, forbidden.Body.String())

	patched := do(mux, http.MethodPatch, "/posts/1", `{"content":null}`, owner)
	require.Equal(t, http.StatusOK, patched.Code)
	assert.Contains(t, patched.Body.String(), `"content":null`)

	detail := do(mux, http.MethodGet, "/posts/1", "", nil)
	require.Equal(t, http.StatusOK, detail.Code)
	assert.Contains(t, detail.Body.String(), `"comments":[]`)

	deleted := do(mux, http.MethodDelete, "/posts/1", "", owner)
	assert.Equal(t, http.StatusNoContent, deleted.Code)

	missing := do(mux, http.MethodGet, "/posts/1", "", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestHandler_BadInput(t *testing.T) {
	env := newTestEnv()
	mux := newTestMux(env)

	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/posts/abc", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/posts?limit=-1", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodPost, "/posts", `{"title":"x","extra":1}`, owner).Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodPatch, "/posts/1", `{"title":5}`, owner).Code)

	unverified := do(mux, http.MethodPost, "/posts", `{"title":"x"}`, newcomer)
	assert.Equal(t, http.StatusForbidden, unverified.Code)
	assert.JSONEq(t, `{"error":"USER_NOT_VERIFIED"}`, unverified.Body.String())
}
