package post

import (
	"encoding/json"
	"net/http"
	"strconv"

	"postboard/internal/apperr"
	"postboard/internal/auth"
	"postboard/internal/httpx"
	"postboard/internal/observability"
)

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	skip, err := intParam(query.Get("skip"), 0)
	if err != nil {
		apperr.Write(w, apperr.WithDetail(apperr.KindInvalidInput, "skip must be a non-negative integer"))
		return
	}
	limit, err := intParam(query.Get("limit"), defaultPageSize)
	if err != nil {
		apperr.Write(w, apperr.WithDetail(apperr.KindInvalidInput, "limit must be a non-negative integer"))
		return
	}

	page, err := h.service.List(r.Context(), identity(r), ListQuery{
		Skip:   skip,
		Limit:  limit,
		Search: query.Get("search"),
	})
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to list posts")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	d, err := h.service.Get(r.Context(), identity(r), id)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to get post")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		apperr.Write(w, err)
		return
	}

	p, err := h.service.Create(r.Context(), identity(r), input)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to create post")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, httpx.MaxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var patch Patch
	if err := decoder.Decode(&patch); err != nil {
		apperr.Write(w, apperr.WithDetail(apperr.KindInvalidInput, "invalid json body"))
		return
	}

	p, err := h.service.Update(r.Context(), identity(r), id, patch)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to update post")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), identity(r), id); err != nil {
		httpx.Fail(w, h.logger, err, "failed to delete post")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	status, err := h.service.ToggleLike(r.Context(), identity(r), id)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to toggle like")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]LikeStatus{"status": status})
}

func identity(r *http.Request) *auth.Identity {
	user, ok := auth.IdentityFrom(r.Context())
	if !ok {
		return nil
	}
	return &user
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		apperr.Write(w, apperr.WithDetail(apperr.KindInvalidInput, "invalid post id"))
		return 0, false
	}
	return id, true
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, strconv.ErrSyntax
	}
	return value, nil
}
