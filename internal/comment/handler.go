package comment

import (
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

type contentRequest struct {
	Content string `json:"content" validate:"required"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(w, r)
	if !ok {
		return
	}

	comments, err := h.service.List(r.Context(), postID)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to list comments")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, comments)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(w, r)
	if !ok {
		return
	}

	var body contentRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		apperr.Write(w, err)
		return
	}

	c, err := h.service.Create(r.Context(), identity(r), postID, body.Content)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to create comment")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body contentRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		apperr.Write(w, err)
		return
	}

	c, err := h.service.Update(r.Context(), identity(r), id, body.Content)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to update comment")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), identity(r), id); err != nil {
		httpx.Fail(w, h.logger, err, "failed to delete comment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
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
		apperr.Write(w, apperr.WithDetail(apperr.KindInvalidInput, "invalid id"))
		return 0, false
	}
	return id, true
}
