package auth

import (
	"net/http"
	"strings"

	"postboard/internal/apperr"
	"postboard/internal/httpx"
	"postboard/internal/observability"
)

type Handler struct {
	service *Service
	cookies CookieSettings
	logger  *observability.Logger
}

func NewHandler(service *Service, cookies CookieSettings, logger *observability.Logger) *Handler {
	return &Handler{service: service, cookies: cookies, logger: logger}
}

type registerRequest struct {
	Email    string  `json:"email" validate:"required,email,max=320"`
	Password string  `json:"password" validate:"required"`
	FullName *string `json:"full_name" validate:"omitempty,max=100"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyRequest struct {
	Token string `json:"token" validate:"required"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type updateMeRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,max=100"`
	Password *string `json:"password"`
}

// Login accepts an OAuth2-style password form. The email may arrive as
// "email" or as "username".
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, httpx.MaxJSONBodyBytes)
	if err := r.ParseForm(); err != nil {
		apperr.Write(w, apperr.WithDetail(apperr.KindInvalidInput, "invalid form body"))
		return
	}

	email := r.PostFormValue("email")
	if strings.TrimSpace(email) == "" {
		email = r.PostFormValue("username")
	}

	session, err := h.service.Login(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to login")
		return
	}

	h.writeSession(w, session)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Refresh(r.Context(), refreshCookieValue(r))
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to refresh token")
		return
	}

	h.writeSession(w, session)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), refreshCookieValue(r))
	h.cookies.clear(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		apperr.Write(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), Registration{
		Email:    body.Email,
		Password: body.Password,
		FullName: body.FullName,
	})
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to register")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) RequestVerifyToken(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		apperr.Write(w, err)
		return
	}

	if err := h.service.RequestVerification(r.Context(), body.Email); err != nil {
		httpx.Fail(w, h.logger, err, "failed to request verification")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		apperr.Write(w, err)
		return
	}

	user, err := h.service.Verify(r.Context(), body.Token)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to verify")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		apperr.Write(w, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), body.Email); err != nil {
		httpx.Fail(w, h.logger, err, "failed to request password reset")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		apperr.Write(w, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), body.Token, body.Password); err != nil {
		httpx.Fail(w, h.logger, err, "failed to reset password")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// Protected is the example bearer-protected endpoint.
func (h *Handler) Protected(w http.ResponseWriter, r *http.Request) {
	user, ok := IdentityFrom(r.Context())
	if !ok {
		apperr.Write(w, apperr.ErrUnauthenticated)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "This is a protected route",
		"user_id": user.ID,
		"email":   user.Email,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := IdentityFrom(r.Context())
	if !ok {
		apperr.Write(w, apperr.ErrUnauthenticated)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := IdentityFrom(r.Context())
	if !ok {
		apperr.Write(w, apperr.ErrUnauthenticated)
		return
	}

	var body updateMeRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		apperr.Write(w, err)
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), user, ProfileUpdate{
		FullName: body.FullName,
		Password: body.Password,
	})
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to update user")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) writeSession(w http.ResponseWriter, session Session) {
	h.cookies.set(w, session.Refresh.Value)
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, accessResponse{
		AccessToken: session.Access.Value,
		TokenType:   "bearer",
	})
}
