package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"postboard/internal/apperr"
	"postboard/internal/auth"
	"postboard/internal/guard"
	"postboard/internal/httpx"
	"postboard/internal/observability"
)

const (
	maxUploadSizeBytes = 50 << 20
)

// Uploader stores an object on behalf of ownerID. Library implements it.
type Uploader interface {
	Upload(ctx context.Context, ownerID, key, contentType string, data []byte) (string, error)
}

type UploadHandler struct {
	uploader Uploader
	logger   *observability.Logger
}

type uploadResponse struct {
	URL    string  `json:"url"`
	FileID *string `json:"file_id"`
	Name   string  `json:"name"`
}

func NewUploadHandler(uploader Uploader, logger *observability.Logger) *UploadHandler {
	return &UploadHandler{uploader: uploader, logger: logger}
}

func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.IdentityFrom(r.Context())
	var identity *auth.Identity
	if ok {
		identity = &user
	}
	if err := guard.Authorize(guard.Request{Identity: identity, Action: guard.Upload}); err != nil {
		apperr.Write(w, err)
		return
	}

	if h.uploader == nil {
		httpx.WriteError(w, http.StatusInternalServerError, "media store is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSizeBytes+(1<<20))
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		apperr.Write(w, apperr.WithDetail(apperr.KindInvalidInput, "invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apperr.Write(w, apperr.WithDetail(apperr.KindInvalidInput, "file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
	if err != nil {
		apperr.Write(w, apperr.WithDetail(apperr.KindInvalidInput, "failed to read file"))
		return
	}
	if len(data) == 0 {
		apperr.Write(w, apperr.WithDetail(apperr.KindInvalidInput, "file is empty"))
		return
	}
	if len(data) > maxUploadSizeBytes {
		apperr.Write(w, apperr.WithDetail(apperr.KindInvalidInput, "file is too large"))
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	key, err := NewKey(contentType, header.Filename)
	if err != nil {
		if errors.Is(err, ErrUnsupportedType) {
			h.logger.Warn("upload_rejected", map[string]any{"content_type": contentType, "user_id": user.ID})
			apperr.Write(w, apperr.WithDetail(apperr.KindInvalidInput, "unsupported file type: "+contentType))
			return
		}
		httpx.Fail(w, h.logger, err, "failed to upload file")
		return
	}

	publicURL, err := h.uploader.Upload(r.Context(), user.ID, key, contentType, data)
	if err != nil {
		observability.CaptureError(h.logger, "media upload failed", err, map[string]any{"key": key})
		httpx.WriteError(w, http.StatusBadGateway, "failed to upload file")
		return
	}

	h.logger.Info("media_uploaded", map[string]any{"user_id": user.ID, "url": publicURL})
	httpx.WriteJSON(w, http.StatusOK, uploadResponse{URL: publicURL, Name: path.Base(key)})
}
