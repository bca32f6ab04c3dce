package maintenance

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"postboard/internal/httpx"
	"postboard/internal/observability"
)

// Purger drops revoked refresh-token rows whose tokens have long expired.
type Purger interface {
	PurgeExpired(ctx context.Context, retention time.Duration, batchSize int) (int64, error)
}

// CleanupHandler is meant for a scheduled job authenticated with a shared
// bearer secret. Without a configured secret the endpoint does not exist.
type CleanupHandler struct {
	purger     Purger
	logger     *observability.Logger
	cronSecret string
	retention  time.Duration
	batchSize  int
}

func NewCleanupHandler(purger Purger, logger *observability.Logger, cronSecret string, retention time.Duration, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		purger:     purger,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		retention:  retention,
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		httpx.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(h.cronSecret)) != 1 {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	deleted, err := h.purger.PurgeExpired(r.Context(), h.retention, h.batchSize)
	if err != nil {
		observability.CaptureError(h.logger, "revocation_cleanup_failed", err, nil)
		httpx.WriteError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	h.logger.Info("revocation_cleanup_completed", map[string]any{"deleted_revoked_tokens": deleted})

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": map[string]int64{"deleted_revoked_tokens": deleted},
	})
}
