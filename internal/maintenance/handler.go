package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"outreach-auth/internal/observability"
)

// SessionPurger deletes session rows whose expiry is before the cutoff.
type SessionPurger interface {
	DeleteExpiredSessions(ctx context.Context, before time.Time, batchSize int) (int64, error)
}

type CleanupHandler struct {
	purger     SessionPurger
	logger     *observability.Logger
	cronSecret string
	batchSize  int
	now        func() time.Time
}

func NewCleanupHandler(purger SessionPurger, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &CleanupHandler{
		purger:     purger,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
		now:        time.Now,
	}
}

type cleanupResult struct {
	DeletedSessions int64 `json:"deletedSessions"`
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	deleted, err := h.purger.DeleteExpiredSessions(r.Context(), h.now().UTC(), h.batchSize)
	if err != nil {
		observability.CaptureError(err)
		h.logger.Error("session_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("session_cleanup_completed", map[string]any{"deleted_sessions": deleted})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": cleanupResult{DeletedSessions: deleted},
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
