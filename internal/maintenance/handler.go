package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/smitius/flea-market/internal/auth"
	"github.com/smitius/flea-market/internal/observability"
)

// Sweeper is the slice of the authentication gate the cleanup endpoint
// drives.
type Sweeper interface {
	Sweep(ctx context.Context) (auth.SweepResult, error)
}

// CleanupHandler exposes the sweep to an external scheduler, guarded by
// a shared bearer secret. Without a configured secret the endpoint
// plays dead.
type CleanupHandler struct {
	sweeper    Sweeper
	logger     *observability.Logger
	cronSecret string
}

func NewCleanupHandler(sweeper Sweeper, logger *observability.Logger, cronSecret string) *CleanupHandler {
	return &CleanupHandler{
		sweeper:    sweeper,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.logger.Error("sweep_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("sweep_completed", map[string]any{
		"expired_sessions": result.ExpiredSessions,
		"purged_attempts":  result.PurgedAttempts,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
