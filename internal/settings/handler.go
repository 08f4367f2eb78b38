package settings

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
)

const maxJSONBodyBytes = 1 << 20

type Getter interface {
	Get(ctx context.Context) (Settings, error)
	Update(ctx context.Context, input SettingsInput) (Settings, error)
}

type Handler struct {
	repo Getter
}

func NewHandler(repo Getter) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.Get(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input SettingsInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	input.SiteName = strings.TrimSpace(input.SiteName)
	input.WelcomeMessage = strings.TrimSpace(input.WelcomeMessage)
	input.GeneralInfo = strings.TrimSpace(input.GeneralInfo)
	input.ContactInfo = strings.TrimSpace(input.ContactInfo)

	if input.SiteName == "" || utf8.RuneCountInString(input.SiteName) > 100 {
		writeError(w, http.StatusBadRequest, "site_name is invalid")
		return
	}
	if utf8.RuneCountInString(input.WelcomeMessage) > 200 {
		writeError(w, http.StatusBadRequest, "welcome_message is invalid")
		return
	}
	if utf8.RuneCountInString(input.GeneralInfo) > 5000 || utf8.RuneCountInString(input.ContactInfo) > 5000 {
		writeError(w, http.StatusBadRequest, "info text is too long")
		return
	}

	s, err := h.repo.Update(r.Context(), input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	writeJSON(w, http.StatusOK, s)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
