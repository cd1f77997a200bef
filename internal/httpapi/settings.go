package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/torim-app/torim/internal/settings"
)

type SettingsHandler struct {
	cache  *settings.Cache
	logger *slog.Logger
}

func NewSettingsHandler(cache *settings.Cache, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{cache: cache, logger: logger}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Get(r.Context()))
}

func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var body settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid json body")
		return
	}
	saved, err := h.cache.Put(r.Context(), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
