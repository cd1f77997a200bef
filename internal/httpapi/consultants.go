package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/torim-app/torim/internal/model"
	"github.com/torim-app/torim/internal/storage"
)

type ConsultantHandler struct {
	repo   *storage.ConsultantRepository
	logger *slog.Logger
}

func NewConsultantHandler(repo *storage.ConsultantRepository, logger *slog.Logger) *ConsultantHandler {
	return &ConsultantHandler{repo: repo, logger: logger}
}

type consultantRequest struct {
	FullName    *string  `json:"fullName"`
	Phone       *string  `json:"phone"`
	Specialties []string `json:"specialties"`
	IsActive    *bool    `json:"isActive"`
}

func (h *ConsultantHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list consultants failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to list consultants")
		return
	}
	if items == nil {
		items = []model.Consultant{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ConsultantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req consultantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid json body")
		return
	}
	if req.FullName == nil || strings.TrimSpace(*req.FullName) == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "fullName is required")
		return
	}
	if req.Phone == nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "phone is required")
		return
	}
	phone, err := NormalizePhone(*req.Phone)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid E.164 phone")
		return
	}

	c := &model.Consultant{
		FullName:    strings.TrimSpace(*req.FullName),
		Phone:       phone,
		Specialties: req.Specialties,
		IsActive:    true,
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}

	id, err := h.repo.Create(r.Context(), c)
	if err != nil {
		h.logger.Error("create consultant failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to create consultant")
		return
	}
	created, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("load created consultant failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to load consultant")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ConsultantHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req consultantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid json body")
		return
	}

	existing, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, CodeNotFound, "Consultant not found")
			return
		}
		h.logger.Error("load consultant failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to load consultant")
		return
	}

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			writeError(w, http.StatusBadRequest, CodeValidation, "fullName cannot be empty")
			return
		}
		existing.FullName = name
	}
	if req.Phone != nil {
		phone, err := NormalizePhone(*req.Phone)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, "invalid E.164 phone")
			return
		}
		existing.Phone = phone
	}
	if req.Specialties != nil {
		existing.Specialties = req.Specialties
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	if err := h.repo.Update(r.Context(), &existing); err != nil {
		h.logger.Error("update consultant failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to update consultant")
		return
	}
	updated, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("load updated consultant failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to load consultant")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes a consultant outright when nothing references them;
// a consultant with appointment history is deactivated instead so the
// history keeps resolving.
func (h *ConsultantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	deleted, err := h.repo.Delete(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, CodeNotFound, "Consultant not found")
			return
		}
		h.logger.Error("delete consultant failed", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to delete consultant")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": deleted})
}
