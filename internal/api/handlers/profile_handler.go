package handlers

import (
	"errors"
	"net/http"

	"storefront/internal/models"
	"storefront/internal/repository"
)

type ProfileHandler struct {
	repo repository.ProfileRepository
}

func NewProfileHandler(repo repository.ProfileRepository) *ProfileHandler {
	return &ProfileHandler{repo: repo}
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	profile, err := h.repo.GetByID(r.Context(), identityFrom(r).UserID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "profile not found", nil)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to get profile", nil)
		}
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.ShippingUpdate
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if !validateRequest(w, req) {
		return
	}

	profile, err := h.repo.UpdateShipping(r.Context(), identityFrom(r).UserID, req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "profile not found", nil)
		case errors.Is(err, repository.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to update profile", nil)
		}
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.repo.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get users", nil)
		return
	}

	writeJSON(w, http.StatusOK, profiles)
}
