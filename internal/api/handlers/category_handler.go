package handlers

import (
	"errors"
	"net/http"
	"strings"

	"storefront/internal/models"
	"storefront/internal/repository"
	"storefront/internal/storage"
)

type CategoryHandler struct {
	repo     repository.CategoryRepository
	uploader ImageUploader
}

func NewCategoryHandler(repo repository.CategoryRepository, uploader ImageUploader) *CategoryHandler {
	return &CategoryHandler{repo: repo, uploader: uploader}
}

type CategoryRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=1000"`
	ImageURL    string `json:"image_url" validate:"omitempty,url"`
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.repo.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get categories", nil)
		return
	}

	writeJSON(w, http.StatusOK, categories)
}

// readCategory accepts JSON or a multipart form with an optional "file"
// stored in the category image bucket.
func (h *CategoryHandler) readCategory(w http.ResponseWriter, r *http.Request) (*CategoryRequest, *uploads, bool) {
	var req CategoryRequest

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart form", nil)
			return nil, nil, false
		}
		req.Name = strings.TrimSpace(r.FormValue("name"))
		req.Description = r.FormValue("description")
		req.ImageURL = r.FormValue("image_url")
	} else if ok := decodeJSON(w, r, &req); !ok {
		return nil, nil, false
	}

	if !validateRequest(w, req) {
		return nil, nil, false
	}

	var stored *uploads
	if isMultipart(r) {
		urls, up, err := uploadFiles(r.Context(), h.uploader, storage.BucketCategoryImages, r.MultipartForm.File["file"])
		if err != nil {
			writeUploadError(w, err)
			return nil, nil, false
		}
		if len(urls) > 0 {
			req.ImageURL = urls[0]
		}
		stored = up
	}
	return &req, stored, true
}

func writeCategoryError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "category not found", nil)
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, repository.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to "+action+" category", nil)
	}
}

func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, stored, ok := h.readCategory(w, r)
	if !ok {
		return
	}

	c := models.Category{Name: strings.TrimSpace(req.Name), Description: req.Description, ImageURL: req.ImageURL}
	if err := h.repo.Create(r.Context(), &c); err != nil {
		stored.discard(r.Context())
		writeCategoryError(w, err, "create")
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "category")
	if !ok {
		return
	}

	req, stored, ok := h.readCategory(w, r)
	if !ok {
		return
	}

	c := models.Category{ID: id, Name: strings.TrimSpace(req.Name), Description: req.Description, ImageURL: req.ImageURL}
	if err := h.repo.Update(r.Context(), &c); err != nil {
		stored.discard(r.Context())
		writeCategoryError(w, err, "update")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "category")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeCategoryError(w, err, "delete")
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}
