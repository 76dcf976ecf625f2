package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/models"
	"storefront/internal/repository"
	"storefront/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	homeCategoryLimit = 4
	homeProductLimit  = 8
)

type ProductHandler struct {
	repo       repository.ProductRepository
	categories repository.CategoryRepository
	movements  repository.StockMovementRepository
	uploader   ImageUploader
}

func NewProductHandler(repo repository.ProductRepository, categories repository.CategoryRepository, movements repository.StockMovementRepository, uploader ImageUploader) *ProductHandler {
	return &ProductHandler{repo: repo, categories: categories, movements: movements, uploader: uploader}
}

type ProductRequest struct {
	Name          string           `json:"name" validate:"required,max=200"`
	Description   string           `json:"description" validate:"max=5000"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price"`
	Stock         int              `json:"stock" validate:"gte=0"`
	CategoryID    *uuid.UUID       `json:"category_id" validate:"required"`
	IsActive      *bool            `json:"is_active"`
	Images        []string         `json:"images" validate:"omitempty,dive,url"`
}

type StockRequest struct {
	Change int `json:"change" validate:"required"`
}

func parseFilter(r *http.Request) (models.ProductFilter, error) {
	q := r.URL.Query()
	filter := models.ProductFilter{
		Sort:       models.ProductSort(q.Get("sort")),
		ActiveOnly: true,
	}
	if c := q.Get("category"); c != "" {
		id, err := uuid.Parse(c)
		if err != nil {
			return filter, err
		}
		filter.CategoryID = &id
	}
	return filter, nil
}

// List is the public catalog: active products only.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid category id", nil)
		return
	}

	products, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get products", nil)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "product")
	if !ok {
		return
	}

	product, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "product not found", nil)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to get product", nil)
		}
		return
	}
	if !product.IsActive {
		writeError(w, http.StatusNotFound, "not_found", "product not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, product)
}

type homePage struct {
	Categories []models.Category `json:"categories"`
	Featured   []models.Product  `json:"featured"`
}

func (h *ProductHandler) Home(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get categories", nil)
		return
	}
	if len(categories) > homeCategoryLimit {
		categories = categories[:homeCategoryLimit]
	}
	products, err := h.repo.List(r.Context(), models.ProductFilter{
		Sort:       models.SortNewest,
		ActiveOnly: true,
		Limit:      homeProductLimit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get products", nil)
		return
	}

	writeJSON(w, http.StatusOK, homePage{Categories: categories, Featured: products})
}

// AdminList includes inactive products.
func (h *ProductHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid category id", nil)
		return
	}
	filter.ActiveOnly = false

	products, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get products", nil)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

// readProduct accepts JSON or a multipart form whose "files" are uploaded to
// the product image bucket and appended to images.
func (h *ProductHandler) readProduct(w http.ResponseWriter, r *http.Request) (*ProductRequest, *uploads, bool) {
	var req ProductRequest

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart form", nil)
			return nil, nil, false
		}
		if err := productFromForm(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
			return nil, nil, false
		}
	} else if ok := decodeJSON(w, r, &req); !ok {
		return nil, nil, false
	}

	if !validateRequest(w, req) {
		return nil, nil, false
	}

	var stored *uploads
	if isMultipart(r) {
		urls, up, err := uploadFiles(r.Context(), h.uploader, storage.BucketProductImages, r.MultipartForm.File["files"])
		if err != nil {
			writeUploadError(w, err)
			return nil, nil, false
		}
		req.Images = append(req.Images, urls...)
		stored = up
	}
	return &req, stored, true
}

func productFromForm(r *http.Request, req *ProductRequest) error {
	form := r.MultipartForm.Value
	get := func(k string) string {
		if v := form[k]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	req.Name = get("name")
	req.Description = get("description")
	req.Images = form["images"]

	var err error
	if v := get("price"); v != "" {
		if req.Price, err = decimal.NewFromString(v); err != nil {
			return errors.New("price must be a number")
		}
	}
	if v := get("discount_price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return errors.New("discount_price must be a number")
		}
		req.DiscountPrice = &d
	}
	if v := get("stock"); v != "" {
		if req.Stock, err = strconv.Atoi(v); err != nil {
			return errors.New("stock must be an integer")
		}
	}
	if v := get("category_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return errors.New("category_id must be a uuid")
		}
		req.CategoryID = &id
	}
	if v := get("is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("is_active must be a boolean")
		}
		req.IsActive = &b
	}
	return nil
}

func (req *ProductRequest) apply(p *models.Product) {
	p.Name = strings.TrimSpace(req.Name)
	p.Description = req.Description
	p.Price = req.Price
	p.DiscountPrice = req.DiscountPrice
	p.Stock = req.Stock
	p.CategoryID = req.CategoryID
	p.IsActive = true
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	p.Images = req.Images
}

func writeProductError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "product not found", nil)
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, repository.ErrNotEnough):
		writeError(w, http.StatusConflict, "insufficient_stock", err.Error(), nil)
	case errors.Is(err, repository.ErrInUse):
		writeError(w, http.StatusConflict, "in_use", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to "+action+" product", nil)
	}
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, stored, ok := h.readProduct(w, r)
	if !ok {
		return
	}

	var p models.Product
	req.apply(&p)

	if err := h.repo.Create(r.Context(), &p); err != nil {
		stored.discard(r.Context())
		writeProductError(w, err, "create")
		return
	}

	w.Header().Set("Location", "/api/products/"+p.ID.String())
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "product")
	if !ok {
		return
	}

	req, stored, ok := h.readProduct(w, r)
	if !ok {
		return
	}

	p := models.Product{ID: id}
	req.apply(&p)

	if err := h.repo.Update(r.Context(), &p); err != nil {
		stored.discard(r.Context())
		writeProductError(w, err, "update")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "product")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeProductError(w, err, "delete")
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

func (h *ProductHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "product")
	if !ok {
		return
	}

	var req StockRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if !validateRequest(w, req) {
		return
	}

	stock, err := h.repo.AdjustStock(r.Context(), id, req.Change)
	if err != nil {
		writeProductError(w, err, "adjust stock of")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "stock": stock})
}

func (h *ProductHandler) Movements(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "product")
	if !ok {
		return
	}

	movements, err := h.movements.ListByProduct(r.Context(), id)
	if err != nil {
		writeProductError(w, err, "list movements of")
		return
	}

	writeJSON(w, http.StatusOK, movements)
}
