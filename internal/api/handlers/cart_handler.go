package handlers

import (
	"errors"
	"net/http"

	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CartHandler struct {
	repo repository.CartRepository
}

func NewCartHandler(repo repository.CartRepository) *CartHandler {
	return &CartHandler{repo: repo}
}

type CartAddRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0,lte=100"`
}

type CartUpdateRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0,lte=100"`
}

type cartView struct {
	Lines []models.CartLine `json:"lines"`
	Total decimal.Decimal   `json:"total"`
}

func writeCartError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "cart line or product not found", nil)
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, repository.ErrNotEnough):
		writeError(w, http.StatusConflict, "insufficient_stock", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to "+action, nil)
	}
}

func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	lines, err := h.repo.ListByUser(r.Context(), identityFrom(r).UserID)
	if err != nil {
		writeCartError(w, err, "get cart")
		return
	}

	writeJSON(w, http.StatusOK, cartView{Lines: lines, Total: checkout.CartTotal(lines)})
}

func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req CartAddRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if !validateRequest(w, req) {
		return
	}

	line, err := h.repo.Add(r.Context(), identityFrom(r).UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeCartError(w, err, "add to cart")
		return
	}

	writeJSON(w, http.StatusCreated, line)
}

func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	lineID, ok := urlUUID(w, r, "lineID", "cart line")
	if !ok {
		return
	}

	var req CartUpdateRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if !validateRequest(w, req) {
		return
	}

	line, err := h.repo.UpdateQuantity(r.Context(), identityFrom(r).UserID, lineID, req.Quantity)
	if err != nil {
		writeCartError(w, err, "update cart")
		return
	}

	writeJSON(w, http.StatusOK, line)
}

func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	lineID, ok := urlUUID(w, r, "lineID", "cart line")
	if !ok {
		return
	}

	if err := h.repo.Remove(r.Context(), identityFrom(r).UserID, lineID); err != nil {
		writeCartError(w, err, "remove cart line")
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}
