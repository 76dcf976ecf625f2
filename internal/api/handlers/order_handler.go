package handlers

import (
	"context"
	"errors"
	"net/http"

	"storefront/internal/models"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// StockInvalidator is satisfied by *cache.CachedProductRepository.
type StockInvalidator interface {
	Invalidate(ctx context.Context, ids ...uuid.UUID)
}

type OrderHandler struct {
	repo        repository.OrderRepository
	movements   repository.StockMovementRepository
	invalidator StockInvalidator
}

func NewOrderHandler(repo repository.OrderRepository, movements repository.StockMovementRepository, invalidator StockInvalidator) *OrderHandler {
	return &OrderHandler{repo: repo, movements: movements, invalidator: invalidator}
}

type StatusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required"`
}

func writeOrderError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "order not found", nil)
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, repository.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to "+action, nil)
	}
}

// ListMine returns the caller's orders, newest first.
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.ListByUser(r.Context(), identityFrom(r).UserID)
	if err != nil {
		writeOrderError(w, err, "get orders")
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

// GetMine answers 404 for orders of other users so their ids are not
// disclosed.
func (h *OrderHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "order")
	if !ok {
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeOrderError(w, err, "get order")
		return
	}
	if order.UserID != identityFrom(r).UserID {
		writeError(w, http.StatusNotFound, "not_found", "order not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.ListAll(r.Context())
	if err != nil {
		writeOrderError(w, err, "get orders")
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "order")
	if !ok {
		return
	}

	var req StatusRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if !validateRequest(w, req) {
		return
	}

	order, err := h.repo.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		writeOrderError(w, err, "update order status")
		return
	}

	if order.Status == models.OrderStatusCancelled && h.invalidator != nil {
		h.invalidator.Invalidate(r.Context(), repository.RestockedProducts(order)...)
	}

	writeJSON(w, http.StatusOK, order)
}

// Movements lists the stock movements an order caused: the deduction at
// placement and the restock if it was cancelled.
func (h *OrderHandler) Movements(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "order")
	if !ok {
		return
	}

	movements, err := h.movements.ListByOrder(r.Context(), id)
	if err != nil {
		writeOrderError(w, err, "list movements of order")
		return
	}

	writeJSON(w, http.StatusOK, movements)
}
