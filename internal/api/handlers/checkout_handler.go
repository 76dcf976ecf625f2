package handlers

import (
	"context"
	"errors"
	"net/http"

	"storefront/internal/checkout"
	"storefront/internal/models"
)

// OrderPlacer is satisfied by *checkout.Service.
type OrderPlacer interface {
	Quote(ctx context.Context, id models.Identity) (*checkout.Quote, error)
	PlaceOrder(ctx context.Context, id models.Identity) (*models.Order, error)
}

type CheckoutHandler struct {
	service OrderPlacer
}

func NewCheckoutHandler(service OrderPlacer) *CheckoutHandler {
	return &CheckoutHandler{service: service}
}

func (h *CheckoutHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.Quote(r.Context(), identityFrom(r))
	if err != nil {
		writeCheckoutError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, q)
}

func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.PlaceOrder(r.Context(), identityFrom(r))
	if err != nil {
		writeCheckoutError(w, err)
		return
	}

	w.Header().Set("Location", "/api/orders/"+order.ID.String())
	writeJSON(w, http.StatusCreated, order)
}

func writeCheckoutError(w http.ResponseWriter, err error) {
	var (
		stockErr   *checkout.InsufficientStockError
		profileErr *checkout.IncompleteProfileError
		inputErr   *checkout.ValidationError
	)

	switch {
	case errors.Is(err, checkout.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", "sign in required", nil)
	case errors.As(err, &profileErr):
		writeError(w, http.StatusUnprocessableEntity, "incomplete_profile",
			"please complete your shipping details before placing an order",
			map[string]any{"missing_fields": profileErr.Missing})
	case errors.As(err, &stockErr):
		writeError(w, http.StatusConflict, "insufficient_stock", stockErr.Error(),
			map[string]any{"lines": stockErr.Shortages})
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, "validation_error", inputErr.Message,
			map[string]any{"field": inputErr.Field})
	case errors.Is(err, checkout.ErrTimeout):
		writeRetryable(w, http.StatusGatewayTimeout, "timeout", "the request took too long, please try again")
	case errors.Is(err, checkout.ErrOrderCreationFailed):
		writeError(w, http.StatusInternalServerError, "order_creation_failed", "the order could not be created, check your orders before trying again", nil)
	case errors.Is(err, context.Canceled):
		writeError(w, 499, "cancelled", "request cancelled", nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "checkout failed", nil)
	}
}
