package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shoplane/commerce-core/internal/application"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.GetCart(r.Context(), principalFromRequest(r))
	if err != nil {
		writeMappedError(r.Context(), w, "get_cart", err)
		return
	}
	writeEntity(w, http.StatusOK, cart, cart.Revision)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var body addCartItemBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "add_cart_item", err)
		return
	}
	req := application.AddCartItemRequest{
		RequestID: requestIDFromContext(r.Context()),
		SKU:       body.SKU,
		Quantity:  body.Quantity,
	}

	cart, err := h.service.AddCartItem(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "add_cart_item", err)
		return
	}
	writeEntity(w, http.StatusOK, cart, cart.Revision)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	rev, err := revisionFromHeader(r)
	if err != nil {
		writeValidationError(r.Context(), w, "update_cart_item", err)
		return
	}
	var body updateCartItemBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "update_cart_item", err)
		return
	}
	req := application.UpdateCartItemRequest{
		RequestID: requestIDFromContext(r.Context()),
		SKU:       chi.URLParam(r, "sku"),
		Quantity:  body.Quantity,
		Revision:  rev,
	}

	cart, err := h.service.UpdateCartItem(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "update_cart_item", err)
		return
	}
	writeEntity(w, http.StatusOK, cart, cart.Revision)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	rev, err := revisionFromHeader(r)
	if err != nil {
		writeValidationError(r.Context(), w, "remove_cart_item", err)
		return
	}
	req := application.RemoveCartItemRequest{
		RequestID: requestIDFromContext(r.Context()),
		SKU:       chi.URLParam(r, "sku"),
		Revision:  rev,
	}
	cart, err := h.service.RemoveCartItem(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "remove_cart_item", err)
		return
	}
	writeEntity(w, http.StatusOK, cart, cart.Revision)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	rev, err := revisionFromHeader(r)
	if err != nil {
		writeValidationError(r.Context(), w, "clear_cart", err)
		return
	}
	req := application.ClearCartRequest{
		RequestID: requestIDFromContext(r.Context()),
		Revision:  rev,
	}
	cart, err := h.service.ClearCart(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "clear_cart", err)
		return
	}
	writeEntity(w, http.StatusOK, cart, cart.Revision)
}
