package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shoplane/commerce-core/internal/application"
)

func (h *Handler) validateCheckout(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.ValidateCheckout(r.Context(), principalFromRequest(r))
	if err != nil {
		writeMappedError(r.Context(), w, "validate_checkout", err)
		return
	}
	writeEntity(w, http.StatusOK, cart, cart.Revision)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	req := application.PlaceOrderRequest{
		RequestID: requestIDFromContext(r.Context()),
	}
	// If-Match is optional here; when present it pins the cart state the
	// caller checked out against.
	if rev, err := revisionFromHeader(r); err == nil {
		req.CartRevision = rev
	}

	order, err := h.service.PlaceOrder(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "place_order", err)
		return
	}
	writeEntity(w, http.StatusCreated, order, order.Revision)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	items, next, err := h.service.ListOrders(r.Context(), principalFromRequest(r), application.ListOrdersRequest{
		PageToken: r.URL.Query().Get("page_token"),
		Limit:     parseIntDefault(r.URL.Query().Get("limit"), 0),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "list_orders", err)
		return
	}
	writePage(w, items, next)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), principalFromRequest(r), chi.URLParam(r, "order_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "get_order", err)
		return
	}
	writeEntity(w, http.StatusOK, order, order.Revision)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	rev, err := revisionFromHeader(r)
	if err != nil {
		writeValidationError(r.Context(), w, "cancel_order", err)
		return
	}
	req := application.CancelOrderRequest{
		RequestID: requestIDFromContext(r.Context()),
		OrderID:   chi.URLParam(r, "order_id"),
		Revision:  rev,
	}
	order, err := h.service.CancelOrder(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "cancel_order", err)
		return
	}
	writeEntity(w, http.StatusOK, order, order.Revision)
}

func (h *Handler) requestReturn(w http.ResponseWriter, r *http.Request) {
	var body requestReturnBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "request_return", err)
		return
	}
	req := application.RequestReturnRequest{
		RequestID: requestIDFromContext(r.Context()),
		OrderID:   chi.URLParam(r, "order_id"),
		Reason:    body.Reason,
	}

	ret, err := h.service.RequestReturn(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "request_return", err)
		return
	}
	writeEntity(w, http.StatusCreated, ret, ret.Revision)
}
