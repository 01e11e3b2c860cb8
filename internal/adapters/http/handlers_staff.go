package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shoplane/commerce-core/internal/application"
	"github.com/shoplane/commerce-core/internal/domain"
)

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var body recordPaymentBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "record_payment", err)
		return
	}
	req := application.RecordPaymentRequest{
		RequestID:   requestIDFromContext(r.Context()),
		OrderID:     body.OrderID,
		UserID:      body.UserID,
		AmountCents: body.AmountCents,
		Reference:   body.Reference,
		Succeeded:   body.Succeeded,
	}

	payment, err := h.service.RecordPayment(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "record_payment", err)
		return
	}
	writeEntity(w, http.StatusCreated, payment, payment.Revision)
}

func (h *Handler) issueRefund(w http.ResponseWriter, r *http.Request) {
	rev, err := revisionFromHeader(r)
	if err != nil {
		writeValidationError(r.Context(), w, "issue_refund", err)
		return
	}
	req := application.IssueRefundRequest{
		RequestID: requestIDFromContext(r.Context()),
		PaymentID: chi.URLParam(r, "payment_id"),
		Revision:  rev,
	}
	payment, err := h.service.IssueRefund(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "issue_refund", err)
		return
	}
	writeEntity(w, http.StatusOK, payment, payment.Revision)
}

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	var body createShipmentBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "create_shipment", err)
		return
	}
	req := application.CreateShipmentRequest{
		RequestID: requestIDFromContext(r.Context()),
		OrderID:   body.OrderID,
		Carrier:   body.Carrier,
		Tracking:  body.Tracking,
	}

	shipment, err := h.service.CreateShipment(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_shipment", err)
		return
	}
	writeEntity(w, http.StatusCreated, shipment, shipment.Revision)
}

func (h *Handler) updateShipment(w http.ResponseWriter, r *http.Request) {
	rev, err := revisionFromHeader(r)
	if err != nil {
		writeValidationError(r.Context(), w, "update_shipment", err)
		return
	}
	var body updateShipmentBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "update_shipment", err)
		return
	}
	req := application.UpdateShipmentRequest{
		RequestID:  requestIDFromContext(r.Context()),
		ShipmentID: chi.URLParam(r, "shipment_id"),
		Revision:   rev,
		Status:     body.Status,
		Tracking:   body.Tracking,
	}

	shipment, err := h.service.UpdateShipment(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "update_shipment", err)
		return
	}
	writeEntity(w, http.StatusOK, shipment, shipment.Revision)
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	status := domain.ReturnStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.ReturnRequested
	}
	items, next, err := h.service.ListReturns(r.Context(), principalFromRequest(r), status,
		r.URL.Query().Get("page_token"),
		parseIntDefault(r.URL.Query().Get("limit"), 0))
	if err != nil {
		writeMappedError(r.Context(), w, "list_returns", err)
		return
	}
	writePage(w, items, next)
}

func (h *Handler) processReturn(w http.ResponseWriter, r *http.Request) {
	rev, err := revisionFromHeader(r)
	if err != nil {
		writeValidationError(r.Context(), w, "process_return", err)
		return
	}
	var body processReturnBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "process_return", err)
		return
	}
	req := application.ProcessReturnRequest{
		RequestID: requestIDFromContext(r.Context()),
		ReturnID:  chi.URLParam(r, "return_id"),
		Revision:  rev,
		Approve:   body.Approve,
	}

	ret, err := h.service.ProcessReturn(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "process_return", err)
		return
	}
	writeEntity(w, http.StatusOK, ret, ret.Revision)
}

func (h *Handler) listTickets(w http.ResponseWriter, r *http.Request) {
	status := domain.TicketStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.TicketOpen
	}
	items, next, err := h.service.ListTickets(r.Context(), principalFromRequest(r), status,
		r.URL.Query().Get("page_token"),
		parseIntDefault(r.URL.Query().Get("limit"), 0))
	if err != nil {
		writeMappedError(r.Context(), w, "list_tickets", err)
		return
	}
	writePage(w, items, next)
}

func (h *Handler) updateTicket(w http.ResponseWriter, r *http.Request) {
	rev, err := revisionFromHeader(r)
	if err != nil {
		writeValidationError(r.Context(), w, "update_ticket", err)
		return
	}
	var body updateTicketBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "update_ticket", err)
		return
	}
	req := application.UpdateTicketRequest{
		RequestID: requestIDFromContext(r.Context()),
		TicketID:  chi.URLParam(r, "ticket_id"),
		Revision:  rev,
		Status:    body.Status,
	}

	ticket, err := h.service.UpdateTicket(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "update_ticket", err)
		return
	}
	writeEntity(w, http.StatusOK, ticket, ticket.Revision)
}

func (h *Handler) analytics(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Analytics(r.Context(), principalFromRequest(r))
	if err != nil {
		writeMappedError(r.Context(), w, "analytics", err)
		return
	}
	writeSuccess(w, http.StatusOK, snap)
}
