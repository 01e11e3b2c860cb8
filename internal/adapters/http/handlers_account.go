package http

import (
	"net/http"

	"github.com/shoplane/commerce-core/internal/application"
)

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.EnsureProfile(r.Context(), principalFromRequest(r), requestIDFromContext(r.Context()))
	if err != nil {
		writeMappedError(r.Context(), w, "get_profile", err)
		return
	}
	writeEntity(w, http.StatusOK, user, user.Revision)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	rev, err := revisionFromHeader(r)
	if err != nil {
		writeValidationError(r.Context(), w, "update_profile", err)
		return
	}
	var body updateProfileBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "update_profile", err)
		return
	}
	req := application.UpdateProfileRequest{
		RequestID: requestIDFromContext(r.Context()),
		Name:      body.Name,
		Email:     body.Email,
	}

	user, err := h.service.UpdateProfile(r.Context(), principalFromRequest(r), req, rev)
	if err != nil {
		writeMappedError(r.Context(), w, "update_profile", err)
		return
	}
	writeEntity(w, http.StatusOK, user, user.Revision)
}

func (h *Handler) openTicket(w http.ResponseWriter, r *http.Request) {
	var body openTicketBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "open_ticket", err)
		return
	}
	req := application.OpenTicketRequest{
		RequestID: requestIDFromContext(r.Context()),
		OrderID:   body.OrderID,
		Subject:   body.Subject,
		Body:      body.Body,
	}

	ticket, err := h.service.OpenTicket(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "open_ticket", err)
		return
	}
	writeEntity(w, http.StatusCreated, ticket, ticket.Revision)
}
