package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shoplane/commerce-core/internal/application"
	"github.com/shoplane/commerce-core/internal/ports"
)

// Handler is the HTTP adapter entrypoint. It holds the application service,
// the token verifier for the auth middleware, and a readiness check wired to
// the backing store.
type Handler struct {
	service  *application.Service
	verifier ports.TokenVerifier
	ready    func(context.Context) error
}

func NewHandler(service *application.Service, verifier ports.TokenVerifier, ready func(context.Context) error) *Handler {
	return &Handler{service: service, verifier: verifier, ready: ready}
}

// NewRouter registers routes and the middleware stack. Public routes carry no
// auth middleware; the service's authorization gate still runs for them with
// a nil principal.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", handler.listProducts)
		r.Get("/products/{product_id}", handler.getProduct)
		r.Get("/products/{product_id}/reviews", handler.listReviews)
		r.Get("/categories", handler.listCategories)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)

			r.Get("/me", handler.me)
			r.Patch("/me", handler.updateProfile)

			r.Get("/cart", handler.getCart)
			r.Post("/cart/items", handler.addCartItem)
			r.Put("/cart/items/{sku}", handler.updateCartItem)
			r.Delete("/cart/items/{sku}", handler.removeCartItem)
			r.Delete("/cart", handler.clearCart)

			r.Post("/checkout/validate", handler.validateCheckout)
			r.Post("/orders", handler.placeOrder)
			r.Get("/orders", handler.listOrders)
			r.Get("/orders/{order_id}", handler.getOrder)
			r.Post("/orders/{order_id}/cancel", handler.cancelOrder)
			r.Post("/orders/{order_id}/returns", handler.requestReturn)

			r.Post("/products/{product_id}/reviews", handler.writeReview)
			r.Post("/tickets", handler.openTicket)

			r.Route("/staff", func(r chi.Router) {
				r.Post("/categories", handler.createCategory)
				r.Post("/products", handler.createProduct)
				r.Patch("/products/{product_id}", handler.updateProduct)
				r.Delete("/products/{product_id}", handler.deleteProduct)

				r.Post("/payments", handler.recordPayment)
				r.Post("/payments/{payment_id}/refund", handler.issueRefund)

				r.Post("/shipments", handler.createShipment)
				r.Patch("/shipments/{shipment_id}", handler.updateShipment)

				r.Get("/returns", handler.listReturns)
				r.Post("/returns/{return_id}/process", handler.processReturn)

				r.Get("/tickets", handler.listTickets)
				r.Patch("/tickets/{ticket_id}", handler.updateTicket)

				r.Get("/analytics", handler.analytics)
			})
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable")
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token")
			return
		}

		principal, err := h.verifier.Verify(r.Context(), raw)
		if err != nil {
			status, code, msg := mapDomainError(err)
			writeError(w, status, code, msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(contextWithPrincipal(r.Context(), &principal)))
	})
}
