package http

import "github.com/shoplane/commerce-core/internal/domain"

// Inbound body shapes. The wire contract is snake_case on both directions;
// handlers map these onto the service layer's request types so the
// application package never sees JSON tags.

type updateProfileBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type openTicketBody struct {
	OrderID string `json:"order_id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type addCartItemBody struct {
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

type updateCartItemBody struct {
	Quantity int64 `json:"quantity"`
}

type writeReviewBody struct {
	Rating int    `json:"rating"`
	Body   string `json:"body"`
}

type createCategoryBody struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
}

type createProductBody struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	CategoryID   string `json:"category_id"`
	PriceCents   int64  `json:"price_cents"`
	InitialStock int64  `json:"initial_stock"`
	Active       bool   `json:"active"`
}

type updateProductBody struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	PriceCents  *int64  `json:"price_cents"`
	Active      *bool   `json:"active"`
}

type requestReturnBody struct {
	Reason string `json:"reason"`
}

type recordPaymentBody struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference"`
	Succeeded   bool   `json:"succeeded"`
}

type createShipmentBody struct {
	OrderID  string `json:"order_id"`
	Carrier  string `json:"carrier"`
	Tracking string `json:"tracking"`
}

type updateShipmentBody struct {
	Status   domain.ShipmentStatus `json:"status"`
	Tracking string                `json:"tracking"`
}

type processReturnBody struct {
	Approve bool `json:"approve"`
}

type updateTicketBody struct {
	Status domain.TicketStatus `json:"status"`
}
