package application

import "github.com/shoplane/commerce-core/internal/domain"

// Request/response shapes for the service layer. RequestID on each mutating
// request seeds the correlation chain; the transport assigns it when the
// caller does not.

type UpdateProfileRequest struct {
	RequestID string
	Name      string
	Email     string
}

type CreateCategoryRequest struct {
	RequestID string
	Name      string
	ParentID  string
}

type CreateProductRequest struct {
	RequestID      string
	SKU            string
	Name           string
	Description    string
	CategoryID     string
	PriceCents     int64
	InitialStock   int64
	Active         bool
}

type UpdateProductRequest struct {
	RequestID   string
	ProductID   string
	Revision    domain.Revision
	Name        *string
	Description *string
	PriceCents  *int64
	Active      *bool
}

type DeleteProductRequest struct {
	RequestID string
	ProductID string
	Revision  domain.Revision
}

type ListProductsRequest struct {
	CategoryID string
	PageToken  string
	Limit      int
}

type AddCartItemRequest struct {
	RequestID string
	SKU       string
	Quantity  int64
}

type UpdateCartItemRequest struct {
	RequestID string
	SKU       string
	Quantity  int64
	Revision  domain.Revision
}

type RemoveCartItemRequest struct {
	RequestID string
	SKU       string
	Revision  domain.Revision
}

type ClearCartRequest struct {
	RequestID string
	Revision  domain.Revision
}

type PlaceOrderRequest struct {
	RequestID    string
	CartRevision domain.Revision
}

type CancelOrderRequest struct {
	RequestID string
	OrderID   string
	Revision  domain.Revision
}

type ListOrdersRequest struct {
	PageToken string
	Limit     int
}

type RecordPaymentRequest struct {
	RequestID   string
	OrderID     string
	UserID      string
	AmountCents int64
	Reference   string
	Succeeded   bool
}

type IssueRefundRequest struct {
	RequestID string
	PaymentID string
	Revision  domain.Revision
}

type WriteReviewRequest struct {
	RequestID string
	ProductID string
	Rating    int
	Body      string
}

type ListReviewsRequest struct {
	ProductID string
	PageToken string
	Limit     int
}

type CreateShipmentRequest struct {
	RequestID string
	OrderID   string
	Carrier   string
	Tracking  string
}

type UpdateShipmentRequest struct {
	RequestID  string
	ShipmentID string
	Revision   domain.Revision
	Status     domain.ShipmentStatus
	Tracking   string
}

type RequestReturnRequest struct {
	RequestID string
	OrderID   string
	Reason    string
}

type ProcessReturnRequest struct {
	RequestID string
	ReturnID  string
	Revision  domain.Revision
	Approve   bool
}

type OpenTicketRequest struct {
	RequestID string
	OrderID   string
	Subject   string
	Body      string
}

type UpdateTicketRequest struct {
	RequestID string
	TicketID  string
	Revision  domain.Revision
	Status    domain.TicketStatus
}

// AnalyticsSnapshot is a read-only aggregate for the staff dashboard.
type AnalyticsSnapshot struct {
	OrdersPending    int `json:"orders_pending"`
	OrdersPaid       int `json:"orders_paid"`
	OrdersShipped    int `json:"orders_shipped"`
	ReturnsRequested int `json:"returns_requested"`
	TicketsOpen      int `json:"tickets_open"`
}
