package domain

import "time"

// Revision is an opaque, strictly increasing marker identifying an entity's
// last-written version. Callers must echo back the value they last observed;
// a stale value makes the write fail with ErrConflict without applying.
type Revision int64

// User is the customer/staff profile owned by this core. Authentication
// identity lives with the external provider; Subject links the two.
type User struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Roles     []string  `json:"roles"`
	Revision  Revision  `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parent_id,omitempty"`
	Revision  Revision  `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CategoryID  string    `json:"category_id"`
	PriceCents  int64     `json:"price_cents"`
	Active      bool      `json:"active"`
	Revision    Revision  `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InventoryCounter tracks sellable quantity per product. It is partitioned by
// product so order placement can decrement it with a conditional write.
type InventoryCounter struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Available int64     `json:"available"`
	Reserved  int64     `json:"reserved"`
	Revision  Revision  `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CartLine struct {
	SKU        string `json:"sku"`
	ProductID  string `json:"product_id"`
	Quantity   int64  `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

type CartStatus string

const (
	CartActive    CartStatus = "active"
	CartCompleted CartStatus = "completed"
)

// Cart is partitioned by the owning user; one active cart per user.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Status    CartStatus `json:"status"`
	Lines     []CartLine `json:"lines"`
	Revision  Revision   `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TotalCents sums line prices; carts never store a derived total.
func (c Cart) TotalCents() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.PriceCents * l.Quantity
	}
	return total
}

// LineFor returns the index of the line holding sku, or -1.
func (c Cart) LineFor(sku string) int {
	for i, l := range c.Lines {
		if l.SKU == sku {
			return i
		}
	}
	return -1
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

type OrderLine struct {
	SKU        string `json:"sku"`
	ProductID  string `json:"product_id"`
	Quantity   int64  `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

type Order struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Status        OrderStatus `json:"status"`
	Lines         []OrderLine `json:"lines"`
	SubtotalCents int64       `json:"subtotal_cents"`
	ShippingCents int64       `json:"shipping_cents"`
	TaxCents      int64       `json:"tax_cents"`
	TotalCents    int64       `json:"total_cents"`
	Revision      Revision    `json:"-"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type PaymentStatus string

const (
	PaymentProcessed PaymentStatus = "processed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type Payment struct {
	ID          string        `json:"id"`
	OrderID     string        `json:"order_id"`
	UserID      string        `json:"user_id"`
	Status      PaymentStatus `json:"status"`
	AmountCents int64         `json:"amount_cents"`
	Reference   string        `json:"reference,omitempty"`
	Revision    Revision      `json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type Review struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Body      string    `json:"body"`
	Revision  Revision  `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ShipmentStatus string

const (
	ShipmentPreparing ShipmentStatus = "preparing"
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentDelivered ShipmentStatus = "delivered"
)

type Shipment struct {
	ID        string         `json:"id"`
	OrderID   string         `json:"order_id"`
	UserID    string         `json:"user_id"`
	Carrier   string         `json:"carrier"`
	Tracking  string         `json:"tracking,omitempty"`
	Status    ShipmentStatus `json:"status"`
	Revision  Revision       `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type ReturnStatus string

const (
	ReturnRequested ReturnStatus = "requested"
	ReturnApproved  ReturnStatus = "approved"
	ReturnRejected  ReturnStatus = "rejected"
)

type Return struct {
	ID        string       `json:"id"`
	OrderID   string       `json:"order_id"`
	UserID    string       `json:"user_id"`
	Reason    string       `json:"reason"`
	Status    ReturnStatus `json:"status"`
	Revision  Revision     `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketPending  TicketStatus = "pending"
	TicketResolved TicketStatus = "resolved"
)

type Ticket struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	OrderID   string       `json:"order_id,omitempty"`
	Subject   string       `json:"subject"`
	Body      string       `json:"body"`
	Status    TicketStatus `json:"status"`
	Revision  Revision     `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
