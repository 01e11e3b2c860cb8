package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shoplane/commerce-core/internal/domain"
)

// UserRepository persists customer/staff profiles keyed by the external
// provider subject so register-on-first-login stays idempotent.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetBySubject(ctx context.Context, subject string) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	Update(ctx context.Context, id string, expected domain.Revision, apply func(*domain.User) error) (domain.User, error)
}

type ProductRepository interface {
	Get(ctx context.Context, id string) (domain.Product, error)
	GetBySKU(ctx context.Context, sku string) (domain.Product, error)
	Create(ctx context.Context, product domain.Product) (domain.Product, error)
	Update(ctx context.Context, id string, expected domain.Revision, apply func(*domain.Product) error) (domain.Product, error)
	Delete(ctx context.Context, id string, expected domain.Revision) error
	List(ctx context.Context, categoryID string, pageToken string, limit int) ([]domain.Product, string, error)
}

type CategoryRepository interface {
	Get(ctx context.Context, id string) (domain.Category, error)
	Create(ctx context.Context, category domain.Category) (domain.Category, error)
	List(ctx context.Context, pageToken string, limit int) ([]domain.Category, string, error)
}

// CartRepository is partitioned by the owning user; at most one active cart
// per user at a time.
type CartRepository interface {
	GetActiveByUser(ctx context.Context, userID string) (domain.Cart, error)
	Create(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Update(ctx context.Context, id, userID string, expected domain.Revision, apply func(*domain.Cart) error) (domain.Cart, error)
}

type OrderRepository interface {
	Get(ctx context.Context, id, userID string) (domain.Order, error)
	Create(ctx context.Context, order domain.Order) (domain.Order, error)
	Update(ctx context.Context, id, userID string, expected domain.Revision, apply func(*domain.Order) error) (domain.Order, error)
	ListByUser(ctx context.Context, userID, pageToken string, limit int) ([]domain.Order, string, error)
	ListByStatus(ctx context.Context, status domain.OrderStatus, pageToken string, limit int) ([]domain.Order, string, error)
}

type InventoryRepository interface {
	GetByProduct(ctx context.Context, productID string) (domain.InventoryCounter, error)
	Create(ctx context.Context, counter domain.InventoryCounter) (domain.InventoryCounter, error)
	// Adjust applies a conditional delta to Available/Reserved. A stale
	// revision yields domain.ErrConflict; the caller re-reads and retries.
	Adjust(ctx context.Context, productID string, expected domain.Revision, availableDelta, reservedDelta int64) (domain.InventoryCounter, error)
}

type PaymentRepository interface {
	Get(ctx context.Context, id string) (domain.Payment, error)
	Create(ctx context.Context, payment domain.Payment) (domain.Payment, error)
	Update(ctx context.Context, id string, expected domain.Revision, apply func(*domain.Payment) error) (domain.Payment, error)
}

type ReviewRepository interface {
	Create(ctx context.Context, review domain.Review) (domain.Review, error)
	ListByProduct(ctx context.Context, productID, pageToken string, limit int) ([]domain.Review, string, error)
}

type ShipmentRepository interface {
	Get(ctx context.Context, id string) (domain.Shipment, error)
	Create(ctx context.Context, shipment domain.Shipment) (domain.Shipment, error)
	Update(ctx context.Context, id string, expected domain.Revision, apply func(*domain.Shipment) error) (domain.Shipment, error)
}

type ReturnRepository interface {
	Get(ctx context.Context, id string) (domain.Return, error)
	Create(ctx context.Context, ret domain.Return) (domain.Return, error)
	Update(ctx context.Context, id string, expected domain.Revision, apply func(*domain.Return) error) (domain.Return, error)
	ListByStatus(ctx context.Context, status domain.ReturnStatus, pageToken string, limit int) ([]domain.Return, string, error)
}

type TicketRepository interface {
	Get(ctx context.Context, id string) (domain.Ticket, error)
	Create(ctx context.Context, ticket domain.Ticket) (domain.Ticket, error)
	Update(ctx context.Context, id string, expected domain.Revision, apply func(*domain.Ticket) error) (domain.Ticket, error)
	ListByStatus(ctx context.Context, status domain.TicketStatus, pageToken string, limit int) ([]domain.Ticket, string, error)
}

// OutboxRecord is the durable publish-pending state for one envelope,
// including retry and claim/lease metadata for the background sweep.
type OutboxRecord struct {
	Envelope       domain.Envelope
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls the publish-pending workflow. Every envelope is
// enqueued before any broker attempt so a crash between store write and bus
// acknowledgment never loses an event.
type OutboxRepository interface {
	Enqueue(ctx context.Context, env domain.Envelope) error
	MarkPublishedInline(ctx context.Context, eventID uuid.UUID, at time.Time) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, eventID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, eventID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, eventID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
