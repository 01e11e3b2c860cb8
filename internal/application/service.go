package application

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/commerce-core/internal/ports"
)

// Dependencies carries every port the service layer needs. All fields are
// required unless noted; NewService does not validate them because wiring is
// the bootstrap package's responsibility.
type Dependencies struct {
	Logger *slog.Logger

	Users      ports.UserRepository
	Products   ports.ProductRepository
	Categories ports.CategoryRepository
	Carts      ports.CartRepository
	Orders     ports.OrderRepository
	Inventory  ports.InventoryRepository
	Payments   ports.PaymentRepository
	Reviews    ports.ReviewRepository
	Shipments  ports.ShipmentRepository
	Returns    ports.ReturnRepository
	Tickets    ports.TicketRepository

	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
}

// Service implements every gated use case. One instance serves all requests;
// it holds no per-request state.
type Service struct {
	deps  Dependencies
	log   *slog.Logger
	nowFn func() time.Time
	idFn  func() string
}

func NewService(deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		deps:  deps,
		log:   log.With(slog.String("layer", "application")),
		nowFn: func() time.Time { return time.Now().UTC() },
		idFn:  func() string { return uuid.NewString() },
	}
}
