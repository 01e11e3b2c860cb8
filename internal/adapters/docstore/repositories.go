package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/shoplane/commerce-core/internal/domain"
	"github.com/shoplane/commerce-core/internal/ports"
)

// Repositories bundles every typed repository over one store client.
// All entity reads and writes in the service route through here; nothing else
// touches the document store.
type Repositories struct {
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
}

func NewRepositories(store ports.DocumentStore) Repositories {
	return Repositories{
		Users:      &userRepository{c: userCollection(store)},
		Products:   &productRepository{c: productCollection(store)},
		Categories: &categoryRepository{c: categoryCollection(store)},
		Carts:      &cartRepository{c: cartCollection(store)},
		Orders:     &orderRepository{c: orderCollection(store)},
		Inventory:  &inventoryRepository{c: inventoryCollection(store)},
		Payments:   &paymentRepository{c: paymentCollection(store)},
		Reviews:    &reviewRepository{c: reviewCollection(store)},
		Shipments:  &shipmentRepository{c: shipmentCollection(store)},
		Returns:    &returnRepository{c: returnCollection(store)},
		Tickets:    &ticketRepository{c: ticketCollection(store)},
	}
}

func userCollection(store ports.DocumentStore) collection[domain.User] {
	return collection[domain.User]{
		store:     store,
		name:      "users",
		key:       func(u *domain.User) string { return u.ID },
		partition: func(u *domain.User) string { return u.ID },
		revision:  func(u *domain.User) *domain.Revision { return &u.Revision },
	}
}

type userRepository struct{ c collection[domain.User] }

func (r *userRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	return r.c.get(ctx, id, id)
}

func (r *userRepository) GetBySubject(ctx context.Context, subject string) (domain.User, error) {
	return r.c.first(ctx, ports.Filter{Equals: map[string]string{"subject": subject}})
}

func (r *userRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	return r.c.create(ctx, user)
}

func (r *userRepository) Update(ctx context.Context, id string, expected domain.Revision, apply func(*domain.User) error) (domain.User, error) {
	return r.c.update(ctx, id, id, expected, apply)
}

func productCollection(store ports.DocumentStore) collection[domain.Product] {
	return collection[domain.Product]{
		store:     store,
		name:      "products",
		key:       func(p *domain.Product) string { return p.ID },
		partition: func(p *domain.Product) string { return p.ID },
		revision:  func(p *domain.Product) *domain.Revision { return &p.Revision },
	}
}

type productRepository struct{ c collection[domain.Product] }

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	return r.c.get(ctx, id, id)
}

func (r *productRepository) GetBySKU(ctx context.Context, sku string) (domain.Product, error) {
	return r.c.first(ctx, ports.Filter{Equals: map[string]string{"sku": sku}})
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	return r.c.create(ctx, product)
}

func (r *productRepository) Update(ctx context.Context, id string, expected domain.Revision, apply func(*domain.Product) error) (domain.Product, error) {
	return r.c.update(ctx, id, id, expected, apply)
}

func (r *productRepository) Delete(ctx context.Context, id string, expected domain.Revision) error {
	return r.c.delete(ctx, id, id, expected)
}

func (r *productRepository) List(ctx context.Context, categoryID, pageToken string, limit int) ([]domain.Product, string, error) {
	filter := ports.Filter{Limit: limit}
	if categoryID != "" {
		filter.Equals = map[string]string{"category_id": categoryID}
	}
	return r.c.list(ctx, filter, pageToken)
}

func categoryCollection(store ports.DocumentStore) collection[domain.Category] {
	return collection[domain.Category]{
		store:     store,
		name:      "categories",
		key:       func(c *domain.Category) string { return c.ID },
		partition: func(c *domain.Category) string { return c.ID },
		revision:  func(c *domain.Category) *domain.Revision { return &c.Revision },
	}
}

type categoryRepository struct{ c collection[domain.Category] }

func (r *categoryRepository) Get(ctx context.Context, id string) (domain.Category, error) {
	return r.c.get(ctx, id, id)
}

func (r *categoryRepository) Create(ctx context.Context, category domain.Category) (domain.Category, error) {
	return r.c.create(ctx, category)
}

func (r *categoryRepository) List(ctx context.Context, pageToken string, limit int) ([]domain.Category, string, error) {
	return r.c.list(ctx, ports.Filter{Limit: limit}, pageToken)
}

func cartCollection(store ports.DocumentStore) collection[domain.Cart] {
	return collection[domain.Cart]{
		store:     store,
		name:      "carts",
		key:       func(c *domain.Cart) string { return c.ID },
		partition: func(c *domain.Cart) string { return c.UserID },
		revision:  func(c *domain.Cart) *domain.Revision { return &c.Revision },
	}
}

type cartRepository struct{ c collection[domain.Cart] }

func (r *cartRepository) GetActiveByUser(ctx context.Context, userID string) (domain.Cart, error) {
	return r.c.first(ctx, ports.Filter{
		PartitionKey: userID,
		Equals:       map[string]string{"status": string(domain.CartActive)},
	})
}

func (r *cartRepository) Create(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	return r.c.create(ctx, cart)
}

func (r *cartRepository) Update(ctx context.Context, id, userID string, expected domain.Revision, apply func(*domain.Cart) error) (domain.Cart, error) {
	return r.c.update(ctx, id, userID, expected, apply)
}

func orderCollection(store ports.DocumentStore) collection[domain.Order] {
	return collection[domain.Order]{
		store:     store,
		name:      "orders",
		key:       func(o *domain.Order) string { return o.ID },
		partition: func(o *domain.Order) string { return o.UserID },
		revision:  func(o *domain.Order) *domain.Revision { return &o.Revision },
	}
}

type orderRepository struct{ c collection[domain.Order] }

func (r *orderRepository) Get(ctx context.Context, id, userID string) (domain.Order, error) {
	return r.c.get(ctx, id, userID)
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	return r.c.create(ctx, order)
}

func (r *orderRepository) Update(ctx context.Context, id, userID string, expected domain.Revision, apply func(*domain.Order) error) (domain.Order, error) {
	return r.c.update(ctx, id, userID, expected, apply)
}

func (r *orderRepository) ListByUser(ctx context.Context, userID, pageToken string, limit int) ([]domain.Order, string, error) {
	return r.c.list(ctx, ports.Filter{PartitionKey: userID, Limit: limit}, pageToken)
}

func (r *orderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus, pageToken string, limit int) ([]domain.Order, string, error) {
	return r.c.list(ctx, ports.Filter{
		Equals: map[string]string{"status": string(status)},
		Limit:  limit,
	}, pageToken)
}

func inventoryCollection(store ports.DocumentStore) collection[domain.InventoryCounter] {
	return collection[domain.InventoryCounter]{
		store:     store,
		name:      "inventory",
		key:       func(i *domain.InventoryCounter) string { return i.ID },
		partition: func(i *domain.InventoryCounter) string { return i.ProductID },
		revision:  func(i *domain.InventoryCounter) *domain.Revision { return &i.Revision },
	}
}

type inventoryRepository struct{ c collection[domain.InventoryCounter] }

func (r *inventoryRepository) GetByProduct(ctx context.Context, productID string) (domain.InventoryCounter, error) {
	// Counter id is the product id, so this stays a point read.
	return r.c.get(ctx, productID, productID)
}

func (r *inventoryRepository) Create(ctx context.Context, counter domain.InventoryCounter) (domain.InventoryCounter, error) {
	return r.c.create(ctx, counter)
}

func (r *inventoryRepository) Adjust(ctx context.Context, productID string, expected domain.Revision, availableDelta, reservedDelta int64) (domain.InventoryCounter, error) {
	return r.c.update(ctx, productID, productID, expected, func(counter *domain.InventoryCounter) error {
		next := counter.Available + availableDelta
		if next < 0 {
			return fmt.Errorf("%w: inventory for %s would drop below zero", domain.ErrInvalidInput, productID)
		}
		counter.Available = next
		counter.Reserved += reservedDelta
		if counter.Reserved < 0 {
			counter.Reserved = 0
		}
		counter.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func paymentCollection(store ports.DocumentStore) collection[domain.Payment] {
	return collection[domain.Payment]{
		store:     store,
		name:      "payments",
		key:       func(p *domain.Payment) string { return p.ID },
		partition: func(p *domain.Payment) string { return p.OrderID },
		revision:  func(p *domain.Payment) *domain.Revision { return &p.Revision },
	}
}

type paymentRepository struct{ c collection[domain.Payment] }

func (r *paymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	return r.c.get(ctx, id, "")
}

func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	return r.c.create(ctx, payment)
}

func (r *paymentRepository) Update(ctx context.Context, id string, expected domain.Revision, apply func(*domain.Payment) error) (domain.Payment, error) {
	return r.c.update(ctx, id, "", expected, apply)
}

func reviewCollection(store ports.DocumentStore) collection[domain.Review] {
	return collection[domain.Review]{
		store:     store,
		name:      "reviews",
		key:       func(rv *domain.Review) string { return rv.ID },
		partition: func(rv *domain.Review) string { return rv.ProductID },
		revision:  func(rv *domain.Review) *domain.Revision { return &rv.Revision },
	}
}

type reviewRepository struct{ c collection[domain.Review] }

func (r *reviewRepository) Create(ctx context.Context, review domain.Review) (domain.Review, error) {
	return r.c.create(ctx, review)
}

func (r *reviewRepository) ListByProduct(ctx context.Context, productID, pageToken string, limit int) ([]domain.Review, string, error) {
	return r.c.list(ctx, ports.Filter{PartitionKey: productID, Limit: limit}, pageToken)
}

func shipmentCollection(store ports.DocumentStore) collection[domain.Shipment] {
	return collection[domain.Shipment]{
		store:     store,
		name:      "shipments",
		key:       func(s *domain.Shipment) string { return s.ID },
		partition: func(s *domain.Shipment) string { return s.OrderID },
		revision:  func(s *domain.Shipment) *domain.Revision { return &s.Revision },
	}
}

type shipmentRepository struct{ c collection[domain.Shipment] }

func (r *shipmentRepository) Get(ctx context.Context, id string) (domain.Shipment, error) {
	return r.c.get(ctx, id, "")
}

func (r *shipmentRepository) Create(ctx context.Context, shipment domain.Shipment) (domain.Shipment, error) {
	return r.c.create(ctx, shipment)
}

func (r *shipmentRepository) Update(ctx context.Context, id string, expected domain.Revision, apply func(*domain.Shipment) error) (domain.Shipment, error) {
	return r.c.update(ctx, id, "", expected, apply)
}

func returnCollection(store ports.DocumentStore) collection[domain.Return] {
	return collection[domain.Return]{
		store:     store,
		name:      "returns",
		key:       func(ret *domain.Return) string { return ret.ID },
		partition: func(ret *domain.Return) string { return ret.OrderID },
		revision:  func(ret *domain.Return) *domain.Revision { return &ret.Revision },
	}
}

type returnRepository struct{ c collection[domain.Return] }

func (r *returnRepository) Get(ctx context.Context, id string) (domain.Return, error) {
	return r.c.get(ctx, id, "")
}

func (r *returnRepository) Create(ctx context.Context, ret domain.Return) (domain.Return, error) {
	return r.c.create(ctx, ret)
}

func (r *returnRepository) Update(ctx context.Context, id string, expected domain.Revision, apply func(*domain.Return) error) (domain.Return, error) {
	return r.c.update(ctx, id, "", expected, apply)
}

func (r *returnRepository) ListByStatus(ctx context.Context, status domain.ReturnStatus, pageToken string, limit int) ([]domain.Return, string, error) {
	return r.c.list(ctx, ports.Filter{
		Equals: map[string]string{"status": string(status)},
		Limit:  limit,
	}, pageToken)
}

func ticketCollection(store ports.DocumentStore) collection[domain.Ticket] {
	return collection[domain.Ticket]{
		store:     store,
		name:      "tickets",
		key:       func(t *domain.Ticket) string { return t.ID },
		partition: func(t *domain.Ticket) string { return t.UserID },
		revision:  func(t *domain.Ticket) *domain.Revision { return &t.Revision },
	}
}

type ticketRepository struct{ c collection[domain.Ticket] }

func (r *ticketRepository) Get(ctx context.Context, id string) (domain.Ticket, error) {
	return r.c.get(ctx, id, "")
}

func (r *ticketRepository) Create(ctx context.Context, ticket domain.Ticket) (domain.Ticket, error) {
	return r.c.create(ctx, ticket)
}

func (r *ticketRepository) Update(ctx context.Context, id string, expected domain.Revision, apply func(*domain.Ticket) error) (domain.Ticket, error) {
	return r.c.update(ctx, id, "", expected, apply)
}

func (r *ticketRepository) ListByStatus(ctx context.Context, status domain.TicketStatus, pageToken string, limit int) ([]domain.Ticket, string, error) {
	return r.c.list(ctx, ports.Filter{
		Equals: map[string]string{"status": string(status)},
		Limit:  limit,
	}, pageToken)
}
