package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/commerce-core/internal/adapters/docstore"
	"github.com/shoplane/commerce-core/internal/domain"
	"github.com/shoplane/commerce-core/internal/ports"
)

type recordingOutbox struct {
	mu       sync.Mutex
	enqueued []domain.Envelope
	inline   []uuid.UUID
}

func (o *recordingOutbox) Enqueue(_ context.Context, env domain.Envelope) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enqueued = append(o.enqueued, env)
	return nil
}

func (o *recordingOutbox) MarkPublishedInline(_ context.Context, eventID uuid.UUID, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inline = append(o.inline, eventID)
	return nil
}

func (o *recordingOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}
func (o *recordingOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (o *recordingOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (o *recordingOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (o *recordingOutbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.enqueued)
}

type recordingPublisher struct {
	mu        sync.Mutex
	failing   bool
	delivered []domain.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env domain.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return errors.New("broker unavailable")
	}
	p.delivered = append(p.delivered, env)
	return nil
}

func (p *recordingPublisher) byType(eventType string) []domain.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Envelope
	for _, env := range p.delivered {
		if env.EventType == eventType {
			out = append(out, env)
		}
	}
	return out
}

type fixture struct {
	service   *Service
	repos     docstore.Repositories
	outbox    *recordingOutbox
	publisher *recordingPublisher

	customer *domain.Principal
	staff    *domain.Principal
	admin    *domain.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOver(t, docstore.NewMemoryStore())
}

func newFixtureOver(t *testing.T, store ports.DocumentStore) *fixture {
	t.Helper()
	repos := docstore.NewRepositories(store)
	outbox := &recordingOutbox{}
	publisher := &recordingPublisher{}
	service := NewService(Dependencies{
		Logger:     slog.Default(),
		Users:      repos.Users,
		Products:   repos.Products,
		Categories: repos.Categories,
		Carts:      repos.Carts,
		Orders:     repos.Orders,
		Inventory:  repos.Inventory,
		Payments:   repos.Payments,
		Reviews:    repos.Reviews,
		Shipments:  repos.Shipments,
		Returns:    repos.Returns,
		Tickets:    repos.Tickets,
		Outbox:     outbox,
		Publisher:  publisher,
	})
	expiry := time.Now().Add(time.Hour)
	return &fixture{
		service:   service,
		repos:     repos,
		outbox:    outbox,
		publisher: publisher,
		customer:  &domain.Principal{Subject: "sub-customer", Email: "c@example.com", Roles: []domain.Role{domain.RoleCustomer}, ExpiresAt: expiry},
		staff:     &domain.Principal{Subject: "sub-staff", Email: "s@example.com", Roles: []domain.Role{domain.RoleStaff}, ExpiresAt: expiry},
		admin:     &domain.Principal{Subject: "sub-admin", Email: "a@example.com", Roles: []domain.Role{domain.RoleAdmin}, ExpiresAt: expiry},
	}
}

func (f *fixture) mustProfile(t *testing.T, p *domain.Principal) domain.User {
	t.Helper()
	user, err := f.service.EnsureProfile(context.Background(), p, uuid.NewString())
	if err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	return user
}

func (f *fixture) mustProduct(t *testing.T, sku string, priceCents, stock int64) domain.Product {
	t.Helper()
	product, err := f.service.CreateProduct(context.Background(), f.staff, CreateProductRequest{
		RequestID:    uuid.NewString(),
		SKU:          sku,
		Name:         "Product " + sku,
		PriceCents:   priceCents,
		InitialStock: stock,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("create product %s: %v", sku, err)
	}
	return product
}

func TestEnsureProfileRegistersOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first := f.mustProfile(t, f.customer)
	second := f.mustProfile(t, f.customer)
	if first.ID != second.ID {
		t.Fatalf("profile must be stable across logins: %s vs %s", first.ID, second.ID)
	}
	if got := len(f.publisher.byType(domain.EventUserRegistered)); got != 1 {
		t.Fatalf("expected exactly one UserRegistered event, got %d", got)
	}
}

func TestCartRevisionLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.mustProfile(t, f.customer)
	f.mustProduct(t, "sku-42", 1999, 10)

	cart, err := f.service.AddCartItem(ctx, f.customer, AddCartItemRequest{
		RequestID: uuid.NewString(), SKU: "sku-42", Quantity: 2,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	r1 := cart.Revision
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected cart after add: %+v", cart)
	}

	updated, err := f.service.UpdateCartItem(ctx, f.customer, UpdateCartItemRequest{
		RequestID: uuid.NewString(), SKU: "sku-42", Quantity: 3, Revision: r1,
	})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if updated.Revision <= r1 {
		t.Fatalf("revision must advance on write: %d -> %d", r1, updated.Revision)
	}
	if updated.Lines[0].Quantity != 3 {
		t.Fatalf("quantity not applied: %+v", updated.Lines)
	}

	// Echoing the superseded revision must fail without changing the cart.
	if _, err := f.service.UpdateCartItem(ctx, f.customer, UpdateCartItemRequest{
		RequestID: uuid.NewString(), SKU: "sku-42", Quantity: 99, Revision: r1,
	}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale revision, got %v", err)
	}
	current, err := f.service.GetCart(ctx, f.customer)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if current.Lines[0].Quantity != 3 {
		t.Fatalf("stale write must not apply, quantity is %d", current.Lines[0].Quantity)
	}
}

// commitRaceStore mimics a network driver whose conditional write commits
// server-side while the client observes cancellation.
type commitRaceStore struct {
	ports.DocumentStore
}

func (s commitRaceStore) Replace(ctx context.Context, doc ports.Document, expected domain.Revision) (ports.Document, error) {
	replaced, err := s.DocumentStore.Replace(ctx, doc, expected)
	if err == nil && ctx.Err() != nil {
		return ports.Document{}, ctx.Err()
	}
	return replaced, err
}

func TestWriteShieldedFromCallerCancellation(t *testing.T) {
	t.Parallel()

	f := newFixtureOver(t, commitRaceStore{docstore.NewMemoryStore()})
	ctx := context.Background()
	f.mustProfile(t, f.customer)
	f.mustProduct(t, "sku-42", 1999, 10)
	cart, err := f.service.AddCartItem(ctx, f.customer, AddCartItemRequest{
		RequestID: uuid.NewString(), SKU: "sku-42", Quantity: 2,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	gone, cancel := context.WithCancel(ctx)
	cancel()
	before := len(f.publisher.byType(domain.EventCartItemUpdated))

	// The caller is gone, but the conditional write must either fully apply
	// with its envelope or fully fail. It must never persist silently.
	updated, err := f.service.UpdateCartItem(gone, f.customer, UpdateCartItemRequest{
		RequestID: uuid.NewString(), SKU: "sku-42", Quantity: 3, Revision: cart.Revision,
	})
	if err != nil {
		t.Fatalf("cancelled caller must still observe the committed write: %v", err)
	}
	if updated.Lines[0].Quantity != 3 {
		t.Fatalf("write did not apply: %+v", updated.Lines)
	}
	if got := len(f.publisher.byType(domain.EventCartItemUpdated)); got != before+1 {
		t.Fatalf("committed write must carry its envelope, got %d new events", got-before)
	}
}

func TestCartMutationDeniedForStaff(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mustProfile(t, f.staff)
	before := f.outbox.count()

	_, err := f.service.AddCartItem(context.Background(), f.staff, AddCartItemRequest{
		RequestID: uuid.NewString(), SKU: "sku-42", Quantity: 1,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if f.outbox.count() != before {
		t.Fatalf("denied call must not emit events")
	}
}

func TestCreateCategoryEmitsEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created, err := f.service.CreateCategory(context.Background(), f.staff, CreateCategoryRequest{
		RequestID: uuid.NewString(), Name: "Outdoor",
	})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	envs := f.publisher.byType(domain.EventCategoryCreated)
	if len(envs) != 1 {
		t.Fatalf("expected one CategoryCreated event, got %d", len(envs))
	}
	if envs[0].Topic != domain.TopicProductEvents || envs[0].PartitionKey != created.ID {
		t.Fatalf("event must ride product-events keyed by category id: %+v", envs[0])
	}
}

func TestCatalogManagementDeniedForCustomer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.service.CreateProduct(context.Background(), f.customer, CreateProductRequest{
		RequestID: uuid.NewString(), SKU: "sku-1", Name: "X", PriceCents: 100, Active: true,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if items, _, listErr := f.repos.Products.List(context.Background(), "", "", 10); listErr != nil || len(items) != 0 {
		t.Fatalf("denied create must not write: %v items=%d", listErr, len(items))
	}
}

func TestPlaceOrderHappyPathEmitsCausalChain(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.mustProfile(t, f.customer)
	product := f.mustProduct(t, "sku-42", 1999, 10)

	if _, err := f.service.AddCartItem(ctx, f.customer, AddCartItemRequest{
		RequestID: uuid.NewString(), SKU: "sku-42", Quantity: 2,
	}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	requestID := uuid.NewString()
	order, err := f.service.PlaceOrder(ctx, f.customer, PlaceOrderRequest{RequestID: requestID})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if order.Status != domain.OrderPending {
		t.Fatalf("fresh order should be pending, got %s", order.Status)
	}
	wantSubtotal := int64(2 * 1999)
	if order.SubtotalCents != wantSubtotal {
		t.Fatalf("subtotal %d, want %d", order.SubtotalCents, wantSubtotal)
	}

	counter, err := f.repos.Inventory.GetByProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	if counter.Available != 8 || counter.Reserved != 2 {
		t.Fatalf("inventory not adjusted: %+v", counter)
	}

	// All envelopes from the placement share its correlation id and the
	// causation ids chain request -> reserved -> created.
	reserved := envelopesWithCorrelation(f.publisher.byType(domain.EventInventoryReserved), requestID)
	created := envelopesWithCorrelation(f.publisher.byType(domain.EventOrderCreated), requestID)
	if len(reserved) != 1 || len(created) != 1 {
		t.Fatalf("expected one reserved and one created envelope, got %d/%d", len(reserved), len(created))
	}
	if reserved[0].CausationID != requestID {
		t.Fatalf("first envelope must be caused by the request, got %s", reserved[0].CausationID)
	}
	if created[0].CausationID != reserved[0].EventID.String() {
		t.Fatalf("created must be caused by reserved, got %s", created[0].CausationID)
	}

	// The active cart is consumed by placement.
	fresh, err := f.service.GetCart(ctx, f.customer)
	if err != nil {
		t.Fatalf("get cart after order: %v", err)
	}
	if len(fresh.Lines) != 0 {
		t.Fatalf("expected a fresh empty cart after placement, got %+v", fresh.Lines)
	}
}

func envelopesWithCorrelation(envs []domain.Envelope, correlationID string) []domain.Envelope {
	var out []domain.Envelope
	for _, env := range envs {
		if env.CorrelationID == correlationID {
			out = append(out, env)
		}
	}
	return out
}

func TestPlaceOrderRejectsInsufficientInventoryBeforeWriting(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.mustProfile(t, f.customer)
	product := f.mustProduct(t, "sku-7", 500, 1)

	if _, err := f.service.AddCartItem(ctx, f.customer, AddCartItemRequest{
		RequestID: uuid.NewString(), SKU: "sku-7", Quantity: 2,
	}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	before := f.outbox.count()

	_, err := f.service.PlaceOrder(ctx, f.customer, PlaceOrderRequest{RequestID: uuid.NewString()})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	if f.outbox.count() != before {
		t.Fatalf("rejected checkout must not emit events")
	}
	counter, err := f.repos.Inventory.GetByProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	if counter.Available != 1 || counter.Reserved != 0 {
		t.Fatalf("rejected checkout must not touch inventory: %+v", counter)
	}
	if orders, _, _ := f.repos.Orders.ListByUser(ctx, f.mustProfile(t, f.customer).ID, "", 10); len(orders) != 0 {
		t.Fatalf("rejected checkout must not create an order")
	}
}

func TestPlaceOrderEmptyCartRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.mustProfile(t, f.customer)
	if _, err := f.service.GetCart(ctx, f.customer); err != nil {
		t.Fatalf("get cart: %v", err)
	}

	_, err := f.service.PlaceOrder(ctx, f.customer, PlaceOrderRequest{RequestID: uuid.NewString()})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty cart, got %v", err)
	}
}

func TestRecordPaymentSyncConfirmation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	user := f.mustProfile(t, f.customer)
	f.mustProduct(t, "sku-42", 1000, 5)
	if _, err := f.service.AddCartItem(ctx, f.customer, AddCartItemRequest{
		RequestID: uuid.NewString(), SKU: "sku-42", Quantity: 1,
	}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	order, err := f.service.PlaceOrder(ctx, f.customer, PlaceOrderRequest{RequestID: uuid.NewString()})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	payment, err := f.service.RecordPayment(ctx, f.staff, RecordPaymentRequest{
		RequestID: uuid.NewString(), OrderID: order.ID, UserID: user.ID,
		AmountCents: order.TotalCents, Reference: "ch_1", Succeeded: true,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if payment.Status != domain.PaymentProcessed {
		t.Fatalf("expected processed payment, got %s", payment.Status)
	}
	paid, err := f.repos.Orders.Get(ctx, order.ID, user.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if paid.Status != domain.OrderPaid {
		t.Fatalf("expected paid order, got %s", paid.Status)
	}
	if got := len(f.publisher.byType(domain.EventPaymentProcessed)); got != 1 {
		t.Fatalf("expected one PaymentProcessed event, got %d", got)
	}
}

func TestRecordPaymentFailsWhenBrokerDown(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	user := f.mustProfile(t, f.customer)
	f.mustProduct(t, "sku-42", 1000, 5)
	if _, err := f.service.AddCartItem(ctx, f.customer, AddCartItemRequest{
		RequestID: uuid.NewString(), SKU: "sku-42", Quantity: 1,
	}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	order, err := f.service.PlaceOrder(ctx, f.customer, PlaceOrderRequest{RequestID: uuid.NewString()})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	f.publisher.mu.Lock()
	f.publisher.failing = true
	f.publisher.mu.Unlock()
	before := f.outbox.count()

	_, err = f.service.RecordPayment(ctx, f.staff, RecordPaymentRequest{
		RequestID: uuid.NewString(), OrderID: order.ID, UserID: user.ID,
		AmountCents: order.TotalCents, Succeeded: true,
	})
	if err == nil {
		t.Fatalf("payment transitions demand synchronous publish confirmation")
	}
	// The envelope stays durably pending for the sweep even though the call
	// failed; at-least-once delivery still holds.
	if f.outbox.count() <= before {
		t.Fatalf("expected a publish-pending record for the failed publish")
	}
}

func TestRefundOnlyForAdmins(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.service.IssueRefund(context.Background(), f.staff, IssueRefundRequest{
		RequestID: uuid.NewString(), PaymentID: "pay-1", Revision: 1,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for staff refund, got %v", err)
	}
}

func TestCancelOrderReleasesInventory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.mustProfile(t, f.customer)
	product := f.mustProduct(t, "sku-42", 1000, 5)
	if _, err := f.service.AddCartItem(ctx, f.customer, AddCartItemRequest{
		RequestID: uuid.NewString(), SKU: "sku-42", Quantity: 2,
	}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	order, err := f.service.PlaceOrder(ctx, f.customer, PlaceOrderRequest{RequestID: uuid.NewString()})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	cancelled, err := f.service.CancelOrder(ctx, f.customer, CancelOrderRequest{
		RequestID: uuid.NewString(), OrderID: order.ID, Revision: order.Revision,
	})
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if cancelled.Status != domain.OrderCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	counter, err := f.repos.Inventory.GetByProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	if counter.Available != 5 || counter.Reserved != 0 {
		t.Fatalf("cancel must release inventory: %+v", counter)
	}
	if got := len(f.publisher.byType(domain.EventInventoryReleased)); got != 1 {
		t.Fatalf("expected one InventoryReleased event, got %d", got)
	}
}

func TestReviewRequiresExistingProduct(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mustProfile(t, f.customer)

	_, err := f.service.WriteReview(context.Background(), f.customer, WriteReviewRequest{
		RequestID: uuid.NewString(), ProductID: "missing", Rating: 5, Body: "great",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEveryMutationLandsInOutbox(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.mustProfile(t, f.customer)
	f.mustProduct(t, "sku-42", 1000, 5)
	if _, err := f.service.AddCartItem(ctx, f.customer, AddCartItemRequest{
		RequestID: uuid.NewString(), SKU: "sku-42", Quantity: 1,
	}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	// Everything the publisher delivered was first enqueued durably, and
	// inline acknowledgments cover exactly the delivered set.
	f.publisher.mu.Lock()
	delivered := len(f.publisher.delivered)
	f.publisher.mu.Unlock()
	f.outbox.mu.Lock()
	enqueued := len(f.outbox.enqueued)
	inline := len(f.outbox.inline)
	f.outbox.mu.Unlock()
	if enqueued != delivered || inline != delivered {
		t.Fatalf("outbox bookkeeping mismatch: enqueued=%d inline=%d delivered=%d", enqueued, inline, delivered)
	}
}
