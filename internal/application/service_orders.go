package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/shoplane/commerce-core/internal/domain"
)

// Flat-rate shipping and tax until pricing becomes its own concern.
const (
	shippingFlatCents = 500
	taxBasisPoints    = 825 // 8.25%
)

type orderEventPayload struct {
	OrderID    string             `json:"order_id"`
	UserID     string             `json:"user_id"`
	Status     domain.OrderStatus `json:"status"`
	TotalCents int64              `json:"total_cents"`
}

type inventoryEventPayload struct {
	ProductID string `json:"product_id"`
	OrderID   string `json:"order_id"`
	Quantity  int64  `json:"quantity"`
	Available int64  `json:"available"`
}

// ValidateCheckout runs every order precondition without writing anything:
// a non-empty active cart, sellable products, and sufficient inventory. Place
// order calls this first so an invalid checkout is rejected before any state
// changes and before any event is emitted.
func (s *Service) ValidateCheckout(ctx context.Context, p *domain.Principal) (domain.Cart, error) {
	if err := domain.Authorize(p, domain.OpPlaceOrder); err != nil {
		return domain.Cart{}, err
	}
	user, err := s.currentUser(ctx, p)
	if err != nil {
		return domain.Cart{}, err
	}
	cart, err := s.deps.Carts.GetActiveByUser(ctx, user.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := s.checkCheckout(ctx, cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (s *Service) checkCheckout(ctx context.Context, cart domain.Cart) error {
	if len(cart.Lines) == 0 {
		return fmt.Errorf("%w: cart is empty", domain.ErrInvalidInput)
	}
	for _, line := range cart.Lines {
		product, err := s.deps.Products.Get(ctx, line.ProductID)
		if err != nil {
			return fmt.Errorf("product %s: %w", line.ProductID, err)
		}
		if !product.Active {
			return fmt.Errorf("%w: sku %s is no longer sellable", domain.ErrInvalidInput, line.SKU)
		}
		counter, err := s.deps.Inventory.GetByProduct(ctx, line.ProductID)
		if err != nil {
			return fmt.Errorf("inventory %s: %w", line.ProductID, err)
		}
		if counter.Available < line.Quantity {
			return fmt.Errorf("%w: sku %s has %d available, %d requested",
				domain.ErrInvalidInput, line.SKU, counter.Available, line.Quantity)
		}
	}
	return nil
}

// PlaceOrder turns the active cart into an order. The sequence is: validate
// everything, decrement each line's inventory with a conditional write, create
// the order, complete the cart. A decrement that fails partway is compensated
// by re-incrementing the counters already taken, under the same correlation
// id, so consumers can reconcile the reservation and its release.
func (s *Service) PlaceOrder(ctx context.Context, p *domain.Principal, req PlaceOrderRequest) (domain.Order, error) {
	u := s.begin(domain.OpPlaceOrder, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Order{}, err
	}
	user, err := s.currentUser(ctx, p)
	if err != nil {
		return domain.Order{}, u.fail(err)
	}
	cart, err := s.deps.Carts.GetActiveByUser(ctx, user.ID)
	if err != nil {
		return domain.Order{}, u.fail(err)
	}
	if req.CartRevision != 0 && req.CartRevision != cart.Revision {
		return domain.Order{}, u.fail(fmt.Errorf("%w: cart changed since checkout", domain.ErrConflict))
	}
	if err := s.checkCheckout(ctx, cart); err != nil {
		return domain.Order{}, u.fail(err)
	}

	orderID := s.idFn()
	taken, err := s.reserveInventory(ctx, u, orderID, cart.Lines)
	if err != nil {
		s.releaseInventory(ctx, u, orderID, taken)
		return domain.Order{}, u.fail(err)
	}

	now := s.nowFn()
	lines := make([]domain.OrderLine, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, domain.OrderLine{
			SKU:        l.SKU,
			ProductID:  l.ProductID,
			Quantity:   l.Quantity,
			PriceCents: l.PriceCents,
		})
	}
	subtotal := cart.TotalCents()
	tax := subtotal * taxBasisPoints / 10000
	order := domain.Order{
		ID:            orderID,
		UserID:        user.ID,
		Status:        domain.OrderPending,
		Lines:         lines,
		SubtotalCents: subtotal,
		ShippingCents: shippingFlatCents,
		TaxCents:      tax,
		TotalCents:    subtotal + shippingFlatCents + tax,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := s.deps.Orders.Create(writeContext(ctx), order)
	if err != nil {
		s.releaseInventory(ctx, u, orderID, taken)
		return domain.Order{}, u.fail(err)
	}

	// Completing the cart is best effort: a conflict here means the user
	// mutated the cart mid-placement, and the order already stands.
	if _, err := s.deps.Carts.Update(writeContext(ctx), cart.ID, user.ID, cart.Revision, func(c *domain.Cart) error {
		c.Status = domain.CartCompleted
		c.UpdatedAt = s.nowFn()
		return nil
	}); err != nil && !errors.Is(err, domain.ErrConflict) {
		u.log.Warn("cart completion failed", "cart_id", cart.ID, "error", err.Error())
	}

	if err := u.emit(domain.TopicOrderEvents, domain.EventOrderCreated, created.ID, orderEventPayload{
		OrderID:    created.ID,
		UserID:     user.ID,
		Status:     created.Status,
		TotalCents: created.TotalCents,
	}); err != nil {
		return domain.Order{}, u.fail(err)
	}
	return created, u.finish(ctx)
}

// reserveInventory decrements each line's counter in turn, retrying a
// conflicting counter with a fresh read. It returns the lines it managed to
// take before any failure so the caller can compensate.
func (s *Service) reserveInventory(ctx context.Context, u *uc, orderID string, lines []domain.CartLine) ([]domain.CartLine, error) {
	taken := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		counter, err := s.adjustWithRereads(ctx, line.ProductID, -line.Quantity, line.Quantity)
		if err != nil {
			return taken, fmt.Errorf("reserve sku %s: %w", line.SKU, err)
		}
		taken = append(taken, line)
		if err := u.emit(domain.TopicInventoryEvents, domain.EventInventoryReserved, line.ProductID, inventoryEventPayload{
			ProductID: line.ProductID,
			OrderID:   orderID,
			Quantity:  line.Quantity,
			Available: counter.Available,
		}); err != nil {
			return taken, err
		}
	}
	return taken, nil
}

// releaseInventory undoes prior decrements. It runs on a cancellation-immune
// context: once a counter was taken, giving it back must not be abandoned.
func (s *Service) releaseInventory(ctx context.Context, u *uc, orderID string, taken []domain.CartLine) {
	ctx = context.WithoutCancel(ctx)
	for _, line := range taken {
		counter, err := s.adjustWithRereads(ctx, line.ProductID, line.Quantity, -line.Quantity)
		if err != nil {
			u.log.Error("inventory release failed; counter needs reconciliation",
				"product_id", line.ProductID,
				"quantity", line.Quantity,
				"error", err.Error())
			continue
		}
		if err := u.emit(domain.TopicInventoryEvents, domain.EventInventoryReleased, line.ProductID, inventoryEventPayload{
			ProductID: line.ProductID,
			OrderID:   orderID,
			Quantity:  line.Quantity,
			Available: counter.Available,
		}); err != nil {
			u.log.Error("inventory release event dropped", "product_id", line.ProductID, "error", err.Error())
		}
	}
}

// adjustWithRereads applies a conditional counter delta, re-reading on
// revision conflicts. Conflicts here are expected contention, not caller
// error, so a short bounded loop absorbs them.
func (s *Service) adjustWithRereads(ctx context.Context, productID string, availableDelta, reservedDelta int64) (domain.InventoryCounter, error) {
	ctx = writeContext(ctx)
	const attempts = 3
	var lastErr error
	for i := 0; i < attempts; i++ {
		counter, err := s.deps.Inventory.GetByProduct(ctx, productID)
		if err != nil {
			return domain.InventoryCounter{}, err
		}
		adjusted, err := s.deps.Inventory.Adjust(ctx, productID, counter.Revision, availableDelta, reservedDelta)
		if err == nil {
			return adjusted, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return domain.InventoryCounter{}, err
		}
		lastErr = err
	}
	return domain.InventoryCounter{}, lastErr
}

func (s *Service) GetOrder(ctx context.Context, p *domain.Principal, orderID string) (domain.Order, error) {
	if err := domain.Authorize(p, domain.OpViewOwnOrders); err != nil {
		return domain.Order{}, err
	}
	user, err := s.currentUser(ctx, p)
	if err != nil {
		return domain.Order{}, err
	}
	return s.deps.Orders.Get(ctx, orderID, user.ID)
}

func (s *Service) ListOrders(ctx context.Context, p *domain.Principal, req ListOrdersRequest) ([]domain.Order, string, error) {
	if err := domain.Authorize(p, domain.OpViewOwnOrders); err != nil {
		return nil, "", err
	}
	user, err := s.currentUser(ctx, p)
	if err != nil {
		return nil, "", err
	}
	return s.deps.Orders.ListByUser(ctx, user.ID, req.PageToken, pageLimit(req.Limit))
}

// CancelOrder transitions a pending order to cancelled and gives its
// inventory back. Paid or shipped orders go through the returns flow instead.
func (s *Service) CancelOrder(ctx context.Context, p *domain.Principal, req CancelOrderRequest) (domain.Order, error) {
	u := s.begin(domain.OpCancelOrder, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Order{}, err
	}
	user, err := s.currentUser(ctx, p)
	if err != nil {
		return domain.Order{}, u.fail(err)
	}

	updated, err := s.deps.Orders.Update(writeContext(ctx), req.OrderID, user.ID, req.Revision, func(o *domain.Order) error {
		if o.Status != domain.OrderPending {
			return fmt.Errorf("%w: only pending orders can be cancelled", domain.ErrInvalidInput)
		}
		o.Status = domain.OrderCancelled
		o.UpdatedAt = s.nowFn()
		return nil
	})
	if err != nil {
		return domain.Order{}, u.fail(err)
	}

	released := make([]domain.CartLine, 0, len(updated.Lines))
	for _, l := range updated.Lines {
		released = append(released, domain.CartLine{
			SKU:       l.SKU,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
		})
	}
	s.releaseInventory(ctx, u, updated.ID, released)

	if err := u.emit(domain.TopicOrderEvents, domain.EventOrderCancelled, updated.ID, orderEventPayload{
		OrderID:    updated.ID,
		UserID:     user.ID,
		Status:     updated.Status,
		TotalCents: updated.TotalCents,
	}); err != nil {
		return domain.Order{}, u.fail(err)
	}
	return updated, u.finish(ctx)
}
