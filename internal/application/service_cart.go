package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/shoplane/commerce-core/internal/domain"
)

// cart event payload; keyed by cart so consumers can fold a cart's history.
type cartEventPayload struct {
	CartID     string `json:"cart_id"`
	UserID     string `json:"user_id"`
	SKU        string `json:"sku,omitempty"`
	Quantity   int64  `json:"quantity,omitempty"`
	TotalCents int64  `json:"total_cents"`
}

// GetCart returns the caller's active cart, creating an empty one on first
// touch so the client never sees NotFound for its own cart.
func (s *Service) GetCart(ctx context.Context, p *domain.Principal) (domain.Cart, error) {
	if err := domain.Authorize(p, domain.OpViewCart); err != nil {
		return domain.Cart{}, err
	}
	user, err := s.currentUser(ctx, p)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.activeCart(ctx, user.ID)
}

func (s *Service) activeCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.deps.Carts.GetActiveByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Cart{}, err
	}
	now := s.nowFn()
	cart = domain.Cart{
		ID:        s.idFn(),
		UserID:    userID,
		Status:    domain.CartActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.deps.Carts.Create(writeContext(ctx), cart)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return s.deps.Carts.GetActiveByUser(ctx, userID)
		}
		return domain.Cart{}, err
	}
	return created, nil
}

// AddCartItem appends or merges a line. The product is resolved by SKU so the
// cart snapshots the price at add time.
func (s *Service) AddCartItem(ctx context.Context, p *domain.Principal, req AddCartItemRequest) (domain.Cart, error) {
	u := s.begin(domain.OpMutateCart, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Cart{}, err
	}
	if req.Quantity <= 0 {
		return domain.Cart{}, u.fail(fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput))
	}
	user, err := s.currentUser(ctx, p)
	if err != nil {
		return domain.Cart{}, u.fail(err)
	}
	product, err := s.productBySKU(ctx, req.SKU)
	if err != nil {
		return domain.Cart{}, u.fail(err)
	}

	cart, err := s.activeCart(ctx, user.ID)
	if err != nil {
		return domain.Cart{}, u.fail(err)
	}
	updated, err := s.deps.Carts.Update(writeContext(ctx), cart.ID, user.ID, cart.Revision, func(c *domain.Cart) error {
		if i := c.LineFor(req.SKU); i >= 0 {
			c.Lines[i].Quantity += req.Quantity
		} else {
			c.Lines = append(c.Lines, domain.CartLine{
				SKU:        product.SKU,
				ProductID:  product.ID,
				Quantity:   req.Quantity,
				PriceCents: product.PriceCents,
			})
		}
		c.UpdatedAt = s.nowFn()
		return nil
	})
	if err != nil {
		return domain.Cart{}, u.fail(err)
	}

	if err := u.emit(domain.TopicOrderEvents, domain.EventCartItemAdded, updated.ID, cartEventPayload{
		CartID:     updated.ID,
		UserID:     user.ID,
		SKU:        req.SKU,
		Quantity:   req.Quantity,
		TotalCents: updated.TotalCents(),
	}); err != nil {
		return domain.Cart{}, u.fail(err)
	}
	return updated, u.finish(ctx)
}

// UpdateCartItem sets a line's quantity under the caller's observed cart
// revision. A stale revision surfaces ErrConflict without applying.
func (s *Service) UpdateCartItem(ctx context.Context, p *domain.Principal, req UpdateCartItemRequest) (domain.Cart, error) {
	u := s.begin(domain.OpMutateCart, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Cart{}, err
	}
	if req.Quantity <= 0 {
		return domain.Cart{}, u.fail(fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput))
	}
	user, err := s.currentUser(ctx, p)
	if err != nil {
		return domain.Cart{}, u.fail(err)
	}
	cart, err := s.deps.Carts.GetActiveByUser(ctx, user.ID)
	if err != nil {
		return domain.Cart{}, u.fail(err)
	}

	updated, err := s.deps.Carts.Update(writeContext(ctx), cart.ID, user.ID, req.Revision, func(c *domain.Cart) error {
		i := c.LineFor(req.SKU)
		if i < 0 {
			return fmt.Errorf("%w: sku %s not in cart", domain.ErrNotFound, req.SKU)
		}
		c.Lines[i].Quantity = req.Quantity
		c.UpdatedAt = s.nowFn()
		return nil
	})
	if err != nil {
		return domain.Cart{}, u.fail(err)
	}

	if err := u.emit(domain.TopicOrderEvents, domain.EventCartItemUpdated, updated.ID, cartEventPayload{
		CartID:     updated.ID,
		UserID:     user.ID,
		SKU:        req.SKU,
		Quantity:   req.Quantity,
		TotalCents: updated.TotalCents(),
	}); err != nil {
		return domain.Cart{}, u.fail(err)
	}
	return updated, u.finish(ctx)
}

func (s *Service) RemoveCartItem(ctx context.Context, p *domain.Principal, req RemoveCartItemRequest) (domain.Cart, error) {
	u := s.begin(domain.OpMutateCart, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Cart{}, err
	}
	user, err := s.currentUser(ctx, p)
	if err != nil {
		return domain.Cart{}, u.fail(err)
	}
	cart, err := s.deps.Carts.GetActiveByUser(ctx, user.ID)
	if err != nil {
		return domain.Cart{}, u.fail(err)
	}

	updated, err := s.deps.Carts.Update(writeContext(ctx), cart.ID, user.ID, req.Revision, func(c *domain.Cart) error {
		i := c.LineFor(req.SKU)
		if i < 0 {
			return fmt.Errorf("%w: sku %s not in cart", domain.ErrNotFound, req.SKU)
		}
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		c.UpdatedAt = s.nowFn()
		return nil
	})
	if err != nil {
		return domain.Cart{}, u.fail(err)
	}

	if err := u.emit(domain.TopicOrderEvents, domain.EventCartItemRemoved, updated.ID, cartEventPayload{
		CartID:     updated.ID,
		UserID:     user.ID,
		SKU:        req.SKU,
		TotalCents: updated.TotalCents(),
	}); err != nil {
		return domain.Cart{}, u.fail(err)
	}
	return updated, u.finish(ctx)
}

func (s *Service) ClearCart(ctx context.Context, p *domain.Principal, req ClearCartRequest) (domain.Cart, error) {
	u := s.begin(domain.OpMutateCart, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Cart{}, err
	}
	user, err := s.currentUser(ctx, p)
	if err != nil {
		return domain.Cart{}, u.fail(err)
	}
	cart, err := s.deps.Carts.GetActiveByUser(ctx, user.ID)
	if err != nil {
		return domain.Cart{}, u.fail(err)
	}

	updated, err := s.deps.Carts.Update(writeContext(ctx), cart.ID, user.ID, req.Revision, func(c *domain.Cart) error {
		c.Lines = nil
		c.UpdatedAt = s.nowFn()
		return nil
	})
	if err != nil {
		return domain.Cart{}, u.fail(err)
	}

	if err := u.emit(domain.TopicOrderEvents, domain.EventCartCleared, updated.ID, cartEventPayload{
		CartID: updated.ID,
		UserID: user.ID,
	}); err != nil {
		return domain.Cart{}, u.fail(err)
	}
	return updated, u.finish(ctx)
}

// productBySKU resolves a SKU to its active product. Listing by SKU is a
// filtered query on the catalog collection.
func (s *Service) productBySKU(ctx context.Context, sku string) (domain.Product, error) {
	if sku == "" {
		return domain.Product{}, fmt.Errorf("%w: sku required", domain.ErrInvalidInput)
	}
	product, err := s.deps.Products.GetBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, fmt.Errorf("sku %s: %w", sku, err)
	}
	if !product.Active {
		return domain.Product{}, fmt.Errorf("%w: sku %s is not sellable", domain.ErrInvalidInput, sku)
	}
	return product, nil
}
