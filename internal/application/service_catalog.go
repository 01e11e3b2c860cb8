package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/shoplane/commerce-core/internal/domain"
)

const defaultPageLimit = 20

func pageLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return defaultPageLimit
	}
	return limit
}

// GetProduct serves the public product detail page.
func (s *Service) GetProduct(ctx context.Context, p *domain.Principal, id string) (domain.Product, error) {
	if err := domain.Authorize(p, domain.OpBrowseCatalog); err != nil {
		return domain.Product{}, err
	}
	return s.deps.Products.Get(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context, p *domain.Principal, req ListProductsRequest) ([]domain.Product, string, error) {
	if err := domain.Authorize(p, domain.OpBrowseCatalog); err != nil {
		return nil, "", err
	}
	return s.deps.Products.List(ctx, req.CategoryID, req.PageToken, pageLimit(req.Limit))
}

func (s *Service) ListCategories(ctx context.Context, p *domain.Principal, pageToken string, limit int) ([]domain.Category, string, error) {
	if err := domain.Authorize(p, domain.OpBrowseCatalog); err != nil {
		return nil, "", err
	}
	return s.deps.Categories.List(ctx, pageToken, pageLimit(limit))
}

func (s *Service) CreateCategory(ctx context.Context, p *domain.Principal, req CreateCategoryRequest) (domain.Category, error) {
	u := s.begin(domain.OpManageCatalog, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Category{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, u.fail(fmt.Errorf("%w: category name required", domain.ErrInvalidInput))
	}
	if req.ParentID != "" {
		if _, err := s.deps.Categories.Get(ctx, req.ParentID); err != nil {
			return domain.Category{}, u.fail(fmt.Errorf("parent category: %w", err))
		}
	}

	now := s.nowFn()
	created, err := s.deps.Categories.Create(writeContext(ctx), domain.Category{
		ID:        s.idFn(),
		Name:      name,
		ParentID:  req.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Category{}, u.fail(err)
	}
	if err := u.emit(domain.TopicProductEvents, domain.EventCategoryCreated, created.ID, created); err != nil {
		return domain.Category{}, u.fail(err)
	}
	return created, u.finish(ctx)
}

// CreateProduct registers a product and its inventory counter together. The
// counter starts at the declared initial stock; it is the only record order
// placement decrements.
func (s *Service) CreateProduct(ctx context.Context, p *domain.Principal, req CreateProductRequest) (domain.Product, error) {
	u := s.begin(domain.OpManageCatalog, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Product{}, err
	}
	if strings.TrimSpace(req.SKU) == "" || strings.TrimSpace(req.Name) == "" {
		return domain.Product{}, u.fail(fmt.Errorf("%w: sku and name required", domain.ErrInvalidInput))
	}
	if req.PriceCents <= 0 {
		return domain.Product{}, u.fail(fmt.Errorf("%w: price must be positive", domain.ErrInvalidInput))
	}
	if req.InitialStock < 0 {
		return domain.Product{}, u.fail(fmt.Errorf("%w: initial stock cannot be negative", domain.ErrInvalidInput))
	}
	if req.CategoryID != "" {
		if _, err := s.deps.Categories.Get(ctx, req.CategoryID); err != nil {
			return domain.Product{}, u.fail(fmt.Errorf("category: %w", err))
		}
	}

	now := s.nowFn()
	product := domain.Product{
		ID:          s.idFn(),
		SKU:         strings.TrimSpace(req.SKU),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		CategoryID:  req.CategoryID,
		PriceCents:  req.PriceCents,
		Active:      req.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.deps.Products.Create(writeContext(ctx), product)
	if err != nil {
		return domain.Product{}, u.fail(err)
	}
	if _, err := s.deps.Inventory.Create(writeContext(ctx), domain.InventoryCounter{
		ID:        created.ID,
		ProductID: created.ID,
		Available: req.InitialStock,
		UpdatedAt: now,
	}); err != nil {
		return domain.Product{}, u.fail(fmt.Errorf("inventory counter: %w", err))
	}

	if err := u.emit(domain.TopicProductEvents, domain.EventProductCreated, created.ID, created); err != nil {
		return domain.Product{}, u.fail(err)
	}
	return created, u.finish(ctx)
}

func (s *Service) UpdateProduct(ctx context.Context, p *domain.Principal, req UpdateProductRequest) (domain.Product, error) {
	u := s.begin(domain.OpManageCatalog, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Product{}, err
	}

	updated, err := s.deps.Products.Update(writeContext(ctx), req.ProductID, req.Revision, func(prod *domain.Product) error {
		if req.Name != nil {
			if strings.TrimSpace(*req.Name) == "" {
				return fmt.Errorf("%w: name cannot be blank", domain.ErrInvalidInput)
			}
			prod.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			prod.Description = *req.Description
		}
		if req.PriceCents != nil {
			if *req.PriceCents <= 0 {
				return fmt.Errorf("%w: price must be positive", domain.ErrInvalidInput)
			}
			prod.PriceCents = *req.PriceCents
		}
		if req.Active != nil {
			prod.Active = *req.Active
		}
		prod.UpdatedAt = s.nowFn()
		return nil
	})
	if err != nil {
		return domain.Product{}, u.fail(err)
	}

	if err := u.emit(domain.TopicProductEvents, domain.EventProductUpdated, updated.ID, updated); err != nil {
		return domain.Product{}, u.fail(err)
	}
	return updated, u.finish(ctx)
}

func (s *Service) DeleteProduct(ctx context.Context, p *domain.Principal, req DeleteProductRequest) error {
	u := s.begin(domain.OpManageCatalog, req.RequestID)
	if err := u.authorize(p); err != nil {
		return err
	}
	if err := s.deps.Products.Delete(writeContext(ctx), req.ProductID, req.Revision); err != nil {
		return u.fail(err)
	}
	if err := u.emit(domain.TopicProductEvents, domain.EventProductDeleted, req.ProductID, map[string]string{"product_id": req.ProductID}); err != nil {
		return u.fail(err)
	}
	return u.finish(ctx)
}

func (s *Service) ListReviews(ctx context.Context, p *domain.Principal, req ListReviewsRequest) ([]domain.Review, string, error) {
	if err := domain.Authorize(p, domain.OpBrowseReviews); err != nil {
		return nil, "", err
	}
	return s.deps.Reviews.ListByProduct(ctx, req.ProductID, req.PageToken, pageLimit(req.Limit))
}

func (s *Service) WriteReview(ctx context.Context, p *domain.Principal, req WriteReviewRequest) (domain.Review, error) {
	u := s.begin(domain.OpWriteReview, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Review{}, err
	}
	if req.Rating < 1 || req.Rating > 5 {
		return domain.Review{}, u.fail(fmt.Errorf("%w: rating must be 1..5", domain.ErrInvalidInput))
	}
	if _, err := s.deps.Products.Get(ctx, req.ProductID); err != nil {
		return domain.Review{}, u.fail(fmt.Errorf("product: %w", err))
	}
	user, err := s.deps.Users.GetBySubject(ctx, p.Subject)
	if err != nil {
		return domain.Review{}, u.fail(err)
	}

	now := s.nowFn()
	created, err := s.deps.Reviews.Create(writeContext(ctx), domain.Review{
		ID:        s.idFn(),
		ProductID: req.ProductID,
		UserID:    user.ID,
		Rating:    req.Rating,
		Body:      req.Body,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Review{}, u.fail(err)
	}

	if err := u.emit(domain.TopicProductEvents, domain.EventReviewPublished, req.ProductID, created); err != nil {
		return domain.Review{}, u.fail(err)
	}
	return created, u.finish(ctx)
}
