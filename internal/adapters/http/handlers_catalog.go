package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shoplane/commerce-core/internal/application"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	items, next, err := h.service.ListProducts(r.Context(), principalFromRequest(r), application.ListProductsRequest{
		CategoryID: r.URL.Query().Get("category_id"),
		PageToken:  r.URL.Query().Get("page_token"),
		Limit:      parseIntDefault(r.URL.Query().Get("limit"), 0),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "list_products", err)
		return
	}
	writePage(w, items, next)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), principalFromRequest(r), chi.URLParam(r, "product_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "get_product", err)
		return
	}
	writeEntity(w, http.StatusOK, product, product.Revision)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	items, next, err := h.service.ListCategories(r.Context(), principalFromRequest(r),
		r.URL.Query().Get("page_token"),
		parseIntDefault(r.URL.Query().Get("limit"), 0))
	if err != nil {
		writeMappedError(r.Context(), w, "list_categories", err)
		return
	}
	writePage(w, items, next)
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	items, next, err := h.service.ListReviews(r.Context(), principalFromRequest(r), application.ListReviewsRequest{
		ProductID: chi.URLParam(r, "product_id"),
		PageToken: r.URL.Query().Get("page_token"),
		Limit:     parseIntDefault(r.URL.Query().Get("limit"), 0),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "list_reviews", err)
		return
	}
	writePage(w, items, next)
}

func (h *Handler) writeReview(w http.ResponseWriter, r *http.Request) {
	var body writeReviewBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "write_review", err)
		return
	}
	req := application.WriteReviewRequest{
		RequestID: requestIDFromContext(r.Context()),
		ProductID: chi.URLParam(r, "product_id"),
		Rating:    body.Rating,
		Body:      body.Body,
	}

	review, err := h.service.WriteReview(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "write_review", err)
		return
	}
	writeEntity(w, http.StatusCreated, review, review.Revision)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var body createCategoryBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "create_category", err)
		return
	}
	req := application.CreateCategoryRequest{
		RequestID: requestIDFromContext(r.Context()),
		Name:      body.Name,
		ParentID:  body.ParentID,
	}

	category, err := h.service.CreateCategory(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_category", err)
		return
	}
	writeEntity(w, http.StatusCreated, category, category.Revision)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var body createProductBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "create_product", err)
		return
	}
	req := application.CreateProductRequest{
		RequestID:    requestIDFromContext(r.Context()),
		SKU:          body.SKU,
		Name:         body.Name,
		Description:  body.Description,
		CategoryID:   body.CategoryID,
		PriceCents:   body.PriceCents,
		InitialStock: body.InitialStock,
		Active:       body.Active,
	}

	product, err := h.service.CreateProduct(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_product", err)
		return
	}
	writeEntity(w, http.StatusCreated, product, product.Revision)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	rev, err := revisionFromHeader(r)
	if err != nil {
		writeValidationError(r.Context(), w, "update_product", err)
		return
	}
	var body updateProductBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "update_product", err)
		return
	}
	req := application.UpdateProductRequest{
		RequestID:   requestIDFromContext(r.Context()),
		ProductID:   chi.URLParam(r, "product_id"),
		Revision:    rev,
		Name:        body.Name,
		Description: body.Description,
		PriceCents:  body.PriceCents,
		Active:      body.Active,
	}

	product, err := h.service.UpdateProduct(r.Context(), principalFromRequest(r), req)
	if err != nil {
		writeMappedError(r.Context(), w, "update_product", err)
		return
	}
	writeEntity(w, http.StatusOK, product, product.Revision)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	rev, err := revisionFromHeader(r)
	if err != nil {
		writeValidationError(r.Context(), w, "delete_product", err)
		return
	}
	req := application.DeleteProductRequest{
		RequestID: requestIDFromContext(r.Context()),
		ProductID: chi.URLParam(r, "product_id"),
		Revision:  rev,
	}
	if err := h.service.DeleteProduct(r.Context(), principalFromRequest(r), req); err != nil {
		writeMappedError(r.Context(), w, "delete_product", err)
		return
	}
	writeMessage(w, http.StatusOK, "product deleted")
}
