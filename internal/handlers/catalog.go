package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fazaproducts/storefront/internal/catalog"
	"github.com/fazaproducts/storefront/internal/domain"
	"github.com/fazaproducts/storefront/internal/platform/httpx"
	"github.com/fazaproducts/storefront/internal/platform/requestctx"
	"github.com/fazaproducts/storefront/internal/reviews"
)

// ProductCatalog is the read side of the catalog store used by the HTTP layer.
type ProductCatalog interface {
	All() []domain.Product
	FilterByCategory(category domain.Category) []domain.Product
	Find(id int64) (domain.Product, error)
	BestSellers() []domain.Product
	Offers() []domain.Product
	Related(id int64, limit int) ([]domain.Product, error)
}

// ReviewService reads and writes product reviews.
type ReviewService interface {
	ProductReviews(ctx context.Context, productID int64) (reviews.ProductReviews, error)
	SubmitReview(ctx context.Context, sub reviews.Submission) (domain.Review, error)
}

// CatalogHandlers exposes product listing and product detail endpoints.
type CatalogHandlers struct {
	catalog       ProductCatalog
	reviews       ReviewService
	currencyLabel string
	relatedLimit  int
}

// CatalogOption customises CatalogHandlers.
type CatalogOption func(*CatalogHandlers)

// WithCatalogCurrencyLabel sets the label used for formatted prices.
func WithCatalogCurrencyLabel(label string) CatalogOption {
	return func(h *CatalogHandlers) {
		if strings.TrimSpace(label) != "" {
			h.currencyLabel = label
		}
	}
}

// WithRelatedLimit sets how many related products the detail view returns.
func WithRelatedLimit(limit int) CatalogOption {
	return func(h *CatalogHandlers) {
		if limit > 0 {
			h.relatedLimit = limit
		}
	}
}

// NewCatalogHandlers constructs CatalogHandlers. reviews may be nil, in which case detail views
// report reviews as unavailable.
func NewCatalogHandlers(products ProductCatalog, reviews ReviewService, opts ...CatalogOption) *CatalogHandlers {
	h := &CatalogHandlers{
		catalog:       products,
		reviews:       reviews,
		currencyLabel: defaultCurrencyLabel,
		relatedLimit:  catalog.DefaultRelatedLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/best-sellers", h.listBestSellers)
	r.Get("/offers", h.listOffers)
}

type productListResponse struct {
	Category string           `json:"category"`
	Items    []productPayload `json:"items"`
	Count    int              `json:"count"`
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	category := domain.CategoryAll
	if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" && raw != string(domain.CategoryAll) {
		parsed, ok := domain.ParseCategory(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_category", "unknown category "+raw, http.StatusBadRequest).
				WithDetails(map[string]any{"allowed": []string{
					string(domain.CategoryAll),
					string(domain.CategoryFoodMix),
					string(domain.CategoryBeauty),
					string(domain.CategoryHealthMix),
				}}))
			return
		}
		category = parsed
	}

	items := buildProductList(h.currencyLabel, h.catalog.FilterByCategory(category))
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Category: string(category),
		Items:    items,
		Count:    len(items),
	})
}

func (h *CatalogHandlers) listBestSellers(w http.ResponseWriter, r *http.Request) {
	h.writeSubset(w, r, func(c ProductCatalog) []domain.Product { return c.BestSellers() })
}

func (h *CatalogHandlers) listOffers(w http.ResponseWriter, r *http.Request) {
	h.writeSubset(w, r, func(c ProductCatalog) []domain.Product { return c.Offers() })
}

func (h *CatalogHandlers) writeSubset(w http.ResponseWriter, r *http.Request, pick func(ProductCatalog) []domain.Product) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}
	items := buildProductList(h.currencyLabel, pick(h.catalog))
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

type productDetailResponse struct {
	Product          productPayload   `json:"product"`
	Related          []productPayload `json:"related"`
	Reviews          []reviewPayload  `json:"reviews"`
	Aggregate        aggregatePayload `json:"aggregate"`
	ReviewsAvailable bool             `json:"reviewsAvailable"`
	EmptyMessage     string           `json:"emptyMessage,omitempty"`
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}
	id, ok := productIDParam(r)
	if !ok {
		writeProductNotFound(ctx, w)
		return
	}
	product, err := h.catalog.Find(id)
	if err != nil {
		if !errors.Is(err, catalog.ErrProductNotFound) {
			requestctx.Logger(ctx).Warn("catalog lookup failed", zap.Int64("product_id", id), zap.Error(err))
		}
		writeProductNotFound(ctx, w)
		return
	}

	related, err := h.catalog.Related(id, h.relatedLimit)
	if err != nil {
		related = nil
	}

	section, _ := loadReviewSection(ctx, h.reviews, id)
	writeJSONResponse(w, http.StatusOK, productDetailResponse{
		Product:          buildProductPayload(h.currencyLabel, product),
		Related:          buildProductList(h.currencyLabel, related),
		Reviews:          section.Reviews,
		Aggregate:        section.Aggregate,
		ReviewsAvailable: section.Available,
		EmptyMessage:     section.EmptyMessage,
	})
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}
