package handlers

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/fazaproducts/storefront/internal/cart"
	"github.com/fazaproducts/storefront/internal/domain"
	"github.com/fazaproducts/storefront/internal/platform/httpx"
	"github.com/fazaproducts/storefront/internal/platform/requestctx"
)

const checkoutMessage = "Proceeding to checkout..."

// CartProvider returns the cart belonging to a shopper session.
type CartProvider interface {
	Cart(ctx context.Context, session string) *cart.Store
}

// ProductFinder resolves catalog products by id.
type ProductFinder interface {
	Find(id int64) (domain.Product, error)
}

// CartHandlers exposes the session cart endpoints.
type CartHandlers struct {
	carts         CartProvider
	products      ProductFinder
	currencyLabel string
	clock         func() time.Time
	newReference  func(time.Time) string
}

// CartOption customises CartHandlers.
type CartOption func(*CartHandlers)

// WithCartCurrencyLabel sets the label used for formatted prices.
func WithCartCurrencyLabel(label string) CartOption {
	return func(h *CartHandlers) {
		if strings.TrimSpace(label) != "" {
			h.currencyLabel = label
		}
	}
}

// WithCartClock overrides the clock used for checkout references.
func WithCartClock(clock func() time.Time) CartOption {
	return func(h *CartHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewCartHandlers constructs CartHandlers.
func NewCartHandlers(carts CartProvider, products ProductFinder, opts ...CartOption) *CartHandlers {
	h := &CartHandlers{
		carts:         carts,
		products:      products,
		currencyLabel: defaultCurrencyLabel,
		clock:         time.Now,
		newReference: func(t time.Time) string {
			return "chk_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(t), rand.Reader).String())
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Get("/badge", h.getBadge)
	r.Post("/items", h.addItem)
	r.Patch("/items/{id}", h.updateItem)
	r.Delete("/items/{id}", h.removeItem)
	r.Post("/checkout", h.checkout)
}

func (h *CartHandlers) sessionCart(ctx context.Context, w http.ResponseWriter) (*cart.Store, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return h.carts.Cart(ctx, requestctx.Session(ctx)), true
}

func (h *CartHandlers) writeCart(w http.ResponseWriter, status int, store *cart.Store, sum domain.CartSummary) {
	writeJSONResponse(w, status, buildCartPayload(h.currencyLabel, store.Lines(), sum, store.Degraded()))
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.sessionCart(r.Context(), w)
	if !ok {
		return
	}
	h.writeCart(w, http.StatusOK, store, store.Summary())
}

func (h *CartHandlers) getBadge(w http.ResponseWriter, r *http.Request) {
	store, ok := h.sessionCart(r.Context(), w)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int{"count": store.BadgeCount()})
}

type addItemRequest struct {
	ProductID json.Number `json:"productId"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store, ok := h.sessionCart(ctx, w)
	if !ok {
		return
	}
	var req addItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := req.ProductID.Int64()
	if err != nil || id <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_product_id", "productId must be a positive integer", http.StatusBadRequest))
		return
	}
	if h.products == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}
	product, err := h.products.Find(id)
	if err != nil {
		writeProductNotFound(ctx, w)
		return
	}
	sum := store.AddItem(ctx, product)
	h.writeCart(w, http.StatusOK, store, sum)
}

type updateItemRequest struct {
	Delta *int `json:"delta"`
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store, ok := h.sessionCart(ctx, w)
	if !ok {
		return
	}
	id, ok := productIDParam(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_product_id", "product id must be a positive integer", http.StatusBadRequest))
		return
	}
	var req updateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Delta == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "delta is required", http.StatusBadRequest))
		return
	}
	if *req.Delta > cart.MaxLineQuantity || *req.Delta < -cart.MaxLineQuantity {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "delta must be between -"+strconv.Itoa(cart.MaxLineQuantity)+" and "+strconv.Itoa(cart.MaxLineQuantity), http.StatusBadRequest).
			WithDetails(map[string]any{"maxQuantity": cart.MaxLineQuantity}))
		return
	}
	sum := store.SetQuantityDelta(ctx, id, *req.Delta)
	h.writeCart(w, http.StatusOK, store, sum)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store, ok := h.sessionCart(ctx, w)
	if !ok {
		return
	}
	id, ok := productIDParam(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_product_id", "product id must be a positive integer", http.StatusBadRequest))
		return
	}
	sum := store.RemoveItem(ctx, id)
	h.writeCart(w, http.StatusOK, store, sum)
}

type checkoutResponse struct {
	Reference string             `json:"reference"`
	Message   string             `json:"message"`
	Summary   cartSummaryPayload `json:"summary"`
}

// checkout acknowledges the request without creating an order.
func (h *CartHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store, ok := h.sessionCart(ctx, w)
	if !ok {
		return
	}
	sum := store.Summary()
	if sum.Items == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart is empty", http.StatusBadRequest))
		return
	}
	ref := h.newReference(h.clock())
	requestctx.Logger(ctx).Info("checkout requested",
		zap.String("reference", ref),
		zap.Int("items", sum.Items),
		zap.Int64("total", sum.Total),
	)
	writeJSONResponse(w, http.StatusAccepted, checkoutResponse{
		Reference: ref,
		Message:   checkoutMessage,
		Summary:   buildCartSummaryPayload(h.currencyLabel, sum),
	})
}
