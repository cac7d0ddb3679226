package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fazaproducts/storefront/internal/platform/httpx"
)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 30 * time.Second

	errorNotFoundCode = "route_not_found"
)

// RouteRegistrar registers a group of routes on r.
type RouteRegistrar func(r chi.Router)

type mount struct {
	path     string
	register RouteRegistrar
}

type routerConfig struct {
	global []func(http.Handler) http.Handler
	api    []func(http.Handler) http.Handler
	health *HealthHandlers
	mounts []mount
}

// Option configures NewRouter.
type Option func(*routerConfig)

// NewRouter builds the storefront router:
//
//	/healthz, /readyz          probes, outside the API middleware chain
//	/api/v1/catalog/...        products and reviews
//	/api/v1/cart/...           the shopper's cart
//
// Unknown paths and methods answer with the JSON error envelope.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		global: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(requestTimeout),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	useAll(r, cfg.global)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" is not supported on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		useAll(api, cfg.api)
		for _, m := range cfg.mounts {
			api.Route(m.path, func(group chi.Router) { m.register(group) })
		}
	})
	return r
}

func useAll(r chi.Router, mws []func(http.Handler) http.Handler) {
	for _, mw := range mws {
		if mw != nil {
			r.Use(mw)
		}
	}
}

// WithMiddlewares appends middleware applied to every request, probes included.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.global = append(cfg.global, mw...) }
}

// WithAPIMiddlewares appends middleware applied only under /api/v1.
func WithAPIMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.api = append(cfg.api, mw...) }
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithRoutes mounts reg under /api/v1 + path. A nil registrar is ignored.
func WithRoutes(path string, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		if reg != nil {
			cfg.mounts = append(cfg.mounts, mount{path: path, register: reg})
		}
	}
}

// WithCatalogRoutes mounts product and review routes under /api/v1/catalog.
func WithCatalogRoutes(reg RouteRegistrar) Option { return WithRoutes("/catalog", reg) }

// WithCartRoutes mounts cart routes under /api/v1/cart.
func WithCartRoutes(reg RouteRegistrar) Option { return WithRoutes("/cart", reg) }
