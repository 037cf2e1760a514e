package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foodeli/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	orders     RouteRegistrar
	payments   RouteRegistrar
	webhooks   RouteRegistrar
	admin      RouteRegistrar
	cart       RouteRegistrar
	favourites RouteRegistrar
	foods      RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const defaultTimeout = 60 * time.Second

// NewRouter constructs the chi router with shared middleware and route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers(nil)
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	mount := func(parent chi.Router, path string, registrar RouteRegistrar) {
		parent.Route(path, func(group chi.Router) {
			if registrar != nil {
				registrar(group)
				return
			}
			group.HandleFunc("/*", func(w http.ResponseWriter, req *http.Request) {
				httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s is not available", path), http.StatusNotImplemented))
			})
		})
	}

	r.Route("/user", func(user chi.Router) {
		mount(user, "/order", cfg.orders)
		mount(user, "/payment", func(payment chi.Router) {
			// Provider callbacks carry their own signature, never a bearer token.
			if cfg.webhooks != nil {
				cfg.webhooks(payment)
			}
			payment.Group(func(authed chi.Router) {
				if cfg.payments != nil {
					cfg.payments(authed)
				}
			})
		})
		mount(user, "/admin", cfg.admin)
		mount(user, "/cart", cfg.cart)
		mount(user, "/favorite", cfg.favourites)
	})

	mount(r, "/food", cfg.foods)

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers installs probe handlers backed by dependency checks.
func WithHealthHandlers(health *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = health
	}
}

// WithOrderRoutes installs the authenticated order endpoints.
func WithOrderRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = registrar
	}
}

// WithPaymentRoutes installs the authenticated payment endpoints.
func WithPaymentRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.payments = registrar
	}
}

// WithWebhookRoutes installs the unauthenticated provider callback endpoints.
func WithWebhookRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.webhooks = registrar
	}
}

// WithAdminRoutes installs admin-only order management endpoints.
func WithAdminRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.admin = registrar
	}
}

// WithCartRoutes installs the authenticated cart endpoints.
func WithCartRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.cart = registrar
	}
}

// WithFavouriteRoutes installs the authenticated favourites endpoints.
func WithFavouriteRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.favourites = registrar
	}
}

// WithFoodRoutes installs the catalog endpoints.
func WithFoodRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.foods = registrar
	}
}
