package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/foodeli/api/internal/gateway"
	"github.com/foodeli/api/internal/platform/auth"
	"github.com/foodeli/api/internal/platform/config"
	"github.com/foodeli/api/internal/platform/observability"
	"github.com/foodeli/api/internal/repositories"
	"github.com/foodeli/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders     services.OrderService
	Cart       services.CartService
	Catalog    services.CatalogService
	Favourites services.FavouriteService
}

// Deps carries the externally constructed collaborators the container wires together.
type Deps struct {
	Registry repositories.Registry
	Gateway  gateway.Adapter
	Events   services.OrderEventPublisher
	Logger   *zap.Logger
}

// Container wires repositories, services, and auth infrastructure for runtime use.
type Container struct {
	Config        config.Config
	Repositories  repositories.Registry
	Services      Services
	Tokens        *auth.TokenManager
	Authenticator *auth.Authenticator
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory
// registries and stub gateways through Deps.
func NewContainer(_ context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment gateway adapter is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("build token manager: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:  deps.Registry.Orders(),
		Users:   deps.Registry.Users(),
		Gateway: deps.Gateway,
		Events:  deps.Events,
		Clock:   time.Now,
		Logger:  observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Users: deps.Registry.Users(),
		Foods: deps.Registry.Foods(),
	})
	if err != nil {
		return nil, fmt.Errorf("build cart service: %w", err)
	}

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Foods: deps.Registry.Foods(),
		Clock: time.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("build catalog service: %w", err)
	}

	favouriteSvc, err := services.NewFavouriteService(services.FavouriteServiceDeps{
		Users: deps.Registry.Users(),
		Foods: deps.Registry.Foods(),
	})
	if err != nil {
		return nil, fmt.Errorf("build favourite service: %w", err)
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services: Services{
			Orders:     orderSvc,
			Cart:       cartSvc,
			Catalog:    catalogSvc,
			Favourites: favouriteSvc,
		},
		Tokens:        tokens,
		Authenticator: auth.NewAuthenticator(tokens),
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}
