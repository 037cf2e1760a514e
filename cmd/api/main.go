package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/foodeli/api/internal/di"
	"github.com/foodeli/api/internal/gateway"
	"github.com/foodeli/api/internal/handlers"
	"github.com/foodeli/api/internal/platform/config"
	pfirestore "github.com/foodeli/api/internal/platform/firestore"
	"github.com/foodeli/api/internal/platform/jobs"
	"github.com/foodeli/api/internal/platform/observability"
	firestoreRepo "github.com/foodeli/api/internal/repositories/firestore"
	"github.com/foodeli/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	paystack, err := gateway.NewPaystackClient(cfg.Gateway)
	if err != nil {
		logger.Fatal("failed to initialise payment gateway", zap.Error(err))
	}

	var publisher services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	if cfg.Events.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		publisher, err = jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(cfg.Events.OrderTopic))
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
	}
	defer func() {
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	container, err := di.NewContainer(ctx, cfg, di.Deps{
		Registry: registry,
		Gateway:  paystack,
		Events:   publisher,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	orderHandlers := handlers.NewOrderHandlers(container.Authenticator, container.Services.Orders, cfg.Client.CallbackURL)
	cartHandlers := handlers.NewCartHandlers(container.Authenticator, container.Services.Cart)
	catalogHandlers := handlers.NewCatalogHandlers(container.Authenticator, container.Services.Catalog, container.Services.Favourites)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(registry.Health())),
		handlers.WithOrderRoutes(orderHandlers.OrderRoutes),
		handlers.WithPaymentRoutes(orderHandlers.PaymentRoutes),
		handlers.WithWebhookRoutes(orderHandlers.WebhookRoutes),
		handlers.WithAdminRoutes(orderHandlers.AdminRoutes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithFavouriteRoutes(catalogHandlers.FavouriteRoutes),
		handlers.WithFoodRoutes(catalogHandlers.FoodRoutes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("foodeli api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
