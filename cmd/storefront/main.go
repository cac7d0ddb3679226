package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fazaproducts/storefront/internal/cart"
	"github.com/fazaproducts/storefront/internal/catalog"
	"github.com/fazaproducts/storefront/internal/domain"
	"github.com/fazaproducts/storefront/internal/handlers"
	"github.com/fazaproducts/storefront/internal/platform/config"
	"github.com/fazaproducts/storefront/internal/platform/firebase"
	pfirestore "github.com/fazaproducts/storefront/internal/platform/firestore"
	"github.com/fazaproducts/storefront/internal/platform/idempotency"
	"github.com/fazaproducts/storefront/internal/platform/jobs"
	"github.com/fazaproducts/storefront/internal/platform/observability"
	"github.com/fazaproducts/storefront/internal/platform/requestctx"
	"github.com/fazaproducts/storefront/internal/platform/secrets"
	"github.com/fazaproducts/storefront/internal/reviews"
)

const (
	serviceName       = "storefront"
	cartIdleTimeout   = 30 * time.Minute
	cartSweepInterval = 5 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	logOpts := observability.LoggerOptionsFromEnv()
	logOpts.Fields = []zap.Field{zap.String("version", envOr("STOREFRONT_BUILD_VERSION", "dev"))}
	baseLogger, err := observability.NewLogger(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named(serviceName)
	ctx = requestctx.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(bootstrapProjectID()),
		secrets.WithFallbackFile(envOr("STOREFRONT_SECRETS_FALLBACK_FILE", ".secrets.local")),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, observability.TraceExporter(cfg.Telemetry.TraceExporter))
	if err != nil {
		logger.Fatal("failed to initialise tracing", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(closeCtx); err != nil {
			logger.Warn("tracer shutdown error", zap.Error(err))
		}
	}()

	catalogLogger := logger.Named("catalog")
	source, err := catalog.NewSource(cfg.Catalog.Source, cfg.Catalog.FetchTimeout)
	if err != nil {
		logger.Fatal("invalid catalog source", zap.Error(err))
	}
	products, err := catalog.Load(ctx, source, catalogLogger)
	if err != nil {
		catalogLogger.Warn("continuing with an empty catalog", zap.Error(err))
	}

	var firestoreProvider *pfirestore.Provider
	if cfg.Cart.Backend == "firestore" {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		defer func() {
			if err := firestoreProvider.Close(); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()
	}

	var redisClient *redis.Client
	if cfg.Cart.Backend == "redis" {
		redisClient, err = cart.DialRedis(cfg.Cart.RedisURL)
		if err != nil {
			logger.Fatal("failed to initialise redis client", zap.Error(err))
		}
		defer redisClient.Close()
	}

	cartStorage, err := newCartStorage(cfg.Cart, cfg.Firestore, firestoreProvider, redisClient)
	if err != nil {
		logger.Fatal("failed to initialise cart storage", zap.Error(err), zap.String("backend", cfg.Cart.Backend))
	}

	var idempotencyStore idempotency.Store
	memoryIdempotency := idempotency.NewMemoryStore()
	if redisClient != nil {
		idempotencyStore = idempotency.NewRedisStore(redisClient)
	} else {
		idempotencyStore = memoryIdempotency
	}

	carts, err := cart.NewManager(cart.ManagerDeps{
		Storage: cartStorage,
		BaseKey: cfg.Cart.StorageKey,
		Shipping: domain.ShippingPolicy{
			FreeThreshold: cfg.Cart.FreeShippingThreshold,
			FlatFee:       cfg.Cart.ShippingFee,
		},
		Logger: logger.Named("cart"),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart manager", zap.Error(err))
	}

	reviewLogger := logger.Named("reviews")
	reviewStore, err := newReviewStore(ctx, cfg, products, reviewLogger)
	if err != nil {
		logger.Fatal("failed to initialise review store", zap.Error(err), zap.String("backend", cfg.Reviews.Backend))
	}

	var publisher reviews.EventPublisher
	if topic := strings.TrimSpace(cfg.PubSub.ReviewTopic); topic != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer client.Close()
		eventPublisher, err := jobs.NewReviewEventPublisher(client.Topic(topic))
		if err != nil {
			logger.Fatal("failed to initialise review event publisher", zap.Error(err))
		}
		defer eventPublisher.Stop()
		publisher = eventPublisher
	}

	aggregator, err := reviews.New(reviews.Deps{
		Store:      reviewStore,
		Catalog:    products,
		Publisher:  publisher,
		Logger:     reviewLogger,
		Order:      reviews.Order(cfg.Reviews.Order),
		CommentMax: cfg.Reviews.CommentMax,
	})
	if err != nil {
		logger.Fatal("failed to initialise review aggregator", zap.Error(err))
	}

	catalogHandlers := handlers.NewCatalogHandlers(products, aggregator,
		handlers.WithCatalogCurrencyLabel(cfg.Cart.CurrencyLabel),
		handlers.WithRelatedLimit(cfg.Catalog.RelatedLimit),
	)
	reviewHandlers := handlers.NewReviewHandlers(aggregator)
	cartHandlers := handlers.NewCartHandlers(carts, products,
		handlers.WithCartCurrencyLabel(cfg.Cart.CurrencyLabel),
	)

	healthOpts := []handlers.HealthOption{
		handlers.WithHealthBuildInfo(buildInfoFromEnv(cfg, startedAt)),
		handlers.WithReadinessCheck("catalog", func(context.Context) error {
			if products.Len() == 0 {
				return errors.New("catalog is empty")
			}
			return nil
		}),
	}
	if firestoreProvider != nil {
		healthOpts = append(healthOpts, handlers.WithReadinessCheck("firestore", firestoreProvider.Ping))
	}

	projectID := cfg.Telemetry.ProjectID
	httpLogger := logger.Named("http")
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithAPIMiddlewares(
			handlers.SessionMiddleware(cfg.Server.Environment != "local"),
			idempotency.Middleware(idempotencyStore, idempotency.WithLogger(logger.Named("idempotency"))),
		),
		handlers.WithCatalogRoutes(func(r chi.Router) {
			catalogHandlers.Routes(r)
			reviewHandlers.Routes(r)
		}),
		handlers.WithCartRoutes(cartHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, groupCtx := errgroup.WithContext(signalCtx)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	group.Go(func() error {
		serverLogger.Info("storefront listening",
			zap.Int("products", products.Len()),
			zap.String("cart_backend", cfg.Cart.Backend),
			zap.String("reviews_backend", cfg.Reviews.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(cartSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if evicted := carts.Sweep(cartIdleTimeout); evicted > 0 {
					logger.Named("cart").Debug("evicted idle carts", zap.Int("count", evicted), zap.Int("active", carts.Active()))
				}
				memoryIdempotency.CleanupExpired(time.Now())
			case <-groupCtx.Done():
				return nil
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("storefront stopped with error", zap.Error(err))
	}
}

// newCartStorage builds the durable cart backend named by cfg.Backend.
func newCartStorage(cfg config.CartConfig, fsCfg config.FirestoreConfig, provider *pfirestore.Provider, redisClient *redis.Client) (cart.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return cart.NewMemoryStorage(), nil
	case "file":
		return cart.NewFileStorage(cfg.FileDir)
	case "redis":
		if redisClient == nil {
			return nil, errors.New("redis client is required")
		}
		return cart.NewRedisStorage(redisClient, cfg.TTL), nil
	case "firestore":
		if provider == nil {
			return nil, errors.New("firestore provider is required")
		}
		return cart.NewFirestoreStorage(provider, fsCfg.Collection), nil
	default:
		return nil, fmt.Errorf("unknown cart backend %q", cfg.Backend)
	}
}

func newReviewStore(ctx context.Context, cfg config.Config, products *catalog.Store, logger *zap.Logger) (reviews.Store, error) {
	switch cfg.Reviews.Backend {
	case "memory":
		return reviews.NewMemoryStore(), nil
	case "embedded":
		return reviews.NewEmbeddedStore(reviews.CatalogReviews(products))
	case "firebase":
		client, err := firebase.NewDatabase(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		return reviews.NewFirebaseStore(client, logger)
	default:
		return nil, fmt.Errorf("unknown reviews backend %q", cfg.Reviews.Backend)
	}
}

// bootstrapProjectID picks the Secret Manager project before configuration is loaded, since
// configuration values may themselves be secret references.
func bootstrapProjectID() string {
	if project := envOr("STOREFRONT_SECRETS_PROJECT_ID", ""); project != "" {
		return project
	}
	return envOr("STOREFRONT_FIREBASE_PROJECT_ID", "")
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func buildInfoFromEnv(cfg config.Config, started time.Time) handlers.BuildInfo {
	return handlers.BuildInfo{
		Version:     envOr("STOREFRONT_BUILD_VERSION", "dev"),
		CommitSHA:   envOr("STOREFRONT_BUILD_COMMIT_SHA", "unknown"),
		Environment: cfg.Server.Environment,
		StartedAt:   started,
	}
}
