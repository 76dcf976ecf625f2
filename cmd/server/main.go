package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/api"
	"storefront/internal/api/handlers"
	"storefront/internal/auth"
	"storefront/internal/cache"
	"storefront/internal/checkout"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"storefront/internal/outbox"
	"storefront/internal/repository"
	"storefront/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := database.LoadConfig()
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New("storefront", cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *database.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := database.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("files", applied))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	products := repository.NewProductRepository(pool)
	categories := repository.NewCategoryRepository(pool)
	profiles := repository.NewProfileRepository(pool)
	carts := repository.NewCartRepository(pool)
	orders := repository.NewOrderRepository(pool, cfg.KafkaOrdersTopic)

	var invalidator handlers.StockInvalidator
	rdb, err := cache.ConnectRedis(ctx, cfg)
	if err != nil {
		logger.Warn("redis unavailable, serving the catalog uncached", zap.Error(err))
	} else {
		defer func() { _ = rdb.Close() }()
		cached := cache.NewCachedProductRepository(products, rdb, cfg.CacheTTL, logger)
		products = cached
		invalidator = cached
	}

	var uploader handlers.ImageUploader
	if cfg.StorageEndpoint != "" {
		client, err := storage.NewMinioClient(cfg)
		if err != nil {
			return err
		}
		up := storage.NewUploader(client, cfg)
		if err := up.EnsureBuckets(ctx); err != nil {
			return err
		}
		uploader = up
	} else {
		logger.Warn("STORAGE_ENDPOINT not set, image uploads are disabled")
	}

	checkoutOpts := checkout.Options{
		Timeout: cfg.RequestTimeout,
		Logger:  logger.Named("checkout"),
		Metrics: metrics.NewCheckoutMetrics(reg),
	}
	if invalidator != nil {
		checkoutOpts.Invalidator = invalidator
	}
	placer := checkout.NewService(
		checkout.NewPostgresStore(pool, carts, profiles, cfg.KafkaOrdersTopic),
		checkoutOpts,
	)

	if brokers := events.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		writer := events.NewWriter(brokers)
		defer func() { _ = writer.Close() }()

		relay := events.NewRelay(outbox.NewStore(pool), writer, logger)
		c, err := relay.Schedule(cfg.OutboxSchedule, 30*time.Second)
		if err != nil {
			return err
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events stay in the outbox")
	}

	router := api.NewRouter(api.Deps{
		Products:        products,
		Categories:      categories,
		Profiles:        profiles,
		Carts:           carts,
		Orders:          orders,
		Movements:       repository.NewStockMovementRepository(pool),
		Dashboard:       repository.NewDashboardRepository(pool),
		Checkout:        placer,
		Auth:            auth.NewClient(cfg.AuthURL, cfg.AuthAnonKey, nil),
		Verifier:        auth.NewVerifier(cfg.AuthJWTSecret),
		Uploader:        uploader,
		Invalidator:     invalidator,
		Ping:            pool.Ping,
		Metrics:         metrics.NewServerMetrics(reg, "api"),
		Gatherer:        reg,
		Logger:          logger,
		AuthRedirectURL: cfg.AuthRedirectURL,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("storefront listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
