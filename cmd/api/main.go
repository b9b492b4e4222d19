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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mahendraputra/storefront-backend/api/controllers"
	"github.com/mahendraputra/storefront-backend/api/routes"
	"github.com/mahendraputra/storefront-backend/internal/cartengine"
	"github.com/mahendraputra/storefront-backend/internal/catalog"
	"github.com/mahendraputra/storefront-backend/internal/rawcart"
	"github.com/mahendraputra/storefront-backend/internal/rawcart/gormstore"
	"github.com/mahendraputra/storefront-backend/internal/rawcart/redisstore"
	"github.com/mahendraputra/storefront-backend/internal/voucher"
	"github.com/mahendraputra/storefront-backend/pkg/config"
	"github.com/mahendraputra/storefront-backend/pkg/db"
	"github.com/mahendraputra/storefront-backend/pkg/logger"
	"github.com/mahendraputra/storefront-backend/pkg/metrics"
	"github.com/mahendraputra/storefront-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	pingers := map[string]controllers.Pinger{}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		pingers["redis"] = redisClient
	}

	provider, dbClient, err := buildCartProvider(cfg, redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap cart store", err)
		os.Exit(1)
	}
	if dbClient != nil {
		defer func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing database", err)
			}
		}()
		pingers["database"] = dbClient
	}

	catalogClient, err := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap catalog client", err)
		os.Exit(1)
	}
	var products cartengine.ProductLoader = catalogClient
	if redisClient != nil {
		products = catalog.NewCachedLoader(catalogClient, redisClient, cfg.Catalog.CacheTTL, logg)
	}

	var vouchers cartengine.VoucherApplier
	if cfg.Voucher.BaseURL != "" {
		vouchers, err = voucher.NewClient(cfg.Voucher.BaseURL, cfg.Voucher.Timeout)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap voucher client", err)
			os.Exit(1)
		}
	}

	promRegistry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(promRegistry)

	registry, err := cartengine.NewRegistry(provider, products, vouchers, logg, engineMetrics, cartengine.Config{
		DebounceWindow:   cfg.Engine.DebounceWindow,
		OrphanPurgeDelay: cfg.Engine.OrphanPurgeDelay,
		CommitTimeout:    cfg.Engine.CommitTimeout,
	}, cfg.Engine.SessionIdleTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap cart registry", err)
		os.Exit(1)
	}
	defer registry.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"cart_store": cfg.CartStore.Mode,
	})
	logg.Info(ctx, "starting storefront api")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, registry, pingers, promRegistry),
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			registry.Close()
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown", err)
		}
	}

	// The deferred registry.Close flushes debounced edits before exit.
	logg.Info(ctx, "api server shutting down gracefully")
}

// buildCartProvider wires the upstream cart contract for the configured
// mode: the remote storefront API, an embedded redis document store, or the
// relational store.
func buildCartProvider(cfg *config.Config, redisClient *redis.Client, logg *logger.Logger) (rawcart.Provider, *db.Client, error) {
	switch cfg.CartStore.Mode {
	case config.CartStoreModeRemote:
		provider, err := rawcart.NewHTTPProvider(cfg.CartStore.BaseURL, cfg.CartStore.Timeout)
		return provider, nil, err

	case config.CartStoreModeRedis:
		provider, err := redisstore.NewProvider(redisClient, cfg.CartStore.RedisTTL)
		return provider, nil, err

	case config.CartStoreModeDB:
		dbClient, err := db.New(context.Background(), cfg.DB, logg)
		if err != nil {
			return nil, nil, err
		}
		provider, err := gormstore.NewProvider(dbClient.DB())
		if err != nil {
			dbClient.Close()
			return nil, nil, err
		}
		return provider, dbClient, nil
	}
	return nil, nil, fmt.Errorf("unknown cart store mode %q", cfg.CartStore.Mode)
}
