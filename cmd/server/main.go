package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/receiptsplit/internal/config"
	"github.com/mmynk/receiptsplit/internal/httpapi"
	"github.com/mmynk/receiptsplit/internal/metrics"
	"github.com/mmynk/receiptsplit/internal/middleware"
	"github.com/mmynk/receiptsplit/internal/payref"
	"github.com/mmynk/receiptsplit/internal/resolver"
	"github.com/mmynk/receiptsplit/internal/service"
	"github.com/mmynk/receiptsplit/internal/storage"
	"github.com/mmynk/receiptsplit/internal/storage/postgres"
	"github.com/mmynk/receiptsplit/internal/storage/sqlite"
	"github.com/mmynk/receiptsplit/pkg/logging"
)

// sessionStore is a storage.Store that can report readiness.
type sessionStore interface {
	storage.Store
	httpapi.Pinger
}

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := metrics.NewRegistry()

	fetcher, closeCache, err := newFetcher(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer closeCache()

	refs := payref.New(cfg.PublicOrigin)
	svc := service.NewSessionService(store, resolver.New(fetcher), refs, service.WithMetrics(reg))
	rpcPath, rpcHandler := service.NewHandler(svc, connect.WithInterceptors(middleware.LoggingInterceptor()))

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(httpapi.Deps{
		Sessions: svc,
		Ready:    store,
		Refs:     refs,
		RPCPath:  rpcPath,
		RPC:      rpcHandler,
		Metrics:  reg.Handler(),
	})

	// h2c lets Connect clients speak HTTP/2 without TLS.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", cfg.HTTPAddr, "rpc_path", rpcPath, "origin", refs.Origin())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (sessionStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		store, err := postgres.Connect(ctx, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		slog.Info("Storage initialized", "driver", cfg.StoreDriver)
		return store, nil
	default:
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		slog.Info("Storage initialized", "driver", cfg.StoreDriver, "database", cfg.DBPath)
		return store, nil
	}
}

// newFetcher builds the resolution client, fronted by the redis cache when
// REDIS_ADDR is set. The returned func closes the cache connection.
func newFetcher(ctx context.Context, cfg *config.Config, reg *metrics.Registry) (resolver.Fetcher, func(), error) {
	var fetcher resolver.Fetcher = resolver.NewClient(cfg.ResolverURL, &http.Client{Timeout: cfg.ResolverTimeout})
	if cfg.ResolverURL == "" {
		slog.Warn("RESOLVER_URL is not set; scanned links cannot be resolved")
	}
	if cfg.RedisAddr == "" {
		return fetcher, func() {}, nil
	}

	rdb, err := resolver.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("Resolution cache enabled", "redis", cfg.RedisAddr, "ttl", cfg.ResolveCacheTTL)
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			slog.Warn("Failed to close redis client", "error", err)
		}
	}
	return resolver.NewCached(fetcher, rdb, cfg.ResolveCacheTTL, reg), closeFn, nil
}
