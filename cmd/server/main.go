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
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/settleup/internal/auth"
	"github.com/mmynk/settleup/internal/cache"
	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/config"
	"github.com/mmynk/settleup/internal/events"
	"github.com/mmynk/settleup/internal/httpapi"
	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/metrics"
	"github.com/mmynk/settleup/internal/middleware"
	"github.com/mmynk/settleup/internal/service"
	"github.com/mmynk/settleup/internal/storage"
	"github.com/mmynk/settleup/internal/storage/memory"
	"github.com/mmynk/settleup/internal/storage/postgres"
	"github.com/mmynk/settleup/internal/storage/sqlite"
	pb "github.com/mmynk/settleup/pkg/api"
	"github.com/mmynk/settleup/pkg/logging"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()
	logging.Setup()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	snapshots, err := newCache(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, closePublisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	l := ledger.New(store,
		ledger.WithCache(snapshots),
		ledger.WithMetrics(metrics.New(reg)),
		ledger.WithPublisher(publisher),
		ledger.WithStrategy(calculator.Strategy(cfg.Planner)),
		ledger.WithBatchConcurrency(cfg.BatchConcurrency),
	)

	authenticator := newAuthenticator(cfg)
	interceptors := connect.WithInterceptors(
		middleware.RequireAuth(authenticator),
		middleware.LoggingInterceptor(),
	)

	ledgerSvc := service.NewLedgerService(l, store)
	ledgerPath, ledgerHandler := pb.NewLedgerServiceHandler(ledgerSvc, interceptors)
	groupPath, groupHandler := pb.NewGroupServiceHandler(service.NewGroupService(store, l), interceptors)
	expensePath, expenseHandler := pb.NewExpenseServiceHandler(service.NewExpenseService(store, l), interceptors)

	router := httpapi.NewRouter(httpapi.RouterOptions{
		Ledger:        ledgerSvc,
		Authenticator: authenticator,
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Connect: []httpapi.Mount{
			{Path: ledgerPath, Handler: ledgerHandler},
			{Path: groupPath, Handler: groupHandler},
			{Path: expensePath, Handler: expenseHandler},
		},
	})

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		// h2c serves HTTP/2 without TLS for Connect clients.
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting",
			"address", srv.Addr,
			"storage", cfg.StorageBackend,
			"cache", cfg.CacheBackend,
			"auth", cfg.AuthMode,
			"planner", cfg.Planner,
		)
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

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		slog.Warn("Using in-memory storage; data is lost on restart")
		return memory.New(), nil
	case config.StoragePostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "backend", "postgres")
		return store, nil
	default:
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		slog.Info("Storage initialized", "backend", "sqlite", "database", cfg.DBPath)
		return store, nil
	}
}

func newCache(ctx context.Context, cfg *config.Config) (cache.Cache[ledger.Snapshot], error) {
	switch cfg.CacheBackend {
	case config.CacheNone:
		return cache.Nop[ledger.Snapshot]{}, nil
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			// The breaker treats an unavailable redis as a miss.
			slog.Warn("Redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
		}
		return cache.NewRedis[ledger.Snapshot](client, cfg.CacheTTL), nil
	default:
		lru := cache.NewLRU[ledger.Snapshot](cfg.CacheSize, cfg.CacheTTL)
		go lru.RunJanitor(ctx, time.Minute)
		return lru, nil
	}
}

func newPublisher(cfg *config.Config) (events.Publisher, func(), error) {
	if cfg.AMQPURL == "" {
		return events.NopPublisher{}, func() {}, nil
	}
	p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	slog.Info("Publishing settlement events", "exchange", cfg.AMQPExchange, "routing_key", cfg.AMQPRoutingKey)
	return p, func() {
		if err := p.Close(); err != nil {
			slog.Warn("Failed to close event publisher", "error", err)
		}
	}, nil
}

func newAuthenticator(cfg *config.Config) auth.Authenticator {
	if cfg.AuthMode == config.AuthDev {
		slog.Warn("AUTH_MODE=dev trusts the " + auth.DebugUserHeader + " header; do not use in production")
		return auth.DevAuthenticator{}
	}
	return auth.NewBearerAuthenticator(auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL))
}
