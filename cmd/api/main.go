// Package main is the entry point for the ride-sharing API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ridepool/backend/internal/cache"
	"github.com/ridepool/backend/internal/config"
	"github.com/ridepool/backend/internal/events"
	"github.com/ridepool/backend/internal/handler"
	"github.com/ridepool/backend/internal/logging"
	"github.com/ridepool/backend/internal/middleware"
	"github.com/ridepool/backend/internal/payments"
	"github.com/ridepool/backend/internal/repo"
	"github.com/ridepool/backend/internal/service"
	"github.com/ridepool/backend/internal/settlement"
	"github.com/ridepool/backend/migrations"
)

func main() {
	// --- Config -----------------------------------------------------------
	// Flags override the environment for local runs.
	cfg, err := config.LoadArgs(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		// Use plain stderr before the logger is configured.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	logger := logging.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// --- Store ------------------------------------------------------------
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- Search cache -----------------------------------------------------
	var searchCache cache.SearchCache = cache.NoopSearchCache{}
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		defer client.Close()
		searchCache = cache.NewRedisSearchCache(client, cfg.SearchCacheTTL, logger)
		logger.Info("trip search cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.SearchCacheTTL)
	}

	// --- Events -----------------------------------------------------------
	publisher, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	emitter := events.NewEmitter(publisher, logger)
	defer func() {
		if err := emitter.Close(); err != nil {
			logger.Warn("event publisher close failed", "error", err)
		}
	}()
	logger.Info("events configured", "backend", cfg.EventsBackend)

	// --- Payments ---------------------------------------------------------
	var verifier payments.Verifier = payments.DisabledVerifier{}
	if cfg.StripeAPIKey != "" {
		verifier = payments.NewStripeVerifier(cfg.StripeAPIKey)
	}

	// --- Services ---------------------------------------------------------
	settler := settlement.NewSettler(logger)
	server := handler.NewServer(handler.Services{
		Rides:  service.NewRideService(store, settler, emitter, logger),
		Trips:  service.NewTripService(store, searchCache, settler, emitter, logger),
		Query:  service.NewQueryService(store),
		Wallet: service.NewWalletService(store, verifier, settler, emitter, logger),
		Actors: service.NewActorService(store, emitter, logger),
	}, logger)

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer.
	// Metrics sits innermost so it sees the matched route pattern.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))
	r.Use(middleware.Metrics)

	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/", server.Routes())

	// --- HTTP Server ------------------------------------------------------
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore connects the configured persistence backend. The returned func
// releases it.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repo.Store, func(), error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		return repo.NewMemoryStore(), func() {}, nil
	}

	// pgxpool manages a pool of Postgres connections.
	// New() does not open connections immediately; the first query does.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("create database pool: %w", err)
	}

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("database connection established")

	if cfg.MigrateOnStart {
		if err := migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return repo.NewPostgresStore(pool), pool.Close, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("migrations applied", "count", len(results))
	return nil
}

// openPublisher returns the broker publisher for the configured backend, or
// nil when events should only be logged.
func openPublisher(cfg config.Config) (events.Publisher, error) {
	switch cfg.EventsBackend {
	case config.EventsKafka:
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case config.EventsAMQP:
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("connect to amqp: %w", err)
		}
		return pub, nil
	}
	return nil, nil
}
