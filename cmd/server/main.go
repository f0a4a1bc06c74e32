package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"washdesk/internal/config"
	"washdesk/internal/database"
	"washdesk/internal/domain"
	"washdesk/internal/handler"
	"washdesk/internal/infrastructure/rabbitmq"
	"washdesk/internal/infrastructure/ratefeed"
	applog "washdesk/internal/logger"
	"washdesk/internal/rate"
	"washdesk/internal/realtime"
	"washdesk/internal/repo"
	"washdesk/internal/service"
	"washdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	logger, err := applog.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, db := openStore(ctx, cfg, logger)
	if db != nil {
		defer db.Close()
	}

	pair := domain.Currency(cfg.RatePairBase) + "/" + domain.Currency(cfg.RatePairQuote)
	var snapshots rate.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		snapshots = rate.NewRedisStore(rdb, "")
	}
	rates := rate.NewProvider(newFeed(cfg), snapshots, rate.Options{
		Pair:         string(pair),
		FetchTimeout: cfg.RateFetchTimeout,
		StaleAfter:   cfg.StaleAfter(),
	}, logger)
	if err := rates.Warm(ctx); err != nil {
		// Canonical payments still work; local ones wait for the first snapshot.
		logger.Warn("starting without an exchange rate", zap.Error(err))
	}

	hub := realtime.NewHub(cfg.SubscriberBuffer, logger)
	locks := service.NewKeyedLocks()
	opts := service.Options{
		Tolerance: decimal.NewNullDecimal(cfg.Tolerance()),
		LockWait:  cfg.LockWaitTimeout,
	}
	deliveries := service.NewDeliveryService(store, locks, hub, opts, logger)
	orders := service.NewOrderService(store, locks, deliveries, hub, opts, logger)
	payments := service.NewReconciliationService(store, locks, rates, deliveries, hub, opts, logger)

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	run(worker.NewRateRefresher(rates, cfg.RateRefreshInterval, logger).Run)

	if cfg.AMQPURL != "" {
		conn, ch, err := rabbitmq.SetupConn(ctx, cfg.AMQPURL, logger)
		if err != nil {
			logger.Error("event relay disabled", zap.Error(err))
		} else {
			defer conn.Close()
			defer ch.Close()
			run(rabbitmq.NewRelay(ch, hub, logger).Run)
		}
	}

	deps := handler.Deps{
		Orders:         orders,
		Payments:       payments,
		Deliveries:     deliveries,
		Rates:          rates,
		Events:         hub,
		JWTSecret:      []byte(cfg.JWTSecret),
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger,
	}
	if db != nil {
		deps.Health = func(ctx context.Context) map[string]string { return database.Health(ctx, db) }
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	wg.Wait()
	logger.Info("Server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repo.Store, *sql.DB) {
	if cfg.StoreDriver != "postgres" {
		logger.Warn("using in-memory store; data is lost on restart")
		return repo.NewMemoryStore(), nil
	}
	db, err := database.NewPostgres(ctx, cfg.Database().DSN())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.InitSchema(ctx, db); err != nil {
		logger.Fatal("Failed to initialise schema", zap.Error(err))
	}
	return repo.NewPostgresStore(db), db
}

func newFeed(cfg *config.Config) rate.Fetcher {
	base := domain.Currency(cfg.RatePairBase)
	quote := domain.Currency(cfg.RatePairQuote)
	if cfg.RateFeedURL == "" {
		return ratefeed.NewSimulatedFeed(base, quote, 240, 10)
	}
	return ratefeed.NewHTTPFeed(cfg.RateFeedURL, base, quote, &http.Client{Timeout: cfg.RateFetchTimeout})
}
