package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/refledger/internal/api"
	"github.com/punchamoorthee/refledger/internal/config"
	"github.com/punchamoorthee/refledger/internal/events"
	"github.com/punchamoorthee/refledger/internal/ratelimit"
	"github.com/punchamoorthee/refledger/internal/service"
	"github.com/punchamoorthee/refledger/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if cfg.MigrateOnStart {
		if err := store.Migrate(cfg.DBSource); err != nil {
			logger.Fatal("database migration failed", zap.Error(err))
		}
		logger.Info("database migrations applied")
	}

	ctx := context.Background()
	ledgerStore, err := store.NewStore(ctx, cfg.DBSource, cfg.DBMaxConns)
	if err != nil {
		logger.Fatal("unable to connect to database", zap.Error(err))
	}
	defer ledgerStore.Close()

	dispatcher := events.NewDispatcher(newPublisher(cfg, logger), cfg.EventQueueSize, logger)
	dispatcher.Start(2)
	defer dispatcher.Shutdown()

	// Initialize Layers
	graph := service.NewReferralGraph(service.DirectReferralPolicy{MaxLevel: cfg.ReferralEdgeMaxLevel})
	distributor := service.NewDistributor(ledgerStore, graph, dispatcher, logger)
	ledger := service.NewLedgerService(ledgerStore, distributor, dispatcher, logger)

	limiter, closeRedis := newLimiter(cfg, logger)
	defer closeRedis()

	handler := api.NewHandler(ledger, ledgerStore, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:          cfg.JWTSecret,
		Limiter:            limiter,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("environment", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newPublisher(cfg *config.Config, logger *zap.Logger) events.Publisher {
	if cfg.RabbitMQURL == "" {
		logger.Warn("RABBITMQ_URL not set; events will only be logged")
		return events.LogPublisher{Logger: logger}
	}
	pub, err := events.NewAMQPPublisher(cfg.RabbitMQURL, cfg.EventsExchange, logger)
	if err != nil {
		logger.Warn("rabbitmq unavailable; events will only be logged", zap.Error(err))
		return events.LogPublisher{Logger: logger}
	}
	logger.Info("rabbitmq publisher ready", zap.String("exchange", cfg.EventsExchange))
	return pub
}

func newLimiter(cfg *config.Config, logger *zap.Logger) (api.RateLimiter, func()) {
	noop := func() {}
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set; request rate limiting disabled")
		return nil, noop
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; request rate limiting disabled", zap.Error(err))
		return nil, noop
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; request rate limiting disabled", zap.Error(err))
		client.Close()
		return nil, noop
	}
	logger.Info("redis connected")
	return ratelimit.NewRedisLimiter(client, cfg.RateLimitPrefix), func() { client.Close() }
}
