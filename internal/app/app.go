package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/silverstone/ledger/internal/accounts"
	"github.com/silverstone/ledger/internal/api"
	"github.com/silverstone/ledger/internal/api/middleware"
	"github.com/silverstone/ledger/internal/config"
	"github.com/silverstone/ledger/internal/db"
	"github.com/silverstone/ledger/internal/envelope"
	"github.com/silverstone/ledger/internal/idempotency"
	"github.com/silverstone/ledger/internal/ledger"
	"github.com/silverstone/ledger/internal/notify"
	"github.com/silverstone/ledger/internal/observability"
	"github.com/silverstone/ledger/internal/repository"
	"github.com/silverstone/ledger/internal/repository/memory"
	"github.com/silverstone/ledger/internal/repository/postgres"
	"github.com/silverstone/ledger/internal/service"
	"github.com/silverstone/ledger/internal/worker"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and reconciliation worker, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var repo repository.Store
	var pool *pgxpool.Pool
	switch cfg.RepositoryDriver {
	case "postgres":
		pool, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		store := postgres.NewStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		repo = store
	case "memory":
		repo = memory.NewStore()
		logger.Warn("using in-memory repository, state is not durable")
	}

	var redisCmd redis.Cmdable
	var idemStore *idempotency.Store
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		redisCmd = redisClient
		idemStore = idempotency.NewStore(redisClient, cfg.IdempotencyTTL)
	}

	codec := envelope.New()
	accountStore := accounts.NewStore(repo, codec)
	txLedger := ledger.New(repo, codec)
	engine := service.NewEngine(repo, accountStore, txLedger, newNotifier(cfg, logger), cfg.BackendURL)

	reconSvc := service.NewReconciliationService(accountStore, txLedger, logger)
	reconWorker := worker.NewReconciliationWorker(reconSvc).WithInterval(cfg.ReconciliationInterval)
	stopWorker := reconWorker.Run(ctx)
	logger.Info("reconciliation worker started", zap.Duration("interval", cfg.ReconciliationInterval))

	var idemMiddleware func(http.Handler) http.Handler
	if idemStore != nil {
		idemMiddleware = middleware.IdempotencyMiddleware(idemStore, logger)
	}
	router := api.NewRouter(cfg, logger, engine, pool, redisCmd, idemMiddleware)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping reconciliation worker")
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newNotifier(cfg *config.Config, logger *zap.Logger) notify.Notifier {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP not configured, notifications go to the log")
		return notify.LogNotifier{}
	}
	port, err := strconv.Atoi(cfg.SMTPPort)
	if err != nil {
		logger.Warn("invalid SMTP port, notifications go to the log", zap.String("port", cfg.SMTPPort))
		return notify.LogNotifier{}
	}
	return notify.NewSMTPNotifier(cfg.SMTPHost, port, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
