package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/silverstone/ledger/internal/api/handler"
	"github.com/silverstone/ledger/internal/api/middleware"
	"github.com/silverstone/ledger/internal/config"
	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/service"
	"go.uber.org/zap"
)

type Router struct {
	cfg    *config.Config
	logger *zap.Logger
	engine *service.Engine
	db     *pgxpool.Pool
	redis  redis.Cmdable
	idem   func(http.Handler) http.Handler
}

func NewRouter(cfg *config.Config, logger *zap.Logger, engine *service.Engine, db *pgxpool.Pool, redisClient redis.Cmdable, idem func(http.Handler) http.Handler) *Router {
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)
	return &Router{cfg: cfg, logger: logger, engine: engine, db: db, redis: redisClient, idem: idem}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))

	authHandler := handler.NewAuthHandler(api.engine)
	accountHandler := handler.NewAccountHandler(api.engine)
	transferHandler := handler.NewTransferHandler(api.engine)
	transactionHandler := handler.NewTransactionHandler(api.engine)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))

		r.Post("/v1/auth/login", authHandler.Login)
		r.Post("/v1/auth/forgot-password", authHandler.ForgotPassword)
		r.Post("/v1/accounts", accountHandler.Create)
		r.Get("/v1/accounts/{id}/verify", accountHandler.Verify)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/accounts/{id}", accountHandler.Get)
		r.Post("/v1/accounts/{id}/close", accountHandler.Close)
		r.Post("/v1/accounts/{id}/password", authHandler.ChangePassword)
		r.Get("/v1/accounts/{id}/transactions", transactionHandler.History)
		r.Get("/v1/accounts/{id}/transactions/pending", transactionHandler.PendingHistory)

		r.Group(func(r chi.Router) {
			r.Use(api.idempotency())

			r.Post("/v1/accounts/{id}/deposit", accountHandler.Deposit)
			r.Post("/v1/accounts/{id}/withdraw", accountHandler.Withdraw)
			r.Post("/v1/transfers", transferHandler.Send)
			r.Post("/v1/transfers/requests", transferHandler.Request)
			r.Post("/v1/transfers/requests/{id}/execute", transferHandler.Execute)
			r.Post("/v1/transfers/requests/{id}/decline", transferHandler.Decline)
		})

		// Admin surface
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(models.RoleAdmin))

			r.Get("/v1/accounts", accountHandler.List)
			r.Get("/v1/transactions", transactionHandler.List)
			r.Get("/v1/transactions/pending", transactionHandler.ListPending)
		})
	})

	return r
}

// idempotency returns the configured middleware or a pass-through when the
// deployment runs without redis.
func (api *Router) idempotency() func(http.Handler) http.Handler {
	if api.idem != nil {
		return api.idem
	}
	return func(next http.Handler) http.Handler { return next }
}
