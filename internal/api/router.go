package api

import (
	"net/http"

	"github.com/ayo6706/upi-wallet/internal/api/handler"
	"github.com/ayo6706/upi-wallet/internal/api/middleware"
	"github.com/ayo6706/upi-wallet/internal/api/spec"
	"github.com/ayo6706/upi-wallet/internal/config"
	"github.com/ayo6706/upi-wallet/internal/idempotency"
	"github.com/ayo6706/upi-wallet/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type Router struct {
	cfg         *config.Config
	logger      *zap.Logger
	db          handler.Pinger
	idemStore   *idempotency.Store
	redis       redis.Cmdable
	tokens      middleware.TokenParser
	authSvc     *service.AuthService
	accountSvc  *service.AccountService
	transferSvc *service.TransferService
}

// NewRouter wires handlers onto a chi router. redis may be nil.
func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db handler.Pinger,
	idemStore *idempotency.Store,
	redis redis.Cmdable,
	tokens middleware.TokenParser,
	authSvc *service.AuthService,
	accountSvc *service.AccountService,
	transferSvc *service.TransferService,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		idemStore:   idemStore,
		redis:       redis,
		tokens:      tokens,
		authSvc:     authSvc,
		accountSvc:  accountSvc,
		transferSvc: transferSvc,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	authHandler := handler.NewAuthHandler(api.authSvc)
	accountHandler := handler.NewAccountHandler(api.accountSvc)
	transferHandler := handler.NewTransferHandler(api.transferSvc)

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/auth/otp", authHandler.RequestOTP)
		r.Post("/v1/auth/register", authHandler.Register)
		r.Post("/v1/auth/login", authHandler.Login)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(api.tokens, api.accountSvc))
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))
		r.Use(middleware.RequireVerified)

		r.Get("/v1/wallet/balance", accountHandler.GetBalance)
		r.Get("/v1/wallet/transactions", accountHandler.ListTransactions)
		r.Get("/v1/wallet/transactions/{transactionID}", accountHandler.GetTransaction)
		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).Post("/v1/wallet/transfers", transferHandler.CreateTransfer)
	})

	return r
}
