// Package app assembles the wallet service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayo6706/upi-wallet/internal/api"
	"github.com/ayo6706/upi-wallet/internal/auth"
	"github.com/ayo6706/upi-wallet/internal/config"
	"github.com/ayo6706/upi-wallet/internal/db"
	"github.com/ayo6706/upi-wallet/internal/gateway"
	"github.com/ayo6706/upi-wallet/internal/idempotency"
	"github.com/ayo6706/upi-wallet/internal/observability"
	"github.com/ayo6706/upi-wallet/internal/otp"
	"github.com/ayo6706/upi-wallet/internal/repository"
	"github.com/ayo6706/upi-wallet/internal/repository/memstore"
	"github.com/ayo6706/upi-wallet/internal/service"
	"github.com/ayo6706/upi-wallet/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// ledgerBackend is a LedgerStore that can also report its health.
type ledgerBackend interface {
	service.LedgerStore
	Ping(ctx context.Context) error
}

// App owns the long-lived resources of one wallet process.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	ledger ledgerBackend
	// redis is nil when REDIS_URL is unset.
	redis   redis.Cmdable
	server  *http.Server
	worker  *worker.ReconciliationWorker
	closers []func()
}

// Run loads configuration, serves until SIGINT or SIGTERM and then shuts down.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(ctx)
}

// New connects the configured backends and wires services, handlers and the worker.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	if err := a.openLedger(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init token manager: %w", err)
	}

	var codeStore otp.Store = otp.NewMemoryStore()
	if a.redis != nil {
		codeStore = otp.NewRedisStore(a.redis)
	}
	codes := otp.NewService(codeStore, otp.NewLogSender(logger), cfg.OTPTTL)

	authSvc := service.NewAuthService(a.ledger, tokens, codes, gateway.NewMockFaceVerifier(), service.AuthConfig{
		WelcomeBalance: cfg.WelcomeBalance,
		HandleDomain:   cfg.HandleDomain,
		RequireOTP:     cfg.RequireOTP,
	})
	accountSvc := service.NewAccountService(a.ledger)
	transferSvc := service.NewTransferService(a.ledger, service.TransferConfig{
		MinAmount:     cfg.TransferMinAmount,
		MaxAmount:     cfg.TransferMaxAmount,
		Scale:         cfg.AmountScale,
		MaxAttempts:   cfg.TransferMaxAttempts,
		RetryBackoff:  cfg.TransferRetryBackoff,
		IDPrefix:      cfg.TransactionIDPrefix,
		MaxMemoLength: cfg.TransferMemoLimit,
	})
	replays := idempotency.NewStore(a.redis, a.ledger.Queries(), cfg.IdempotencyTTL)

	router := api.NewRouter(cfg, logger, a.ledger, replays, a.redis, tokens, authSvc, accountSvc, transferSvc)
	a.server = &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	a.worker = worker.NewReconciliationWorker(service.NewReconciliationService(a.ledger)).
		WithInterval(cfg.ReconciliationInterval)
	return a, nil
}

// Serve runs the HTTP server and the reconciliation worker until ctx ends.
func (a *App) Serve(ctx context.Context) error {
	stopWorker := a.worker.Run(ctx)
	defer stopWorker()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("wallet api listening",
			zap.String("addr", a.server.Addr),
			zap.String("store", a.cfg.StoreDriver),
			zap.Bool("redis", a.redis != nil),
		)
		serveErr <- a.server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Close releases backend connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openLedger(ctx context.Context) error {
	if a.cfg.StoreDriver == config.StoreDriverMemory {
		a.logger.Warn("using the in-memory ledger; balances are lost on restart")
		a.ledger = memstore.New()
		return nil
	}

	pool, err := db.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	a.ledger = repository.NewStore(pool)
	return nil
}

func (a *App) openRedis(ctx context.Context) error {
	if a.cfg.RedisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	a.closers = append(a.closers, func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	a.redis = client
	return nil
}

// newLogger builds a production JSON logger. Unknown levels fall back to info.
func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	return cfg.Build()
}
