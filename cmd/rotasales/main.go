package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotasales/rotasales/internal/app"
	"github.com/rotasales/rotasales/internal/auth"
	"github.com/rotasales/rotasales/internal/credit"
	"github.com/rotasales/rotasales/internal/guide"
	"github.com/rotasales/rotasales/internal/masterdata"
	"github.com/rotasales/rotasales/internal/observability"
	"github.com/rotasales/rotasales/internal/platform/cache"
	"github.com/rotasales/rotasales/internal/platform/db"
	"github.com/rotasales/rotasales/internal/sales"
	"github.com/rotasales/rotasales/internal/sync"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Redis only backs the seller token cache; run without it if unreachable.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, seller token cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	tokenCache := auth.NewTokenCache(redisClient, cfg.SellerTokenCacheTTL)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, issuer, tokenCache)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := auth.NewMiddleware(issuer, logger)

	masterDataRepo := masterdata.NewRepository(pool)
	masterDataService := masterdata.NewService(logger, masterDataRepo, auth.NewSellerToken, tokenCache)
	masterDataHandler := masterdata.NewHandler(logger, masterDataService)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(logger, salesRepo)
	salesHandler := sales.NewHandler(logger, salesService)

	creditRepo := credit.NewRepository(pool)
	creditService := credit.NewService(logger, creditRepo)
	creditHandler := credit.NewHandler(logger, creditService)

	guideRepo := guide.NewRepository(pool)
	guideService := guide.NewService(logger, guideRepo)
	guideHandler := guide.NewHandler(logger, guideService)

	syncStore := sync.NewStore(pool)
	syncEngine := sync.NewEngine(logger, syncStore, metrics)
	syncHandler := sync.NewHandler(logger, syncEngine)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthMiddleware:    authMiddleware,
		AuthHandler:       authHandler,
		MasterDataHandler: masterDataHandler,
		SalesHandler:      salesHandler,
		CreditHandler:     creditHandler,
		GuideHandler:      guideHandler,
		SyncHandler:       syncHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
