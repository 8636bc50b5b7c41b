package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/brewnet/backend/internal/api"
	"github.com/brewnet/backend/internal/auth"
	"github.com/brewnet/backend/internal/config"
	"github.com/brewnet/backend/internal/domain"
	"github.com/brewnet/backend/internal/presence"
	"github.com/brewnet/backend/internal/repository"
)

var version = "dev"

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting BrewNet API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
		zap.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error("Store close error", zap.Error(err))
		}
	}()
	logger.Info("Connected to store")

	// The channel is ready before the listener accepts anything.
	presenceManager := presence.NewManager(logger, presence.Options{
		AllowedOrigins: cfg.Presence.AllowedOrigins,
		SendBuffer:     cfg.Presence.SendBuffer,
		PingPeriod:     cfg.Presence.PingPeriod,
	})
	presenceManager.Initialize(ctx)

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessExpiry)
	if cfg.IsProduction() && cfg.JWT.Secret == "change-me-in-production" {
		logger.Warn("JWT_SECRET is the default value")
	}

	// Initialize services
	notificationService := domain.NewNotificationService(store, presenceManager, logger)
	connectionService := domain.NewConnectionService(store, store, notificationService)
	sessionService := domain.NewSessionService(store, notificationService, cfg.Notifications.ClearOnSignOut, logger)

	router := api.NewRouter(
		api.NewHealthHandler(presenceManager, store, version),
		api.NewSessionHandler(sessionService, logger),
		api.NewConnectionHandler(connectionService, logger),
		api.NewNotificationHandler(notificationService, logger),
		api.NewPresenceHandler(presenceManager, logger),
		jwtManager,
		cfg.Presence.AllowedOrigins,
		logger,
	)

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router.Setup(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut long-lived WebSocket connections.
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
