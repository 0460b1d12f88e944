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

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/background"
	"github.com/BradenHooton/cadence/internal/database"
	"github.com/BradenHooton/cadence/internal/handlers"
	middlewareCustom "github.com/BradenHooton/cadence/internal/middleware"
	"github.com/BradenHooton/cadence/internal/repositories"
	"github.com/BradenHooton/cadence/internal/routes"
	"github.com/BradenHooton/cadence/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func runServe() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// Initialize repositories
	taskRepo := repositories.NewTaskRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)

	// Security monitor: rules, background dispatcher and event sinks
	ruleSet, err := services.LoadRuleSetFile(cfg.Security.RulesFile)
	if err != nil {
		return err
	}
	rules, err := services.BuildRules(ruleSet)
	if err != nil {
		return err
	}

	dispatcher := services.NewEventDispatcher(cfg.Security.DispatchQueueSize, logger)
	monitorOpts := []services.SecurityMonitorOption{
		services.WithRules(rules),
		services.WithDispatcher(dispatcher),
		services.WithEventSinks(eventRepo),
	}

	var handlerOpts []handlers.SecurityHandlerOption
	handlerOpts = append(handlerOpts, handlers.WithEventHistory(eventRepo))

	if cfg.Redis.Enabled() {
		rdb, err := repositories.NewRedisClient(repositories.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		redisStats := repositories.NewRedisSecurityStats(rdb,
			repositories.WithStatsPrefix(cfg.Redis.StatsPrefix),
			repositories.WithStatsTTL(cfg.Redis.StatsTTL),
		)
		monitorOpts = append(monitorOpts, services.WithEventSinks(redisStats))
		handlerOpts = append(handlerOpts, handlers.WithClusterStats(redisStats))
		logger.Info("security stats mirrored to redis", slog.String("addr", cfg.Redis.Addr))
	}

	if cfg.Email.AlertsEnabled {
		alerts, err := services.NewAWSSESAlertService(cfg.Email.Region, services.SecurityAlertConfig{
			FromAddress:     cfg.Email.FromAddress,
			Recipients:      cfg.Email.Recipients,
			AlertsPerMinute: cfg.Email.AlertsPerMinute,
		}, logger)
		if err != nil {
			return err
		}
		monitorOpts = append(monitorOpts, services.WithBlockNotifiers(alerts))
	}

	monitor := services.NewSecurityMonitor(services.DefaultSecurityMonitorConfig(), logger, monitorOpts...)
	limiters := services.NewRateLimiterSet(services.DefaultRateLimiterSetConfig().WithSignInPath(cfg.Auth.SignInPath))

	// Initialize services and handlers
	taskService := services.NewTaskService(taskRepo, logger)
	taskHandler := handlers.NewTaskHandler(taskService)
	securityHandler := handlers.NewSecurityHandler(monitor, limiters, cfg.Server.Env, logger, handlerOpts...)
	healthHandler := handlers.NewHealthHandler(db)

	verifier := auth.NewSessionVerifier(cfg.Auth.SessionSecret, cfg.Auth.Issuer)

	guardConfig := middlewareCustom.GuardConfig{
		Env:               cfg.Server.Env,
		DevPathPrefix:     cfg.Security.DevPathPrefix,
		ProtectedPrefixes: cfg.Auth.ProtectedPrefixes,
		SignInPath:        cfg.Auth.SignInPath,
		TrustedProxies:    cfg.Security.TrustedProxies,
		Headers: middlewareCustom.SecurityHeadersConfig{
			Env:                     cfg.Server.Env,
			IdentityProviderOrigins: cfg.Auth.IdentityProviderOrigins,
			DatabaseOrigins:         cfg.Security.DatabaseOrigins,
		},
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(auth.SessionMiddleware(verifier, logger))
	router.Use(middlewareCustom.SecurityGuard(guardConfig, limiters, monitor, logger))
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, cfg.Server.Env, healthHandler, taskHandler, securityHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start background work
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	go dispatcher.Start(bgCtx)

	cleanupManager := background.NewCleanupManager(logger,
		background.LimiterCleanupJob(limiters, background.DefaultLimiterCleanupInterval, logger),
		background.MonitorCleanupJob(monitor, background.DefaultMonitorCleanupInterval, logger),
		background.EventRetentionJob(eventRepo, cfg.Security.EventRetention, background.DefaultEventRetentionInterval, logger),
	)
	cleanupManager.Start(bgCtx)

	// Start server
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Stop producers before draining the dispatcher
	cleanupManager.Stop()
	bgCancel()
	dispatcher.Wait()

	logger.Info("server stopped gracefully", slog.Int64("dropped_security_jobs", dispatcher.Dropped()))
	return nil
}

