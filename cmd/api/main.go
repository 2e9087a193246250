// Command api is the Hifz notification service.
//
// Usage:
//
//	hifz-api
//	API_PORT=8080 SCHEDULER_ENABLED=true hifz-api

// @title Hifz Notification API
// @version 1.0.0
// @description Push notifications for a Quran memorization school: database-change webhook, periodic job triggers and health.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
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

	"github.com/joho/godotenv"

	"github.com/albapepper/hifz-notify/internal/api"
	"github.com/albapepper/hifz-notify/internal/api/handler"
	"github.com/albapepper/hifz-notify/internal/app"
	"github.com/albapepper/hifz-notify/internal/config"
	"github.com/albapepper/hifz-notify/internal/listener"
	"github.com/albapepper/hifz-notify/internal/scheduler"

	_ "github.com/albapepper/hifz-notify/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}

	// In-process cron for the periodic drivers
	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched, err = a.Scheduler()
		if err != nil {
			logger.Error("Failed to build scheduler", "error", err)
			os.Exit(1)
		}
		if err := sched.Start(ctx); err != nil {
			logger.Error("Failed to start scheduler", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("Scheduler disabled (SCHEDULER_ENABLED=false); expecting external triggers")
	}

	// LISTEN/NOTIFY consumer as an alternative to the HTTP webhook
	if cfg.ListenerEnabled {
		go listener.New(cfg.DatabaseURL, a.Events, logger).Start(ctx)
	}

	router := api.NewRouter(handler.New(a.HandlerDeps()), cfg, a.Registry, logger)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Hifz notification API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	if sched != nil {
		sched.Stop()
	}
	a.Close(shutdownCtx)
	logger.Info("Server stopped")
}
