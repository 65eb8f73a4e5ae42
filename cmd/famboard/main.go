package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/famboard/internal/auth"
	"github.com/dukerupert/famboard/internal/config"
	"github.com/dukerupert/famboard/internal/database"
	"github.com/dukerupert/famboard/internal/jobs"
	"github.com/dukerupert/famboard/internal/logging"
	"github.com/dukerupert/famboard/internal/notify"
	"github.com/dukerupert/famboard/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.EmailEnabled() {
		notifier = notify.NewPostmark(cfg.PostmarkToken, cfg.FromEmail, cfg.BaseURL)
		logger.Info("email notifications enabled", "from", cfg.FromEmail)
	}

	srv := server.New(db, server.Options{
		Tokens:         auth.NewTokens(cfg.TokenSecret, cfg.TokenTTL),
		Notifier:       notifier,
		AuthRateLimit:  cfg.AuthRateLimit,
		AuthRateWindow: cfg.AuthRateWindow,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)

	scheduler, err := jobs.NewScheduler(cfg.Location(), cfg.StreakResetSpec, srv.MemberStore(), srv.RateLimiter(), logger.With("component", "jobs"))
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("famboard listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	scheduler.Stop(ctx)
}
