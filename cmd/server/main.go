// Package main is the entry point for the issuance report API server.
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

	"prorab/internal/app"
	"prorab/internal/config"
	v1 "prorab/internal/infrastructure/http/v1"
	"prorab/internal/infrastructure/http/v1/handlers"
	"prorab/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Info("starting prorab report server")

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize", "error", err)
	}
	defer a.Close()
	log.Info("database connection established")

	var redisPing handlers.Pinger
	if a.Redis != nil {
		redisPing = handlers.PingFunc(func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() })
	}

	router := v1.NewRouter(v1.RouterConfig{
		Logger:   log,
		Reports:  a.Reports,
		Database: a.TxM,
		Redis:    redisPing,
		Metrics:  a.Metrics,
	})

	server := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DBStatementTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.AppPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
