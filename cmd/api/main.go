package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/paasforest/proconnect-access/cmd/mainconfig"
	"github.com/paasforest/proconnect-access/internal/app/bootstrap"
	appconfig "github.com/paasforest/proconnect-access/internal/config"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting proconnect access API",
		"env", cfg.Env,
		"port", cfg.Port,
		"activation_policy", cfg.ActivationPolicy,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var deps bootstrap.Deps
	if cfg.DatabaseURL != "" {
		pool, db, err := bootstrap.OpenDatabases(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		defer db.Close()
		deps.Pool, deps.SQL = pool, db
	}
	if client := bootstrap.BuildRedisClient(ctx, cfg, logger, true); client != nil {
		defer client.Close()
		deps.Redis = client
	}
	if mainconfig.UsesAWS(cfg) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		deps.AWS = &awsCfg
	}

	app, err := bootstrap.Build(cfg, deps, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	app.Scheduler.Start()
	if app.Deliverer != nil {
		go app.Deliverer.Start(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app.Scheduler.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped")
}
