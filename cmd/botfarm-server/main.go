// Package main is the entry point for the BotFarm server.
// BotFarm hands out pooled bot accounts under an exclusive time-stamped lock.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/prn-tf/botfarm/internal/app"
	"github.com/prn-tf/botfarm/internal/config"
	"github.com/prn-tf/botfarm/internal/handler"
	"github.com/prn-tf/botfarm/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load(os.Getenv("BOTFARM_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.Logging, os.Stderr)
	log.Logger = logger

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("project", cfg.Server.ProjectName).
		Str("driver", cfg.Database.Driver).
		Msg("Starting BotFarm server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := app.New(ctx, cfg, logger, app.Options{WithMetrics: true, WithCache: true})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to release resources")
		}
	}()

	router := handler.NewRouter(handler.RouterConfig{
		UserHandler: handler.NewUserHandler(handler.UserHandlerConfig{
			UserService: components.UserService,
			MaxBodySize: cfg.Server.MaxBodySize,
			Debug:       cfg.Server.Debug,
			Logger:      logger,
		}),
		HealthHandler: handler.NewHealthHandler(components.Database, logger),
		Metrics:       components.Metrics,
		MetricsPath:   cfg.Metrics.Path,
		AppName:       cfg.Server.AppName,
		Version:       Version,
		Debug:         cfg.Server.Debug,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("Server stopped")
}
