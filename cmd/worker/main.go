// Package main provides the entrypoint for the Wayfinder journal worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/api/handler"
	"github.com/breatheroute/wayfinder/internal/api/middleware"
	"github.com/breatheroute/wayfinder/internal/config"
	"github.com/breatheroute/wayfinder/internal/database"
	"github.com/breatheroute/wayfinder/internal/journal"
	"github.com/breatheroute/wayfinder/internal/telemetry"
	"github.com/breatheroute/wayfinder/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "wayfinder-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Wayfinder worker")

	loader, err := config.Load("", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg := loader.Config()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	checks := map[string]handler.Check{}

	var repo journal.Repository
	if cfg.Database.Enabled {
		dbConfig := cfg.Database.Connection()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		pg := journal.NewPostgresRepository(pool)
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate journal schema")
		}
		repo = pg
		checks["postgres"] = pool.Ping
	} else {
		log.Warn().Msg("database disabled - journal is kept in memory")
		repo = journal.NewInMemoryRepository()
	}

	processor := worker.NewProcessor(repo, worker.DefaultConfig(), log)

	consumerDone := make(chan struct{})
	if cfg.PubSub.ProjectID != "" {
		consumer, err := worker.NewConsumer(ctx, worker.Config{
			ProjectID:    cfg.PubSub.ProjectID,
			Subscription: cfg.PubSub.Subscription,
		}, processor, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create journal consumer")
		}
		defer func() { _ = consumer.Close() }()

		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("journal consumer stopped")
			}
		}()
	} else {
		log.Warn().Msg("pubsub not configured - no events will be journaled")
		close(consumerDone)
	}

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Checks:    checks,
	})
	tripHandler := handler.NewTripHandler(repo, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.ContentTypeJSON)
	r.Get("/health", opsHandler.HealthCheck)
	r.Get("/ready", opsHandler.ReadinessCheck)
	r.Get("/v1/trips/{sessionId}", tripHandler.GetTrip)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("worker http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()
	<-consumerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
