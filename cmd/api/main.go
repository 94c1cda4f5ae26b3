// Package main provides the entrypoint for the Wayfinder API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/api"
	"github.com/breatheroute/wayfinder/internal/api/handler"
	"github.com/breatheroute/wayfinder/internal/api/middleware"
	"github.com/breatheroute/wayfinder/internal/audio"
	"github.com/breatheroute/wayfinder/internal/auth"
	"github.com/breatheroute/wayfinder/internal/config"
	"github.com/breatheroute/wayfinder/internal/events"
	"github.com/breatheroute/wayfinder/internal/navigation"
	"github.com/breatheroute/wayfinder/internal/provider/resilience"
	"github.com/breatheroute/wayfinder/internal/routing"
	"github.com/breatheroute/wayfinder/internal/routing/openrouteservice"
	"github.com/breatheroute/wayfinder/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "wayfinder-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Wayfinder API")

	loader, err := config.Load("", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg := loader.Config()
	if err := cfg.RequireAPI(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if tp.Enabled() {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	meter := tp.Meter(serviceName)
	httpMetrics, err := middleware.NewMetricsWithMeter(meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	navMetrics, err := navigation.NewMetricsWithMeter(meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize navigation metrics")
	}

	registry := resilience.NewRegistry()
	checks := map[string]handler.Check{}

	// Directions
	var store routing.Store
	if cfg.Directions.StoreDir != "" {
		disk, err := routing.NewDiskStore(cfg.Directions.StoreDir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.Directions.StoreDir).Msg("failed to open route store")
		}
		store = disk
	}
	directions := routing.NewService(routing.ServiceConfig{
		Provider: openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   cfg.Directions.APIKey,
			BaseURL:  cfg.Directions.BaseURL,
			Timeout:  cfg.Directions.Timeout,
			Registry: registry,
			Language: cfg.Directions.Language,
			Logger:   log,
		}),
		Logger:          log,
		CacheTTL:        cfg.Directions.CacheTTL,
		CacheSize:       cfg.Directions.CacheSize,
		StaleIfErrorTTL: cfg.Directions.StaleIfErrorTTL,
		Store:           store,
	})
	log.Info().Str("provider", directions.ProviderName()).Msg("directions service initialized")

	// Audio
	var target audio.Announcer = audio.NewLogAnnouncer(log)
	if cfg.Speech.RelayURL != "" {
		target = audio.NewHTTPAnnouncer(audio.RelayConfig{
			BaseURL:  cfg.Speech.RelayURL,
			Token:    cfg.Speech.Token,
			Timeout:  cfg.Speech.Timeout,
			Registry: registry,
			Logger:   log,
		})
		log.Info().Str("relay_url", cfg.Speech.RelayURL).Msg("speech relay configured")
	} else {
		log.Warn().Msg("speech relay not configured - announcements are only logged")
	}
	dispatcher := audio.NewDispatcher(audio.DispatcherConfig{
		Target:    target,
		QueueSize: cfg.Speech.QueueSize,
		Logger:    log,
		OnError: func(op string, _ error) {
			navMetrics.RecordAudioFailure(context.Background(), op)
		},
	})
	defer dispatcher.Close()

	var tone []byte
	if cfg.Speech.ToneAsset != "" {
		tone, err = audio.LoadToneAsset(cfg.Speech.ToneAsset)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Speech.ToneAsset).Msg("failed to load tone asset")
		}
	}

	// Live status
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	hub := events.NewHub(ctx, events.HubConfig{Redis: rdb, Logger: log})
	defer func() { _ = hub.Close() }()

	publishers := events.Multi{hub}
	if cfg.PubSub.ProjectID != "" {
		pub, err := events.NewPubSubPublisher(ctx, events.PubSubConfig{
			ProjectID: cfg.PubSub.ProjectID,
			Topic:     cfg.PubSub.Topic,
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		defer func() { _ = pub.Close() }()
		publishers = append(publishers, pub)
		log.Info().Str("topic", cfg.PubSub.Topic).Msg("publishing navigation events")
	}

	// Navigation
	sessionCfg := func(n config.NavigationConfig) navigation.Config {
		c := n.Session(cfg.Speech.Voice(), tone)
		c.Logger = log
		c.Metrics = navMetrics
		return c
	}
	manager, err := navigation.NewManager(navigation.ManagerConfig{
		Directions:  directions,
		Announcer:   dispatcher,
		Publisher:   publishers,
		Session:     sessionCfg(cfg.Navigation),
		QueueSize:   cfg.Navigation.QueueSize,
		MaxSessions: cfg.Navigation.MaxSessions,
		OnUpdate: func(ctx context.Context, id string, res navigation.Result) {
			if err := hub.BroadcastJSON(ctx, id, "snapshot", res.Snapshot); err != nil {
				log.Debug().Err(err).Str("session_id", id).Msg("snapshot broadcast failed")
			}
		},
		Logger: log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create navigation manager")
	}
	defer manager.Close()

	loader.Watch(func(n config.NavigationConfig) {
		if err := manager.SetConfig(sessionCfg(n)); err != nil {
			log.Warn().Err(err).Msg("rejected navigation config")
		}
	})

	// Auth
	var tokens middleware.TokenValidator
	if cfg.Auth.Disabled {
		log.Warn().Msg("device authentication disabled - not secure for production")
	} else {
		tokens = auth.NewJWTService(auth.JWTConfig{SigningKey: cfg.Auth.JWTSigningKey})
	}

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        httpMetrics,
		Tokens:         tokens,
		Sessions:       manager,
		Subscriptions:  hub,
		Providers:      registry,
		SessionCounter: manager,
		Checks:         checks,
		RequireTLS:     cfg.Server.RequireTLS,
	})

	// WriteTimeout would cut websocket streams; handlers bound their own writes.
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
